// Package ofx parses OFX/QFX bank statement files into reviewable
// transaction candidates.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/restage-dev/restage/internal/model"
)

// Parser implements OFX/QFX statement parsing. Malformed input never makes
// Parse fail: problems are collected into the result's Errors and parsing
// continues with whatever can still be extracted.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocess fixes common formatting issues in OFX files before handing
// them to the real parser.
func (p *Parser) preprocess(content string) string {
	// Trim any leading whitespace or blank lines before the header
	content = strings.TrimLeft(content, " \t\r\n")

	// Fix mixed-case SEVERITY values (should be INFO, WARN, or ERROR)
	severityRegex := regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// Fix missing closing angle brackets in SGML-style OFX files
	tagFixRegex := regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

// Parse reads an OFX/QFX stream and returns the candidates it contains plus
// any non-fatal errors. A nil or empty stream yields an empty result: there
// is nothing to import, which is not a failure. The returned error is
// non-nil only for I/O failures reading the stream.
func (p *Parser) Parse(_ context.Context, reader io.Reader, fileName string) (model.ParseResult, error) {
	var result model.ParseResult

	if reader == nil {
		return result, nil
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return result, fmt.Errorf("failed to read statement file %s: %w", fileName, err)
	}

	processed := p.preprocess(string(content))
	if processed == "" {
		return result, nil
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(processed))
	if err != nil {
		result.Errors = append(result.Errors, model.ParseError{
			Message: fmt.Sprintf("not a well-formed OFX document: %v", err),
		})
		return result, nil
	}

	institution := strings.TrimSpace(string(resp.Signon.Org))
	if institution == "" {
		institution = "Unknown"
	}

	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			source := formatSource(institution,
				titleCase(stmt.BankAcctFrom.AcctType.String()),
				string(stmt.BankAcctFrom.AcctID))
			p.processTranList(stmt.BankTranList, source, &result)
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			source := formatSource(institution, "Credit Card", string(stmt.CCAcctFrom.AcctID))
			p.processTranList(stmt.BankTranList, source, &result)
		}
	}

	slog.Info("Parsed statement file",
		"file", fileName,
		"candidates", len(result.Candidates),
		"errors", len(result.Errors),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return result, nil
}

// processTranList converts one statement block's transactions, isolating
// per-line failures so one bad line never aborts the rest of the file.
func (p *Parser) processTranList(list *ofxgo.TransactionList, source string, result *model.ParseResult) {
	if list == nil {
		return
	}

	for _, ofxTx := range list.Transactions {
		candidate, errs := p.convertTransaction(ofxTx, source)
		result.Errors = append(result.Errors, errs...)
		if candidate != nil {
			result.Candidates = append(result.Candidates, *candidate)
		}
	}
}

// convertTransaction maps one OFX transaction line to a candidate. Date and
// amount are the only strictly required fields; a line missing its date is
// skipped with an error, everything else degrades gracefully.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, source string) (*model.Candidate, []model.ParseError) {
	var errs []model.ParseError

	externalID := strings.TrimSpace(string(ofxTx.FiTID))

	if ofxTx.DtPosted.IsZero() {
		errs = append(errs, model.ParseError{
			Statement: source,
			Message:   fmt.Sprintf("transaction %q has no posting date; line skipped", externalID),
		})
		return nil, errs
	}

	payee, memo := resolvePayee(ofxTx)
	if payee == "" && externalID == "" {
		errs = append(errs, model.ParseError{
			Statement: source,
			Message:   "transaction has neither a payee nor a bank identifier",
		})
	}

	candidate := &model.Candidate{
		Date:       ofxTx.DtPosted.Time,
		Amount:     decimal.NewFromBigRat(&ofxTx.TrnAmt.Rat, 2),
		Payee:      payee,
		Memo:       memo,
		ExternalID: externalID,
		Source:     source,
	}

	return candidate, errs
}

// resolvePayee picks the best descriptive name for a transaction: the
// PAYEE aggregate if present, then NAME, then MEMO.
func resolvePayee(tx ofxgo.Transaction) (payee, memo string) {
	memo = strings.TrimSpace(string(tx.Memo))

	if tx.Payee != nil && strings.TrimSpace(string(tx.Payee.Name)) != "" {
		return cleanPayee(string(tx.Payee.Name)), memo
	}

	name := strings.TrimSpace(string(tx.Name))
	if name != "" {
		return cleanPayee(name), memo
	}

	return cleanPayee(memo), memo
}

// Common bank-added prefixes that obscure the actual payee.
var payeePrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// cleanPayee strips bank boilerplate from a descriptive name.
func cleanPayee(name string) string {
	name = strings.TrimSpace(name)

	for _, prefix := range payeePrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Drop leading "MM/DD " date stamps
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = name[6:]
	}

	return strings.TrimSpace(name)
}

// formatSource builds the per-statement provenance descriptor, so
// candidates from a multi-account file stay distinguishable.
func formatSource(institution, accountType, accountID string) string {
	return fmt.Sprintf("%s - %s (%s)", institution, accountType, maskAccountID(accountID))
}

// maskAccountID hides all but the last four characters of an account id.
func maskAccountID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 4 {
		return id
	}
	return "****" + id[len(id)-4:]
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}
