// Package model defines the core data structures for the restage application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is a single transaction line parsed out of a bank statement
// file, before any classification or review has happened. Debits carry a
// negative amount, credits a positive one.
type Candidate struct {
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Payee      string          `json:"payee"`
	Memo       string          `json:"memo,omitempty"`
	ExternalID string          `json:"external_id,omitempty"`
	Source     string          `json:"source"`
}

// ParseError describes a non-fatal problem encountered while parsing a
// statement file. Parsing continues past these.
type ParseError struct {
	Statement string `json:"statement,omitempty"`
	Message   string `json:"message"`
}

func (e ParseError) Error() string {
	if e.Statement != "" {
		return e.Statement + ": " + e.Message
	}
	return e.Message
}

// ParseResult is the outcome of parsing one statement file: the candidates
// that could be extracted plus every error collected along the way.
type ParseResult struct {
	Candidates []Candidate  `json:"candidates"`
	Errors     []ParseError `json:"errors"`
}
