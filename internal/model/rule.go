package model

import "time"

// MatchRule maps a payee pattern to a category. Pattern is either a literal
// substring or a regular expression, both matched case-insensitively.
// Rules are authored by users, so regex patterns are untrusted input.
type MatchRule struct {
	ID         int64      `json:"id"`
	Pattern    string     `json:"pattern"`
	IsRegex    bool       `json:"is_regex"`
	Category   string     `json:"category"`
	MatchCount int        `json:"match_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
