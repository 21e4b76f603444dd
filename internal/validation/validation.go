// Package validation decides whether a query string is safe to run from a
// tool that promises read-only semantics.
//
// Matching is deliberately coarse: forbidden keywords are found by substring
// search over the upper-cased text, so a keyword inside a string literal or
// identifier (`updated_at`) also rejects the query. False positives are
// acceptable, false negatives are not.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// RejectedMessage is the fixed text returned to callers for any rejection.
const RejectedMessage = "Only read-only SELECT queries are allowed"

var allowedPrefixes = []string{"SELECT", "WITH"}

// forbiddenKeywords are matched as substrings of the upper-cased query.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER",
	"TRUNCATE", "MERGE", "REPLACE", "EXEC", "EXECUTE",
	"GRANT", "REVOKE", ";",
}

// stackedStatement catches a second statement after a semicolon. It overlaps
// with the ";" keyword above; both checks stay.
var stackedStatement = regexp.MustCompile(`;\s*\w+`)

// Pattern is an additional rejection rule, usually dialect specific.
type Pattern struct {
	re   *regexp.Regexp
	desc string
}

// NewPattern compiles expr into a Pattern. It panics on a bad expression and
// is meant for package-level pattern tables.
func NewPattern(expr, desc string) Pattern {
	return Pattern{re: regexp.MustCompile(expr), desc: desc}
}

func (p Pattern) String() string { return p.desc }

// Validator accepts or rejects whole statements. The zero value applies only
// the common rules.
type Validator struct {
	extra []Pattern
}

// New returns a Validator that also rejects anything matching extra.
func New(extra ...Pattern) *Validator {
	return &Validator{extra: extra}
}

// Check returns nil if query is accepted, otherwise an error describing the
// first rule that rejected it. The description is for logs; callers should
// report RejectedMessage.
func (v *Validator) Check(query string) error {
	normalized := strings.ToUpper(strings.TrimSpace(query))
	if normalized == "" {
		return fmt.Errorf("empty query")
	}

	hasAllowedPrefix := false
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			hasAllowedPrefix = true
			break
		}
	}
	if !hasAllowedPrefix {
		return fmt.Errorf("query must start with SELECT or WITH")
	}

	for _, kw := range forbiddenKeywords {
		if strings.Contains(normalized, kw) {
			return fmt.Errorf("query contains forbidden keyword: %s", kw)
		}
	}

	if stackedStatement.MatchString(normalized) {
		return fmt.Errorf("multiple statements are not allowed")
	}

	if v == nil {
		return nil
	}
	for _, p := range v.extra {
		if p.re.MatchString(query) {
			return fmt.Errorf("query contains forbidden pattern: %s", p.desc)
		}
	}
	return nil
}

// Accept reports whether query passes every rule.
func (v *Validator) Accept(query string) bool {
	return v.Check(query) == nil
}
