package tools

import (
	"strings"

	"github.com/shakram02/go-mcp-db-gateway/internal/config"
)

// CollectionResolver guesses a collection from a free-text prompt. It is a
// best-effort fallback for callers that omit the collection: rules are
// tried in order and the first keyword found anywhere in the prompt wins,
// so "orders by user" resolves to users with the default rules.
type CollectionResolver struct {
	rules []config.PromptRule
}

// NewCollectionResolver uses rules in the given order, or the default
// user/order/product rules if rules is empty.
func NewCollectionResolver(rules []config.PromptRule) *CollectionResolver {
	if len(rules) == 0 {
		rules = config.DefaultPromptRules
	}
	normalized := make([]config.PromptRule, 0, len(rules))
	for _, r := range rules {
		if r.Keyword == "" || r.Collection == "" {
			continue
		}
		normalized = append(normalized, config.PromptRule{
			Keyword:    strings.ToLower(r.Keyword),
			Collection: r.Collection,
		})
	}
	return &CollectionResolver{rules: normalized}
}

// Resolve returns the collection for prompt and whether any rule matched.
func (r *CollectionResolver) Resolve(prompt string) (string, bool) {
	p := strings.ToLower(prompt)
	for _, rule := range r.rules {
		if strings.Contains(p, rule.Keyword) {
			return rule.Collection, true
		}
	}
	return "", false
}
