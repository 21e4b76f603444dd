package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shakram02/go-mcp-db-gateway/internal/config"
)

func TestCollectionResolver(t *testing.T) {
	def := NewCollectionResolver(nil)
	custom := NewCollectionResolver([]config.PromptRule{
		{Keyword: "Invoice", Collection: "billing"},
		{Keyword: "", Collection: "ignored"},
		{Keyword: "order", Collection: "sales"},
	})

	tests := []struct {
		name     string
		resolver *CollectionResolver
		prompt   string
		want     string
		wantOK   bool
	}{
		{"orders", def, "show me all orders", "orders", true},
		{"case insensitive", def, "List PRODUCTS please", "products", true},
		{"first rule wins", def, "orders placed by each user", "users", true},
		{"no match", def, "what is the weather", "", false},
		{"empty prompt", def, "", "", false},
		{"custom keyword lowercased", custom, "latest invoices", "billing", true},
		{"custom order", custom, "open orders", "sales", true},
		{"custom rules replace defaults", custom, "all users", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.resolver.Resolve(tt.prompt)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
