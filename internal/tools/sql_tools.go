package tools

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/shakram02/go-mcp-db-gateway/internal/backend"
	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
	"github.com/shakram02/go-mcp-db-gateway/internal/schemacache"
	"github.com/shakram02/go-mcp-db-gateway/internal/validation"
)

// DefaultPreviewLimit is the preview_table row count when limit is omitted.
const DefaultPreviewLimit = 10

// Options adjusts which tools are registered.
type Options struct {
	// ReadOnly leaves out every tool that writes.
	ReadOnly bool
}

type mutationResult struct {
	Success    bool   `json:"success"`
	Table      string `json:"table,omitempty"`
	Collection string `json:"collection,omitempty"`
	backend.Mutation
}

// RegisterSQL registers the relational tool set for b.
func RegisterSQL(r *Registry, b backend.SQL, cache *schemacache.Cache, opts Options) error {
	h := &sqlTools{b: b, cache: cache}

	toolset := []Tool{
		{
			Name:        "list_tables",
			Description: "List all base tables in the database",
			Handler:     h.listTables,
		},
		{
			Name:        "get_table_schema",
			Description: "Get column names and types for a specific table",
			Required:    []string{"table_name"},
			Params:      []Param{{Name: "table_name", Type: "string", Description: "Table to describe"}},
			Handler:     h.tableSchema,
		},
		{
			Name:        "preview_table",
			Description: "Preview the first N rows of a table",
			Required:    []string{"table_name"},
			Params: []Param{
				{Name: "table_name", Type: "string", Description: "Table to preview"},
				{Name: "limit", Type: "integer", Description: "Number of rows", Default: DefaultPreviewLimit},
			},
			Handler: h.previewTable,
		},
		{
			Name:        "run_query",
			Description: "Execute a custom read-only SQL query (SELECT or WITH only)",
			Required:    []string{"query"},
			Params:      []Param{{Name: "query", Type: "string", Description: "A single SELECT or WITH statement"}},
			Handler:     h.runQuery,
		},
		{
			Name:        "database_metadata",
			Description: "Fetch metadata for all tables and their columns",
			Handler:     h.metadata,
		},
		{
			Name:        "get_database_metadata",
			Description: "Get metadata (schema) for all tables in the database",
			Handler:     h.metadata,
		},
		{
			Name:        "refresh_schema",
			Description: "Reload the cached table list and schemas from the database",
			Handler:     refreshHandler(cache),
		},
	}

	if !opts.ReadOnly {
		toolset = append(toolset,
			Tool{
				Name:        "insert_row",
				Description: "Insert a new row into a table",
				Required:    []string{"table", "data"},
				Params: []Param{
					{Name: "table", Type: "string", Description: "Target table"},
					{Name: "data", Type: "object", Description: "Column to value mapping"},
				},
				Handler: h.insertRow,
			},
			Tool{
				Name:        "update_row",
				Description: "Update the rows matching a key in a table",
				Required:    []string{"table", "key", "data"},
				Params: []Param{
					{Name: "table", Type: "string", Description: "Target table"},
					{Name: "key", Type: "object", Description: "Column to value mapping identifying the row"},
					{Name: "data", Type: "object", Description: "Columns to set"},
				},
				Handler: h.updateRow,
			},
			Tool{
				Name:        "delete_row",
				Description: "Delete the rows matching a key from a table",
				Required:    []string{"table", "key"},
				Params: []Param{
					{Name: "table", Type: "string", Description: "Target table"},
					{Name: "key", Type: "object", Description: "Column to value mapping identifying the row"},
				},
				Handler: h.deleteRow,
			},
		)
	}

	for _, t := range toolset {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

type sqlTools struct {
	b     backend.SQL
	cache *schemacache.Cache
}

func (h *sqlTools) listTables(ctx context.Context, _ Args) (any, error) {
	return h.cache.Tables(ctx)
}

func (h *sqlTools) tableSchema(ctx context.Context, args Args) (any, error) {
	table, err := args.String("table_name")
	if err != nil {
		return nil, err
	}
	return h.cache.Get(ctx, table)
}

func (h *sqlTools) previewTable(ctx context.Context, args Args) (any, error) {
	table, err := args.String("table_name")
	if err != nil {
		return nil, err
	}
	limit, err := args.Int("limit", DefaultPreviewLimit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errs.New(errs.Validation, "'limit' must be positive")
	}

	stmt := h.b.PreviewStatement(table)
	if err := checkReadOnly(h.b.Validator(), stmt); err != nil {
		return nil, err
	}
	return h.b.Query(ctx, stmt, limit)
}

func (h *sqlTools) runQuery(ctx context.Context, args Args) (any, error) {
	query, err := args.String("query")
	if err != nil {
		return nil, err
	}
	if err := checkReadOnly(h.b.Validator(), query); err != nil {
		return nil, err
	}
	return h.b.Query(ctx, query)
}

func (h *sqlTools) metadata(ctx context.Context, _ Args) (any, error) {
	return h.cache.All(ctx)
}

func (h *sqlTools) insertRow(ctx context.Context, args Args) (any, error) {
	table, err := args.String("table")
	if err != nil {
		return nil, err
	}
	data, err := args.Object("data")
	if err != nil {
		return nil, err
	}
	m, err := h.b.Insert(ctx, table, data)
	if err != nil {
		return nil, err
	}
	return mutationResult{Success: true, Table: table, Mutation: m}, nil
}

func (h *sqlTools) updateRow(ctx context.Context, args Args) (any, error) {
	table, err := args.String("table")
	if err != nil {
		return nil, err
	}
	key, err := args.Object("key")
	if err != nil {
		return nil, err
	}
	data, err := args.Object("data")
	if err != nil {
		return nil, err
	}
	m, err := h.b.Update(ctx, table, key, data)
	if err != nil {
		return nil, err
	}
	return mutationResult{Success: true, Table: table, Mutation: m}, nil
}

func (h *sqlTools) deleteRow(ctx context.Context, args Args) (any, error) {
	table, err := args.String("table")
	if err != nil {
		return nil, err
	}
	key, err := args.Object("key")
	if err != nil {
		return nil, err
	}
	m, err := h.b.Delete(ctx, table, key)
	if err != nil {
		return nil, err
	}
	return mutationResult{Success: true, Table: table, Mutation: m}, nil
}

// checkReadOnly hides the rejection reason from the caller and logs it.
func checkReadOnly(v *validation.Validator, stmt string) error {
	if err := v.Check(stmt); err != nil {
		log.Debug().Err(err).Str("query", stmt).Msg("query rejected")
		return errs.New(errs.RejectedQuery, validation.RejectedMessage)
	}
	return nil
}

func refreshHandler(cache *schemacache.Cache) Handler {
	return func(ctx context.Context, _ Args) (any, error) {
		if err := cache.Refresh(ctx); err != nil {
			return nil, err
		}
		tables, err := cache.Tables(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"refreshed": true, "tables": len(tables)}, nil
	}
}
