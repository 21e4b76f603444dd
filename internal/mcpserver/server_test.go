package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shakram02/go-mcp-db-gateway/internal/backend"
	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
	"github.com/shakram02/go-mcp-db-gateway/internal/schemacache"
	"github.com/shakram02/go-mcp-db-gateway/internal/tools"
)

type staticSource map[string]backend.TableSchema

func (s staticSource) ListTables(context.Context) ([]string, error) {
	return []string{"orders", "users"}, nil
}

func (s staticSource) Schema(_ context.Context, table string) (backend.TableSchema, error) {
	if table == "audit" {
		return nil, errors.New(`pq: permission denied for relation audit (user "svc_admin")`)
	}
	schema, ok := s[table]
	if !ok {
		return nil, errs.NotFoundf("table %q not found", table)
	}
	return schema, nil
}

type testDatabase struct {
	kind       string
	name       string
	schemaless bool
}

func (d testDatabase) Kind() string         { return d.kind }
func (d testDatabase) DatabaseName() string { return d.name }
func (d testDatabase) Schemaless() bool     { return d.schemaless }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerFor(t, testDatabase{kind: "postgres", name: "shop"})
}

func newTestServerFor(t *testing.T, db Database) *Server {
	t.Helper()
	reg := tools.NewRegistry(time.Second)
	require.NoError(t, reg.Register(tools.Tool{
		Name:        "echo",
		Description: "Echo the arguments",
		Required:    []string{"value"},
		Params:      []tools.Param{{Name: "value", Type: "string"}},
		Handler: func(_ context.Context, args tools.Args) (any, error) {
			return map[string]any{"value": args["value"]}, nil
		},
	}))
	require.NoError(t, reg.Register(tools.Tool{
		Name: "fail",
		Handler: func(context.Context, tools.Args) (any, error) {
			return nil, errs.New(errs.Backend, "duplicate key value")
		},
	}))

	cache := schemacache.New(staticSource{
		"users":  {{Name: "id", DataType: "integer", Key: "PRI"}},
		"orders": {{Name: "invoice", DataType: "text"}},
	})
	return New(reg, cache, db)
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func rpc(t *testing.T, s *Server, id int, method string, params any) rpcResponse {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)

	out, err := json.Marshal(s.MCP().HandleMessage(context.Background(), raw))
	require.NoError(t, err)

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	return resp
}

func initialize(t *testing.T, s *Server) {
	t.Helper()
	resp := rpc(t, s, 0, "initialize", map[string]any{
		"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
		"clientInfo":      map[string]any{"name": "test", "version": "0"},
		"capabilities":    map[string]any{},
	})
	require.Nil(t, resp.Error)
}

type callResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func TestServer_ToolsList(t *testing.T) {
	s := newTestServer(t)
	initialize(t, s)

	resp := rpc(t, s, 1, "tools/list", nil)
	require.Nil(t, resp.Error)

	var result struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))

	names := map[string]map[string]any{}
	for _, tool := range result.Tools {
		names[tool.Name] = tool.InputSchema
	}
	require.Contains(t, names, "echo")
	require.Contains(t, names, "fail")
	assert.Equal(t, []any{"value"}, names["echo"]["required"])
}

func TestServer_ToolsCall(t *testing.T) {
	s := newTestServer(t)
	initialize(t, s)

	tests := []struct {
		name      string
		tool      string
		args      map[string]any
		wantError bool
		wantText  string
	}{
		{
			name:     "success is JSON text",
			tool:     "echo",
			args:     map[string]any{"value": "hi"},
			wantText: "{\n  \"value\": \"hi\"\n}",
		},
		{
			name:      "missing argument",
			tool:      "echo",
			args:      map[string]any{},
			wantError: true,
			wantText:  "missing required argument(s): value",
		},
		{
			name:      "backend failure message",
			tool:      "fail",
			wantError: true,
			wantText:  "duplicate key value",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpc(t, s, i+10, "tools/call", map[string]any{"name": tt.tool, "arguments": tt.args})
			require.Nil(t, resp.Error)

			var result callResult
			require.NoError(t, json.Unmarshal(resp.Result, &result))
			assert.Equal(t, tt.wantError, result.IsError)
			require.Len(t, result.Content, 1)
			assert.Equal(t, "text", result.Content[0].Type)
			assert.Equal(t, tt.wantText, result.Content[0].Text)
		})
	}
}

func TestServer_SchemaResources(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.RegisterTableResources(context.Background()))
	initialize(t, s)

	resp := rpc(t, s, 1, "resources/list", nil)
	require.Nil(t, resp.Error)
	var list struct {
		Resources []struct {
			URI string `json:"uri"`
		} `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	var uris []string
	for _, r := range list.Resources {
		uris = append(uris, r.URI)
	}
	assert.ElementsMatch(t, []string{"postgres://shop/orders/schema", "postgres://shop/users/schema"}, uris)

	resp = rpc(t, s, 2, "resources/read", map[string]any{"uri": "postgres://shop/users/schema"})
	require.Nil(t, resp.Error)
	var read struct {
		Contents []struct {
			URI  string `json:"uri"`
			Text string `json:"text"`
		} `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &read))
	require.Len(t, read.Contents, 1)

	var columns []backend.Column
	require.NoError(t, json.Unmarshal([]byte(read.Contents[0].Text), &columns))
	require.Len(t, columns, 1)
	assert.Equal(t, "id", columns[0].Name)
	assert.Equal(t, "PRI", columns[0].Key)
}

func TestServer_ResourceNames(t *testing.T) {
	tests := []struct {
		name string
		db   testDatabase
		want []string
	}{
		{
			name: "relational",
			db:   testDatabase{kind: "postgres", name: "shop"},
			want: []string{"Schema for table 'orders'", "Schema for table 'users'"},
		},
		{
			name: "schemaless",
			db:   testDatabase{kind: "mongo", name: "shop", schemaless: true},
			want: []string{"Schema for collection 'orders'", "Schema for collection 'users'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServerFor(t, tt.db)
			require.NoError(t, s.RegisterTableResources(context.Background()))
			initialize(t, s)

			resp := rpc(t, s, 1, "resources/list", nil)
			require.Nil(t, resp.Error)
			var list struct {
				Resources []struct {
					Name string `json:"name"`
				} `json:"resources"`
			}
			require.NoError(t, json.Unmarshal(resp.Result, &list))
			var names []string
			for _, r := range list.Resources {
				names = append(names, r.Name)
			}
			assert.ElementsMatch(t, tt.want, names)
		})
	}
}

func TestServer_ReadSchemaFailures(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		uri      string
		wantKind errs.Kind
		wantMsg  string
	}{
		{"postgres://shop/audit/schema", errs.Backend, `failed to read schema for table "audit"`},
		{"postgres://shop/ghost/schema", errs.NotFound, `table "ghost" not found`},
		{"postgres://other/users/schema", errs.NotFound, `database "other" not found`},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			req := mcp.ReadResourceRequest{}
			req.Params.URI = tt.uri
			_, err := s.readSchema(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errs.KindOf(err))
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.NotContains(t, err.Error(), "svc_admin")
		})
	}
}

func TestServer_TableFromURI(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		uri      string
		want     string
		wantKind errs.Kind
	}{
		{uri: "postgres://shop/users/schema", want: "users"},
		{uri: "mysql://shop/users/schema", wantKind: errs.Validation},
		{uri: "postgres://shop/users", wantKind: errs.Validation},
		{uri: "postgres://shop//schema", wantKind: errs.Validation},
		{uri: "postgres://other/users/schema", wantKind: errs.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := s.tableFromURI(tt.uri)
			if tt.wantKind != "" {
				assert.True(t, errs.Is(err, tt.wantKind), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToCallToolResult(t *testing.T) {
	ok := toCallToolResult(tools.Result{Payload: []string{"a"}})
	assert.False(t, ok.IsError)
	require.Len(t, ok.Content, 1)
	assert.Equal(t, "[\n  \"a\"\n]", ok.Content[0].(mcp.TextContent).Text)

	failed := toCallToolResult(tools.Result{Failure: &tools.Failure{Kind: errs.RejectedQuery, Message: "Only read-only SELECT queries are allowed"}})
	assert.True(t, failed.IsError)
	assert.Equal(t, "Only read-only SELECT queries are allowed", failed.Content[0].(mcp.TextContent).Text)

	unencodable := toCallToolResult(tools.Result{Payload: map[string]any{"c": make(chan int)}})
	assert.True(t, unencodable.IsError)
}
