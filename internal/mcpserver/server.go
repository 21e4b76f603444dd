// Package mcpserver exposes a tool registry and the schema cache over the
// Model Context Protocol using mark3labs/mcp-go.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
	"github.com/shakram02/go-mcp-db-gateway/internal/schemacache"
	"github.com/shakram02/go-mcp-db-gateway/internal/tools"
)

const (
	ServerName    = "db-gateway-mcp-server"
	ServerVersion = "1.0.0"
)

const schemaMIMEType = "application/json"

// Database describes the connected backend for resource naming.
type Database interface {
	Kind() string
	DatabaseName() string
	Schemaless() bool
}

// Server bridges the registry onto an MCP server.
type Server struct {
	srv    *server.MCPServer
	reg    *tools.Registry
	cache  *schemacache.Cache
	scheme string
	dbName string
	noun   string
}

// New registers every tool in reg and a schema resource template of the form
// kind://dbName/{table}/schema.
func New(reg *tools.Registry, cache *schemacache.Cache, db Database) *Server {
	noun := "table"
	if db.Schemaless() {
		noun = "collection"
	}
	s := &Server{
		srv: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(false, true),
		),
		reg:    reg,
		cache:  cache,
		scheme: db.Kind(),
		dbName: db.DatabaseName(),
		noun:   noun,
	}

	for _, t := range reg.List() {
		s.addTool(t)
	}

	name, description := "Table schema", "Column description of a table"
	if db.Schemaless() {
		name, description = "Collection schema", "Indexed fields of a collection"
	}
	template := mcp.NewResourceTemplate(
		s.schemaURI("{table}"),
		name,
		mcp.WithTemplateDescription(description),
		mcp.WithTemplateMIMEType(schemaMIMEType),
	)
	s.srv.AddResourceTemplate(template, s.readSchema)
	return s
}

// MCP returns the underlying mcp-go server.
func (s *Server) MCP() *server.MCPServer { return s.srv }

func (s *Server) addTool(t tools.Tool) {
	schemaJSON, _ := json.Marshal(t.InputSchema())
	tool := mcp.NewToolWithRawSchema(t.Name, t.Description, schemaJSON)

	name := t.Name
	s.srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := s.reg.Dispatch(ctx, tools.Invocation{Tool: name, Arguments: req.GetArguments()})
		return toCallToolResult(res), nil
	})
}

// toCallToolResult renders a success payload as indented JSON and a failure
// as an error result carrying only the failure message.
func toCallToolResult(res tools.Result) *mcp.CallToolResult {
	if !res.OK() {
		return mcp.NewToolResultError(res.Failure.Message)
	}
	body, err := json.MarshalIndent(res.Payload, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal tool result")
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal results: %v", err))
	}
	return mcp.NewToolResultText(string(body))
}

// RegisterTableResources lists the known tables and adds one concrete schema
// resource per table so clients can discover them with resources/list.
func (s *Server) RegisterTableResources(ctx context.Context) error {
	tables, err := s.cache.Tables(ctx)
	if err != nil {
		return err
	}
	for _, table := range tables {
		resource := mcp.NewResource(
			s.schemaURI(table),
			fmt.Sprintf("Schema for %s '%s'", s.noun, table),
			mcp.WithMIMEType(schemaMIMEType),
		)
		s.srv.AddResource(resource, s.readSchema)
	}
	log.Debug().Int("tables", len(tables)).Msg("registered schema resources")
	return nil
}

func (s *Server) schemaURI(table string) string {
	return fmt.Sprintf("%s://%s/%s/schema", s.scheme, s.dbName, table)
}

// tableFromURI parses scheme://db/table/schema.
func (s *Server) tableFromURI(uri string) (string, error) {
	prefix := s.scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return "", errs.New(errs.Validation, "invalid resource URI: must start with %s", prefix)
	}
	parts := strings.Split(strings.TrimPrefix(uri, prefix), "/")
	if len(parts) != 3 || parts[2] != "schema" || parts[1] == "" {
		return "", errs.New(errs.Validation, "invalid resource URI format: expected %s", s.schemaURI("<table>"))
	}
	if parts[0] != s.dbName {
		return "", errs.NotFoundf("database %q not found", parts[0])
	}
	return parts[1], nil
}

func (s *Server) readSchema(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	table, err := s.tableFromURI(uri)
	if err != nil {
		return nil, err
	}
	schema, err := s.cache.Get(ctx, table)
	if err != nil {
		kind := errs.KindOf(err)
		log.Warn().Err(err).Str("uri", uri).Str("kind", string(kind)).Msg("schema resource read failed")
		return nil, s.readFailure(kind, table)
	}
	body, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: schemaMIMEType, Text: string(body)},
	}, nil
}

// readFailure is the message a client sees for a failed schema read. Driver
// detail stays in the log.
func (s *Server) readFailure(kind errs.Kind, table string) error {
	switch kind {
	case errs.NotFound:
		return errs.NotFoundf("%s %q not found", s.noun, table)
	case errs.Timeout:
		return errs.New(errs.Timeout, "reading schema for %s %q timed out", s.noun, table)
	default:
		return errs.New(kind, "failed to read schema for %s %q", s.noun, table)
	}
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.srv)
	stdio.SetErrorLogger(stdlog.New(log.Logger, "", 0))
	return stdio.Listen(ctx, in, out)
}
