package tools

import (
	"context"

	"github.com/shakram02/go-mcp-db-gateway/internal/backend"
	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
	"github.com/shakram02/go-mcp-db-gateway/internal/schemacache"
)

// MissingCollectionMessage is returned by find when neither the collection
// argument nor the prompt names a collection.
const MissingCollectionMessage = "'collection' is missing. Please specify it or include it in the prompt."

// RegisterDocument registers the document tool set for d.
func RegisterDocument(r *Registry, d backend.Document, cache *schemacache.Cache, resolver *CollectionResolver, opts Options) error {
	if resolver == nil {
		resolver = NewCollectionResolver(nil)
	}
	h := &documentTools{d: d, cache: cache, resolver: resolver}

	toolset := []Tool{
		{
			Name:        "find",
			Description: "Find documents in a collection. The collection may be inferred from the prompt.",
			Params: []Param{
				{Name: "collection", Type: "string", Description: "Collection to query"},
				{Name: "prompt", Type: "string", Description: "Free text used to infer the collection when it is omitted"},
				{Name: "filter", Type: "object", Description: "Query filter", Default: map[string]any{}},
				{Name: "projection", Type: "object", Description: "Fields to include or exclude", Default: map[string]any{"_id": 0}},
				{Name: "limit", Type: "integer", Description: "Maximum number of documents"},
			},
			Handler: h.find,
		},
		{
			Name:        "listCollections",
			Description: "List all collections in the database",
			Handler:     h.listCollections,
		},
		{
			Name:        "indexes",
			Description: "List the indexes of a collection",
			Required:    []string{"collection"},
			Params:      []Param{{Name: "collection", Type: "string", Description: "Collection to inspect"}},
			Handler:     h.indexes,
		},
		{
			Name:        "get_collection_schema",
			Description: "Describe a collection by its indexed fields",
			Required:    []string{"collection"},
			Params:      []Param{{Name: "collection", Type: "string", Description: "Collection to describe"}},
			Handler:     h.schema,
		},
		{
			Name:        "refresh_schema",
			Description: "Reload the cached collection list and index metadata",
			Handler:     refreshHandler(cache),
		},
	}

	if !opts.ReadOnly {
		toolset = append(toolset,
			Tool{
				Name:        "insertOne",
				Description: "Insert a document into a collection",
				Required:    []string{"collection", "document"},
				Params: []Param{
					{Name: "collection", Type: "string", Description: "Target collection"},
					{Name: "document", Type: "object", Description: "Document to insert"},
				},
				Handler: h.insertOne,
			},
			Tool{
				Name:        "updateOne",
				Description: "Update the first document matching a filter",
				Required:    []string{"collection", "filter", "update"},
				Params: []Param{
					{Name: "collection", Type: "string", Description: "Target collection"},
					{Name: "filter", Type: "object", Description: "Filter selecting the document"},
					{Name: "update", Type: "object", Description: "Fields to set"},
				},
				Handler: h.updateOne,
			},
			Tool{
				Name:        "deleteOne",
				Description: "Delete the first document matching a filter",
				Required:    []string{"collection", "filter"},
				Params: []Param{
					{Name: "collection", Type: "string", Description: "Target collection"},
					{Name: "filter", Type: "object", Description: "Filter selecting the document"},
				},
				Handler: h.deleteOne,
			},
			Tool{
				Name:        "createIndex",
				Description: "Create an ascending index on a field",
				Required:    []string{"collection", "field"},
				Params: []Param{
					{Name: "collection", Type: "string", Description: "Target collection"},
					{Name: "field", Type: "string", Description: "Field to index"},
					{Name: "unique", Type: "boolean", Description: "Enforce uniqueness", Default: false},
				},
				Handler: h.createIndex,
			},
			Tool{
				Name:        "dropIndex",
				Description: "Drop an index by name",
				Required:    []string{"collection", "index"},
				Params: []Param{
					{Name: "collection", Type: "string", Description: "Target collection"},
					{Name: "index", Type: "string", Description: "Index name"},
				},
				Handler: h.dropIndex,
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

type documentTools struct {
	d        backend.Document
	cache    *schemacache.Cache
	resolver *CollectionResolver
}

func (h *documentTools) find(ctx context.Context, args Args) (any, error) {
	collection, err := args.String("collection")
	if err != nil {
		return nil, err
	}
	if collection == "" {
		prompt, err := args.String("prompt")
		if err != nil {
			return nil, err
		}
		resolved, ok := h.resolver.Resolve(prompt)
		if !ok {
			return nil, errs.New(errs.Validation, "%s", MissingCollectionMessage)
		}
		collection = resolved
	}

	filter, err := args.Object("filter")
	if err != nil {
		return nil, err
	}
	projection := map[string]any{"_id": 0}
	if _, given := args["projection"]; given {
		if projection, err = args.Object("projection"); err != nil {
			return nil, err
		}
		if len(projection) == 0 {
			projection = nil
		}
	}
	limit, err := args.Int("limit", 0)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, errs.New(errs.Validation, "'limit' must not be negative")
	}

	return h.d.Find(ctx, collection, backend.FindQuery{
		Filter:     filter,
		Projection: projection,
		Limit:      limit,
	})
}

func (h *documentTools) listCollections(ctx context.Context, _ Args) (any, error) {
	return h.cache.Tables(ctx)
}

func (h *documentTools) indexes(ctx context.Context, args Args) (any, error) {
	collection, err := args.String("collection")
	if err != nil {
		return nil, err
	}
	return h.d.Indexes(ctx, collection)
}

func (h *documentTools) schema(ctx context.Context, args Args) (any, error) {
	collection, err := args.String("collection")
	if err != nil {
		return nil, err
	}
	return h.cache.Get(ctx, collection)
}

func (h *documentTools) insertOne(ctx context.Context, args Args) (any, error) {
	collection, err := args.String("collection")
	if err != nil {
		return nil, err
	}
	doc, err := args.Object("document")
	if err != nil {
		return nil, err
	}
	m, err := h.d.Insert(ctx, collection, doc)
	if err != nil {
		return nil, err
	}
	return mutationResult{Success: true, Collection: collection, Mutation: m}, nil
}

func (h *documentTools) updateOne(ctx context.Context, args Args) (any, error) {
	collection, err := args.String("collection")
	if err != nil {
		return nil, err
	}
	filter, err := nonEmptyObject(args, "filter")
	if err != nil {
		return nil, err
	}
	update, err := args.Object("update")
	if err != nil {
		return nil, err
	}
	m, err := h.d.Update(ctx, collection, filter, update)
	if err != nil {
		return nil, err
	}
	return mutationResult{Success: true, Collection: collection, Mutation: m}, nil
}

func (h *documentTools) deleteOne(ctx context.Context, args Args) (any, error) {
	collection, err := args.String("collection")
	if err != nil {
		return nil, err
	}
	filter, err := nonEmptyObject(args, "filter")
	if err != nil {
		return nil, err
	}
	m, err := h.d.Delete(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	return mutationResult{Success: true, Collection: collection, Mutation: m}, nil
}

func (h *documentTools) createIndex(ctx context.Context, args Args) (any, error) {
	collection, err := args.String("collection")
	if err != nil {
		return nil, err
	}
	field, err := args.String("field")
	if err != nil {
		return nil, err
	}
	unique, err := args.Bool("unique", false)
	if err != nil {
		return nil, err
	}
	name, err := h.d.CreateIndex(ctx, collection, field, unique)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "collection": collection, "index": name}, nil
}

func (h *documentTools) dropIndex(ctx context.Context, args Args) (any, error) {
	collection, err := args.String("collection")
	if err != nil {
		return nil, err
	}
	name, err := args.String("index")
	if err != nil {
		return nil, err
	}
	if err := h.d.DropIndex(ctx, collection, name); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "collection": collection, "dropped": name}, nil
}

// nonEmptyObject returns the mapping under key, which must have at least one
// entry.
func nonEmptyObject(args Args, key string) (map[string]any, error) {
	m, err := args.Object(key)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errs.New(errs.Validation, "'%s' must not be empty", key)
	}
	return m, nil
}
