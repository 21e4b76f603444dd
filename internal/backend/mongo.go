package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/shakram02/go-mcp-db-gateway/internal/config"
	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
)

// Server error codes that mean "the thing you named does not exist".
const (
	codeNamespaceNotFound = 26
	codeIndexNotFound     = 27
)

// MongoBackend implements Document on a MongoDB database. The driver pools
// connections internally.
type MongoBackend struct {
	client  *mongo.Client
	db      *mongo.Database
	maxRows int
}

var _ Document = (*MongoBackend)(nil)

// OpenMongo connects to cfg.URI and binds to cfg.Database.
func OpenMongo(ctx context.Context, cfg config.MongoConfig, maxRows int) (*MongoBackend, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, fmt.Errorf("mongo uri and database are required")
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(ConnectionTimeout).
		SetMaxPoolSize(MaxConnectionsOpen).
		SetMaxConnIdleTime(time.Hour)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, ConnectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	return &MongoBackend{
		client:  client,
		db:      client.Database(cfg.Database),
		maxRows: maxRows,
	}, nil
}

func (b *MongoBackend) Kind() string         { return config.BackendMongo }
func (b *MongoBackend) DatabaseName() string { return b.db.Name() }
func (b *MongoBackend) Schemaless() bool     { return true }

// ListTables returns collection names in the order the server reports them.
func (b *MongoBackend) ListTables(ctx context.Context) ([]string, error) {
	names, err := b.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// Schema describes a collection by its indexed fields. Documents carry no
// declared types, so DataType is "index" and Key names the index.
func (b *MongoBackend) Schema(ctx context.Context, collection string) (TableSchema, error) {
	if err := b.requireCollection(ctx, collection); err != nil {
		return nil, err
	}
	indexes, err := b.listIndexes(ctx, collection)
	if err != nil {
		return nil, err
	}

	schema := TableSchema{}
	for _, idx := range indexes {
		for _, k := range idx.Keys {
			col := Column{Name: k.Field, DataType: "index", Key: idx.Name}
			if idx.Unique {
				col.Extra = "unique"
			}
			schema = append(schema, col)
		}
	}
	return schema, nil
}

func (b *MongoBackend) Insert(ctx context.Context, collection string, doc map[string]any) (Mutation, error) {
	if len(doc) == 0 {
		return Mutation{}, errs.New(errs.Validation, "document is empty")
	}
	res, err := b.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return Mutation{}, fmt.Errorf("insert failed: %w", err)
	}
	return Mutation{InsertedID: normalizeValue(res.InsertedID), Affected: 1}, nil
}

func (b *MongoBackend) Update(ctx context.Context, collection string, filter, update map[string]any) (Mutation, error) {
	if len(update) == 0 {
		return Mutation{}, errs.New(errs.Validation, "update is empty")
	}
	res, err := b.db.Collection(collection).UpdateOne(ctx, prepareFilter(filter), bson.M{"$set": update})
	if err != nil {
		return Mutation{}, fmt.Errorf("update failed: %w", err)
	}
	return Mutation{Matched: res.MatchedCount, Affected: res.ModifiedCount}, nil
}

func (b *MongoBackend) Delete(ctx context.Context, collection string, filter map[string]any) (Mutation, error) {
	res, err := b.db.Collection(collection).DeleteOne(ctx, prepareFilter(filter))
	if err != nil {
		return Mutation{}, fmt.Errorf("delete failed: %w", err)
	}
	return Mutation{Matched: res.DeletedCount, Affected: res.DeletedCount}, nil
}

func (b *MongoBackend) Find(ctx context.Context, collection string, q FindQuery) ([]Row, error) {
	opts := options.Find()
	if q.Projection != nil {
		opts.SetProjection(q.Projection)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	filter := prepareFilter(q.Filter)
	if filter == nil {
		filter = bson.M{}
	}
	cur, err := b.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find failed: %w", err)
	}
	defer cur.Close(ctx)

	results := []Row{}
	for cur.Next(ctx) {
		if len(results) >= b.maxRows {
			results = append(results, truncationWarning(b.maxRows))
			break
		}
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %d: %w", len(results)+1, err)
		}
		results = append(results, Row(normalizeDocument(doc)))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return results, nil
}

func (b *MongoBackend) CreateIndex(ctx context.Context, collection, field string, unique bool) (string, error) {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(unique),
	}
	name, err := b.db.Collection(collection).Indexes().CreateOne(ctx, model)
	if err != nil {
		return "", fmt.Errorf("create index failed: %w", err)
	}
	return name, nil
}

func (b *MongoBackend) DropIndex(ctx context.Context, collection, name string) error {
	if _, err := b.db.Collection(collection).Indexes().DropOne(ctx, name); err != nil {
		if hasErrorCode(err, codeIndexNotFound, codeNamespaceNotFound) {
			return errs.NotFoundf("index %q not found on collection %q", name, collection)
		}
		return fmt.Errorf("drop index failed: %w", err)
	}
	return nil
}

type indexSpec struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

// Indexes fails with NotFound for an unknown collection. The driver reports
// a missing namespace as an empty index list, so existence is checked first.
func (b *MongoBackend) Indexes(ctx context.Context, collection string) ([]Index, error) {
	if err := b.requireCollection(ctx, collection); err != nil {
		return nil, err
	}
	return b.listIndexes(ctx, collection)
}

func (b *MongoBackend) listIndexes(ctx context.Context, collection string) ([]Index, error) {
	cur, err := b.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes failed: %w", err)
	}
	defer cur.Close(ctx)

	var specs []indexSpec
	if err := cur.All(ctx, &specs); err != nil {
		return nil, fmt.Errorf("failed to decode indexes: %w", err)
	}

	indexes := make([]Index, 0, len(specs))
	for _, s := range specs {
		idx := Index{Name: s.Name, Unique: s.Unique}
		for _, e := range s.Key {
			idx.Keys = append(idx.Keys, IndexKey{Field: e.Key, Order: normalizeValue(e.Value)})
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func (b *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()
	return b.client.Disconnect(ctx)
}

func (b *MongoBackend) requireCollection(ctx context.Context, collection string) error {
	names, err := b.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return fmt.Errorf("failed to look up collection: %w", err)
	}
	if len(names) == 0 {
		return errs.NotFoundf("collection %q not found", collection)
	}
	return nil
}

func hasErrorCode(err error, codes ...int32) bool {
	var ce mongo.CommandError
	if !errors.As(err, &ce) {
		return false
	}
	for _, c := range codes {
		if ce.Code == c {
			return true
		}
	}
	return false
}

// prepareFilter turns a 24-hex-digit string _id into an ObjectID so filters
// copied from earlier results match.
func prepareFilter(filter map[string]any) map[string]any {
	if filter == nil {
		return nil
	}
	id, ok := filter["_id"].(string)
	if !ok {
		return filter
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return filter
	}
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = v
	}
	out["_id"] = oid
	return out
}

// normalizeDocument converts BSON-specific values into plain JSON-friendly
// Go values.
func normalizeDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Decimal128:
		return val.String()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case primitive.M:
		return normalizeDocument(val)
	case map[string]any:
		return normalizeDocument(val)
	case primitive.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
