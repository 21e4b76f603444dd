package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
)

func TestNormalizeDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	doc := bson.M{
		"_id":     oid,
		"created": primitive.NewDateTimeFromTime(when),
		"items": primitive.A{
			bson.D{{Key: "code", Value: "85123A"}, {Key: "qty", Value: int32(6)}},
		},
		"customer": bson.M{"ref": oid},
		"total":    15.3,
	}

	got := normalizeDocument(doc)
	assert.Equal(t, oid.Hex(), got["_id"])
	assert.Equal(t, when, got["created"])
	assert.Equal(t, []any{map[string]any{"code": "85123A", "qty": int32(6)}}, got["items"])
	assert.Equal(t, map[string]any{"ref": oid.Hex()}, got["customer"])
	assert.Equal(t, 15.3, got["total"])
}

func TestPrepareFilter(t *testing.T) {
	oid := primitive.NewObjectID()

	got := prepareFilter(map[string]any{"_id": oid.Hex(), "status": "open"})
	assert.Equal(t, oid, got["_id"])
	assert.Equal(t, "open", got["status"])

	plain := map[string]any{"_id": "custom-key"}
	assert.Equal(t, plain, prepareFilter(plain))
	assert.Nil(t, prepareFilter(nil))
}

func newMockMongo(mt *mtest.T, maxRows int) *MongoBackend {
	return &MongoBackend{client: mt.Client, db: mt.DB, maxRows: maxRows}
}

func listCollectionsResponse(mt *mtest.T, names ...string) bson.D {
	batch := make([]bson.D, 0, len(names))
	for _, n := range names {
		batch = append(batch, bson.D{{Key: "name", Value: n}, {Key: "type", Value: "collection"}})
	}
	return mtest.CreateCursorResponse(0, mt.DB.Name()+".$cmd.listCollections", mtest.FirstBatch, batch...)
}

func TestMongoBackend(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("list collections in server order", func(mt *mtest.T) {
		b := newMockMongo(mt, 100)
		mt.AddMockResponses(listCollectionsResponse(mt, "users", "orders"))

		names, err := b.ListTables(ctx)
		require.NoError(mt, err)
		assert.Equal(mt, []string{"users", "orders"}, names)
	})

	mt.Run("schema is derived from indexes", func(mt *mtest.T) {
		b := newMockMongo(mt, 100)
		mt.AddMockResponses(
			listCollectionsResponse(mt, "users"),
			mtest.CreateCursorResponse(0, mt.DB.Name()+".users", mtest.FirstBatch,
				bson.D{{Key: "v", Value: int32(2)}, {Key: "key", Value: bson.D{{Key: "_id", Value: int32(1)}}}, {Key: "name", Value: "_id_"}},
				bson.D{{Key: "v", Value: int32(2)}, {Key: "key", Value: bson.D{{Key: "email", Value: int32(1)}}}, {Key: "name", Value: "email_1"}, {Key: "unique", Value: true}},
			),
		)

		schema, err := b.Schema(ctx, "users")
		require.NoError(mt, err)
		assert.Equal(mt, TableSchema{
			{Name: "_id", DataType: "index", Key: "_id_"},
			{Name: "email", DataType: "index", Key: "email_1", Extra: "unique"},
		}, schema)
	})

	mt.Run("unknown collection is not found", func(mt *mtest.T) {
		b := newMockMongo(mt, 100)
		mt.AddMockResponses(listCollectionsResponse(mt), listCollectionsResponse(mt))

		_, err := b.Schema(ctx, "ghost")
		assert.True(mt, errs.Is(err, errs.NotFound), "got %v", err)

		_, err = b.Indexes(ctx, "ghost")
		assert.True(mt, errs.Is(err, errs.NotFound), "got %v", err)
	})

	mt.Run("indexes", func(mt *mtest.T) {
		b := newMockMongo(mt, 100)
		mt.AddMockResponses(
			listCollectionsResponse(mt, "users"),
			mtest.CreateCursorResponse(0, mt.DB.Name()+".users", mtest.FirstBatch,
				bson.D{{Key: "v", Value: int32(2)}, {Key: "key", Value: bson.D{{Key: "_id", Value: int32(1)}}}, {Key: "name", Value: "_id_"}},
			),
		)

		indexes, err := b.Indexes(ctx, "users")
		require.NoError(mt, err)
		assert.Equal(mt, []Index{{Name: "_id_", Keys: []IndexKey{{Field: "_id", Order: int32(1)}}}}, indexes)
	})

	mt.Run("find applies projection and limit and caps rows", func(mt *mtest.T) {
		b := newMockMongo(mt, 2)
		oid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+".orders", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: oid}, {Key: "invoice", Value: "536365"}},
			bson.D{{Key: "invoice", Value: "536366"}},
			bson.D{{Key: "invoice", Value: "536367"}},
		))

		rows, err := b.Find(ctx, "orders", FindQuery{
			Filter:     map[string]any{"country": "UK"},
			Projection: map[string]any{"_id": 0},
			Limit:      5,
		})
		require.NoError(mt, err)
		require.Len(mt, rows, 3)
		assert.Equal(mt, oid.Hex(), rows[0]["_id"])
		assert.Equal(mt, "536366", rows[1]["invoice"])
		assert.Equal(mt, "Result truncated at 2 rows", rows[2]["_warning"])

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "find", evt.CommandName)
		assert.EqualValues(mt, 0, evt.Command.Lookup("projection", "_id").AsInt64())
		assert.EqualValues(mt, 5, evt.Command.Lookup("limit").AsInt64())
		assert.Equal(mt, "UK", evt.Command.Lookup("filter", "country").StringValue())
	})

	mt.Run("update wraps values in $set", func(mt *mtest.T) {
		b := newMockMongo(mt, 100)
		oid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: int32(1)},
			bson.E{Key: "nModified", Value: int32(1)},
		))

		m, err := b.Update(ctx, "users", map[string]any{"_id": oid.Hex()}, map[string]any{"name": "ada"})
		require.NoError(mt, err)
		assert.Equal(mt, Mutation{Matched: 1, Affected: 1}, m)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.Equal(mt, "ada", evt.Command.Lookup("updates", "0", "u", "$set", "name").StringValue())
		assert.Equal(mt, oid, evt.Command.Lookup("updates", "0", "q", "_id").ObjectID())
	})

	mt.Run("empty writes are rejected before the server", func(mt *mtest.T) {
		b := newMockMongo(mt, 100)

		_, err := b.Update(ctx, "users", map[string]any{"name": "ada"}, map[string]any{})
		assert.True(mt, errs.Is(err, errs.Validation))
		_, err = b.Insert(ctx, "users", map[string]any{})
		assert.True(mt, errs.Is(err, errs.Validation))
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("insert reports the generated id", func(mt *mtest.T) {
		b := newMockMongo(mt, 100)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		m, err := b.Insert(ctx, "users", map[string]any{"name": "grace"})
		require.NoError(mt, err)
		id, ok := m.InsertedID.(string)
		require.True(mt, ok, "inserted id should be normalized to hex, got %T", m.InsertedID)
		assert.Len(mt, id, 24)
		assert.EqualValues(mt, 1, m.Affected)
	})

	mt.Run("delete counts", func(mt *mtest.T) {
		b := newMockMongo(mt, 100)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(1)}))

		m, err := b.Delete(ctx, "users", map[string]any{"name": "linus"})
		require.NoError(mt, err)
		assert.Equal(mt, Mutation{Matched: 1, Affected: 1}, m)
	})

	dropTests := []struct {
		name     string
		code     int32
		codeName string
		wantKind errs.Kind
	}{
		{"missing index", codeIndexNotFound, "IndexNotFound", errs.NotFound},
		{"missing collection", codeNamespaceNotFound, "NamespaceNotFound", errs.NotFound},
		{"other failure", 13, "Unauthorized", errs.Backend},
	}
	for _, tt := range dropTests {
		mt.Run("drop index "+tt.name, func(mt *mtest.T) {
			b := newMockMongo(mt, 100)
			mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
				Code:    tt.code,
				Name:    tt.codeName,
				Message: "drop failed",
			}))

			err := b.DropIndex(ctx, "users", "email_1")
			require.Error(mt, err)
			assert.Equal(mt, tt.wantKind, errs.KindOf(err))
		})
	}

	mt.Run("create index returns the generated name", func(mt *mtest.T) {
		b := newMockMongo(mt, 100)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		name, err := b.CreateIndex(ctx, "users", "email", true)
		require.NoError(mt, err)
		assert.Equal(mt, "email_1", name)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.True(mt, evt.Command.Lookup("indexes", "0", "unique").Boolean())
	})
}
