package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store over a MongoDB database. Tables map to collections.
type MongoStore struct {
	Client   *mongo.Client
	Database string
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{Client: client, Database: database}
}

func (m *MongoStore) coll(name string) *mongo.Collection {
	return m.Client.Database(m.Database).Collection(name)
}

func mongoFilter(orderKey string, after interface{}, f *Filter) bson.M {
	filter := bson.M{}
	if after != nil && orderKey != "" {
		filter[orderKey] = bson.M{"$gt": after}
	}
	if !f.IsZero() {
		rng := bson.M{}
		if !f.Since.IsZero() {
			rng["$gte"] = f.Since
		}
		if !f.Before.IsZero() {
			rng["$lt"] = f.Before
		}
		filter[f.Column] = rng
	}
	return filter
}

func (m *MongoStore) SelectPage(ctx context.Context, q PageQuery) ([]Row, error) {
	findOpts := options.Find().
		SetLimit(int64(q.Limit)).
		SetSort(bson.D{{Key: q.OrderKey, Value: 1}})
	if len(q.Columns) > 0 {
		proj := bson.M{}
		for _, c := range q.Columns {
			proj[c] = 1
		}
		findOpts.SetProjection(proj)
	}

	cursor, err := m.coll(q.Table).Find(ctx, mongoFilter(q.OrderKey, q.After, q.Filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find page in %s: %w", q.Table, err)
	}
	defer cursor.Close(ctx)

	var results []Row
	for cursor.Next(ctx) {
		var doc map[string]interface{}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document from %s: %w", q.Table, err)
		}
		results = append(results, Row(doc))
	}
	return results, cursor.Err()
}

func (m *MongoStore) Upsert(ctx context.Context, table, keyColumn string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		idVal, ok := r[keyColumn]
		if !ok || idVal == nil {
			return fmt.Errorf("document for %s is missing key %s", table, keyColumn)
		}
		set := bson.M{}
		for k, v := range r {
			// the equality filter carries the key into inserted documents
			if k != keyColumn {
				set[k] = v
			}
		}
		update := bson.M{"$set": set}
		if len(set) == 0 {
			update = bson.M{"$setOnInsert": bson.M{keyColumn: idVal}}
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{keyColumn: idVal}).
			SetUpdate(update).
			SetUpsert(true))
	}

	if _, err := m.coll(table).BulkWrite(ctx, writes, bulkUpsertOptions()); err != nil {
		return fmt.Errorf("bulk upsert %d documents into %s: %w", len(rows), table, err)
	}
	return nil
}

// bulkUpsertOptions lets the server apply the remaining writes of a batch
// after one of them fails.
func bulkUpsertOptions() *options.BulkWriteOptions {
	return options.BulkWrite().SetOrdered(false)
}

func (m *MongoStore) Delete(ctx context.Context, table, keyColumn string, keys []interface{}) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := m.coll(table).DeleteMany(ctx, bson.M{keyColumn: bson.M{"$in": keys}}); err != nil {
		return fmt.Errorf("delete %d documents from %s: %w", len(keys), table, err)
	}
	return nil
}

func (m *MongoStore) Count(ctx context.Context, table string, f *Filter) (int64, error) {
	n, err := m.coll(table).CountDocuments(ctx, mongoFilter("", nil, f))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (m *MongoStore) TableExists(ctx context.Context, table string) (bool, error) {
	names, err := m.Client.Database(m.Database).ListCollectionNames(ctx, bson.M{"name": table})
	if err != nil {
		return false, fmt.Errorf("list collections: %w", err)
	}
	return len(names) > 0, nil
}

// EnsureTables creates missing collections with a unique index on the natural key.
func (m *MongoStore) EnsureTables(ctx context.Context, tables []TableSpec) ([]string, error) {
	var created []string
	for _, t := range tables {
		exists, err := m.TableExists(ctx, t.Name)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if err := m.Client.Database(m.Database).CreateCollection(ctx, t.Name); err != nil {
			return created, fmt.Errorf("create collection %s: %w", t.Name, err)
		}
		created = append(created, t.Name)
		if t.KeyColumn == "" || t.KeyColumn == "_id" {
			continue
		}
		idx := mongo.IndexModel{
			Keys:    bson.D{{Key: t.KeyColumn, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
		if _, err := m.coll(t.Name).Indexes().CreateOne(ctx, idx); err != nil {
			return created, fmt.Errorf("create unique index on %s.%s: %w", t.Name, t.KeyColumn, err)
		}
	}
	return created, nil
}

func (m *MongoStore) DropTables(ctx context.Context, tables []string) error {
	for _, t := range tables {
		if err := m.coll(t).Drop(ctx); err != nil {
			return fmt.Errorf("drop collection %s: %w", t, err)
		}
	}
	return nil
}

func (m *MongoStore) Close() error {
	return m.Client.Disconnect(context.Background())
}
