// Package mongodb stores each dataset as a collection (mongo-driver v2).
// Columns become document fields in header order; nulls are stored as BSON
// null so every document carries the full column set.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"rawload/internal/storage"
)

const batchSize = 1000

type Repo struct {
	client *mongo.Client
	db     *mongo.Database
}

func init() {
	storage.Register("mongodb", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	dbName, err := databaseFromURI(cfg.DSN)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Repo{client: client, db: client.Database(dbName)}, nil
}

func (r *Repo) Close() {
	_ = r.client.Disconnect(context.Background())
}

// ReplaceTable drops the collection, recreates it and inserts one document
// per row with ordered InsertMany batches. MongoDB has no DDL transaction, so
// a failed insert leaves a partially filled collection behind.
func (r *Repo) ReplaceTable(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	if err := spec.CheckRows(rows); err != nil {
		return 0, err
	}

	coll := r.db.Collection(spec.Name)
	if err := coll.Drop(ctx); err != nil {
		return 0, fmt.Errorf("drop collection %s: %w", spec.Name, err)
	}
	if err := r.db.CreateCollection(ctx, spec.Name); err != nil {
		return 0, fmt.Errorf("create collection %s: %w", spec.Name, err)
	}

	names := spec.ColumnNames()
	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		res, err := coll.InsertMany(ctx, buildDocuments(names, rows[start:end]))
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", spec.Name, err)
		}
		total += int64(len(res.InsertedIDs))
	}
	return total, nil
}

func (r *Repo) DescribeTable(ctx context.Context, name string) (storage.TableInfo, error) {
	found, err := r.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
	}
	if len(found) == 0 {
		return storage.TableInfo{}, fmt.Errorf("%s: %w", name, storage.ErrTableNotFound)
	}

	coll := r.db.Collection(name)
	count, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("count %s: %w", name, err)
	}
	info := storage.TableInfo{Name: name, Rows: count}
	if count == 0 {
		return info, nil
	}

	opts := options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 0}})
	raw, err := coll.FindOne(ctx, bson.D{}, opts).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return info, nil
		}
		return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
	}
	elems, err := raw.Elements()
	if err != nil {
		return storage.TableInfo{}, fmt.Errorf("describe %s: %w", name, err)
	}
	for _, e := range elems {
		info.Columns = append(info.Columns, e.Key())
	}
	return info, nil
}

// buildDocuments turns rows into ordered bson.D documents.
func buildDocuments(names []string, rows [][]any) []any {
	docs := make([]any, len(rows))
	for i, row := range rows {
		doc := make(bson.D, len(names))
		for j, n := range names {
			doc[j] = bson.E{Key: n, Value: row[j]}
		}
		docs[i] = doc
	}
	return docs
}

// databaseFromURI returns the database named in the URI path.
func databaseFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("mongodb uri: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return "", fmt.Errorf("mongodb uri: unsupported scheme %q", u.Scheme)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", errors.New("mongodb uri: missing database name in path")
	}
	return name, nil
}
