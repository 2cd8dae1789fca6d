package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/BartekS5/crm-migrate/pkg/database"
)

// Options carries the settings Open needs besides the URL.
type Options struct {
	MongoDatabase string
	SupabaseURL   string
	SupabaseKey   string
}

// Opened is a connected store together with its raw handles, which the schema
// manager and the CLI need.
type Opened struct {
	Store   Store
	DB      *sql.DB // nil for non-SQL backends
	Dialect Dialect
	Kind    string
}

// Open connects to the backend named by rawURL. Supported schemes are
// postgres, postgresql, sqlserver, sqlite, mongodb, mongodb+srv and supabase.
func Open(ctx context.Context, rawURL string, opts Options) (*Opened, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		db, err := database.ConnectSQL(ctx, DialectPostgres.DriverName(), rawURL)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: NewSQLStore(db, DialectPostgres), DB: db, Dialect: DialectPostgres, Kind: "postgres"}, nil

	case "sqlserver":
		db, err := database.ConnectSQL(ctx, DialectSQLServer.DriverName(), rawURL)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: NewSQLStore(db, DialectSQLServer), DB: db, Dialect: DialectSQLServer, Kind: "sqlserver"}, nil

	case "sqlite":
		path := strings.TrimPrefix(rawURL, u.Scheme+"://")
		if path == "" {
			return nil, fmt.Errorf("sqlite URL needs a file path, e.g. sqlite://./crm.db")
		}
		db, err := database.ConnectSQL(ctx, DialectSQLite.DriverName(), path)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: NewSQLStore(db, DialectSQLite), DB: db, Dialect: DialectSQLite, Kind: "sqlite"}, nil

	case "mongodb", "mongodb+srv":
		client, err := database.ConnectMongo(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		dbName := opts.MongoDatabase
		if p := strings.Trim(u.Path, "/"); p != "" {
			dbName = p
		}
		if dbName == "" {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("no MongoDB database selected (set MONGO_DATABASE or add it to the URL path)")
		}
		return &Opened{Store: NewMongoStore(client, dbName), Kind: "mongodb"}, nil

	case "supabase":
		client, err := database.ConnectSupabase(opts.SupabaseURL, opts.SupabaseKey)
		if err != nil {
			return nil, err
		}
		return &Opened{Store: NewSupabaseStore(client), Kind: "supabase"}, nil
	}

	return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
}
