// Package database opens the bun connection through go-persistence-bun and
// applies the embedded dialect migrations.
package database

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the database. It doubles as the persistence client
// configuration.
type Options struct {
	Driver      string
	URL         string
	Debug       bool
	PingTimeout time.Duration
	Logger      lazarus.Logger
}

func (o Options) GetDebug() bool           { return o.Debug }
func (o Options) GetDriver() string        { return o.driver() }
func (o Options) GetServer() string        { return o.URL }
func (o Options) GetDSN() string           { return o.URL }
func (o Options) GetOtelIdentifier() string { return "" }

func (o Options) GetPingTimeout() time.Duration {
	if o.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return o.PingTimeout
}

func (o Options) driver() string {
	driver := strings.ToLower(strings.TrimSpace(o.Driver))
	if driver == "" {
		return DriverSQLite
	}
	return driver
}

var registerModels sync.Once

func models() {
	registerModels.Do(func() {
		persistence.RegisterModel((*lazarus.Citizen)(nil))
		persistence.RegisterModel((*lazarus.Entity)(nil))
		persistence.RegisterModel((*lazarus.Admin)(nil))
		persistence.RegisterModel((*lazarus.Incident)(nil))
		persistence.RegisterModel((*lazarus.IncidentMedia)(nil))
		persistence.RegisterModel((*lazarus.PasswordResetToken)(nil))
		persistence.RegisterModel((*lazarus.Notification)(nil))
	})
}

// migrator is the part of the persistence client the store drives
type migrator interface {
	ValidateDialects(ctx context.Context) error
	Migrate(ctx context.Context) error
	DB() *bun.DB
}

// Store owns the connection and its migrations
type Store struct {
	client migrator
	report func() string
	driver string
}

// Open connects, pings and registers the embedded migrations. Nothing is
// applied until Migrate runs.
func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := opts.driver()

	var (
		sqldb   *sql.DB
		dialect schema.Dialect
		err     error
	)

	switch driver {
	case DriverSQLite:
		sqldb, err = sql.Open(sqliteshim.ShimName, opts.URL)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		// sqlite allows a single writer
		sqldb.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", opts.URL)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres database")
		}
		dialect = pgdialect.New()
	default:
		return nil, goerrors.New("unsupported database driver", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"driver": opts.Driver})
	}

	models()

	client, err := persistence.New(opts, sqldb, dialect)
	if err != nil {
		_ = sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create persistence client").
			WithMetadata(map[string]any{"driver": driver})
	}
	if opts.Logger != nil {
		client.SetLogger(opts.Logger)
	}

	db := client.DB()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "database is not reachable").
			WithMetadata(map[string]any{"driver": driver})
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			_ = db.Close()
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enable sqlite foreign keys")
		}
	}

	migrations, err := fs.Sub(lazarus.GetMigrationsFS(), lazarus.MigrationsDir)
	if err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load migrations")
	}
	client.RegisterDialectMigrations(
		migrations,
		persistence.WithDialectSourceLabel(lazarus.MigrationsDir),
		persistence.WithValidationTargets(DriverPostgres, DriverSQLite),
	)

	return &Store{
		client: client,
		driver: driver,
		report: func() string {
			if report := client.Report(); report != nil && !report.IsZero() {
				return report.String()
			}
			return ""
		},
	}, nil
}

// DB returns the bun handle
func (s *Store) DB() *bun.DB {
	return s.client.DB()
}

// Driver is sqlite or postgres
func (s *Store) Driver() string {
	return s.driver
}

// Migrate checks that every dialect carries the same migration set and then
// applies the pending ones for the active dialect.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.client.ValidateDialects(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "migration dialects diverge")
	}
	if err := s.client.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}
	return nil
}

// Report describes the last migration run, empty when nothing ran
func (s *Store) Report() string {
	return s.report()
}

func (s *Store) Close() error {
	return s.client.DB().Close()
}
