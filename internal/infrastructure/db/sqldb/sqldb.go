// Package sqldb implements the relational identity store on database/sql.
// SQLite (modernc.org/sqlite, pure Go) and PostgreSQL (pgx stdlib driver) are
// supported; queries are written with ? placeholders and rebound per dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "modernc.org/sqlite"

	"github.com/99minutos/auth-service/internal/infrastructure/db/sqldb/migrations"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultQueryTimeout = 5 * time.Second
	sqliteBusyTimeoutMS = 5000
)

// Config captures the settings required to open the identity store.
type Config struct {
	Driver       string
	DSN          string
	QueryTimeout time.Duration
	MaxOpenConns int
}

// DB wraps a *sql.DB with the dialect it speaks and the per-query timeout
// applied by the repositories.
type DB struct {
	*sql.DB
	driver  string
	timeout time.Duration
}

// Open connects to the configured store, verifies connectivity with a ping and
// applies pending migrations. SQLite connections always run with foreign keys
// enforced.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	driverName, dsn, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if isMemoryDSN(cfg.DSN) {
		// every connection to :memory: is a distinct database
		sqlDB.SetMaxOpenConns(1)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	db := &DB{DB: sqlDB, driver: cfg.Driver, timeout: timeout}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Driver reports the dialect name this handle was opened with.
func (d *DB) Driver() string {
	return d.driver
}

// Migrate applies the embedded migrations for the handle's dialect.
func (d *DB) Migrate(ctx context.Context) error {
	return d.applyMigrations(ctx, migrations.FS, d.driver)
}

func resolve(cfg Config) (driverName, dsn string, err error) {
	dsn = strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return "", "", fmt.Errorf("sqldb: dsn is required")
	}

	switch cfg.Driver {
	case DriverSQLite:
		return "sqlite", sqlitePragmas(dsn), nil
	case DriverPostgres:
		return "pgx", dsn, nil
	default:
		return "", "", fmt.Errorf("sqldb: unsupported driver %q", cfg.Driver)
	}
}

// sqlitePragmas appends the per-connection pragmas understood by
// modernc.org/sqlite. Pragmas already present in the DSN are left alone.
func sqlitePragmas(dsn string) string {
	pragmas := []string{
		"foreign_keys(1)",
		"busy_timeout(" + strconv.Itoa(sqliteBusyTimeoutMS) + ")",
	}
	if !isMemoryDSN(dsn) {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}

	var params []string
	for _, p := range pragmas {
		name := p[:strings.IndexByte(p, '(')]
		if strings.Contains(dsn, "_pragma="+name) {
			continue
		}
		params = append(params, "_pragma="+p)
	}
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}
