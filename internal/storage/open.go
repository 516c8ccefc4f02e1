package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"castbot/pkg/logx"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	var (
		db  *sqlx.DB
		d   dialect
		err error
	)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		db, err = openSQLite(cfg)
		d = sqliteDialect
	case "postgres", "postgresql", "pg":
		db, err = openPostgres(cfg)
		d = postgresDialect
	case "mysql":
		db, err = openMySQL(cfg)
		d = mysqlDialect
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, &OpError{Op: "open", Err: err}
	}

	st := newSQLStore(db, d, log)
	if err := st.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", d.name))
	return st, nil
}
