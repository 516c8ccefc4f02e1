package storage

import (
	"embed"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type dialect struct {
	name   string
	schema string // file under migrations/
	upsert string // written with '?' placeholders; rebound per driver
}

var sqliteDialect = dialect{
	name:   "sqlite",
	schema: "migrations/sqlite.sql",
	upsert: `INSERT INTO subscribers (chat_id, display_name, handle, locale, subscribed, created_at, updated_at)
		VALUES (?, ?, ?, ?, TRUE, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			display_name = excluded.display_name,
			handle = excluded.handle,
			locale = excluded.locale,
			subscribed = TRUE,
			updated_at = excluded.updated_at`,
}

var postgresDialect = dialect{
	name:   "postgres",
	schema: "migrations/postgres.sql",
	upsert: `INSERT INTO subscribers (chat_id, display_name, handle, locale, subscribed, created_at, updated_at)
		VALUES (?, ?, ?, ?, TRUE, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			handle = EXCLUDED.handle,
			locale = EXCLUDED.locale,
			subscribed = TRUE,
			updated_at = EXCLUDED.updated_at`,
}

var mysqlDialect = dialect{
	name:   "mysql",
	schema: "migrations/mysql.sql",
	upsert: `INSERT INTO subscribers (chat_id, display_name, handle, locale, subscribed, created_at, updated_at)
		VALUES (?, ?, ?, ?, TRUE, ?, ?)
		ON DUPLICATE KEY UPDATE
			display_name = VALUES(display_name),
			handle = VALUES(handle),
			locale = VALUES(locale),
			subscribed = TRUE,
			updated_at = VALUES(updated_at)`,
}

// statements splits a schema file into single statements; not every driver
// accepts several statements in one Exec.
func (d dialect) statements() ([]string, error) {
	b, err := migrationsFS.ReadFile(d.schema)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, part := range strings.Split(string(b), ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
