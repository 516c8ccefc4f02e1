// Package storage persists the subscriber table: who has talked to the bot and
// whether a broadcast may still reach them.
//
// All drivers share one SQL implementation on top of sqlx; only the schema and
// the upsert statement differ per dialect:
//   - "sqlite":   modernc.org/sqlite (pure Go, default)
//   - "postgres": github.com/lib/pq
//   - "mysql":    github.com/go-sql-driver/mysql
package storage
