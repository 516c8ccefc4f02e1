package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"castbot/pkg/logx"
)

type sqlStore struct {
	db  *sqlx.DB
	d   dialect
	log logx.Logger
	now func() time.Time

	qUpsert      string
	qList        string
	qUnsubscribe string
	qGet         string
	qStats       string
}

func newSQLStore(db *sqlx.DB, d dialect, log logx.Logger) *sqlStore {
	return &sqlStore{
		db:      db,
		d:       d,
		log:     log.With(logx.String("comp", "storage")),
		now:     time.Now,
		qUpsert: db.Rebind(d.upsert),
		qList:   `SELECT chat_id FROM subscribers WHERE subscribed = TRUE ORDER BY chat_id`,
		qUnsubscribe: db.Rebind(`UPDATE subscribers SET subscribed = FALSE, updated_at = ?
			WHERE chat_id = ? AND subscribed = TRUE`),
		qGet: db.Rebind(`SELECT chat_id, display_name, handle, locale, subscribed, created_at, updated_at
			FROM subscribers WHERE chat_id = ?`),
		qStats: `SELECT COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN subscribed = TRUE THEN 1 ELSE 0 END), 0) AS subscribed
			FROM subscribers`,
	}
}

func (s *sqlStore) migrate(ctx context.Context) error {
	stmts, err := s.d.statements()
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return &OpError{Op: "migrate", Err: err}
		}
	}
	return nil
}

func (s *sqlStore) Upsert(ctx context.Context, p Profile) error {
	if p.ID == 0 {
		return ErrInvalidProfile
	}
	ms := s.now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, s.qUpsert, p.ID, p.DisplayName, p.Handle, p.Locale, ms, ms); err != nil {
		return &OpError{Op: "upsert", Err: err}
	}
	return nil
}

func (s *sqlStore) ListSubscribed(ctx context.Context) ([]int64, error) {
	ids := []int64{}
	if err := s.db.SelectContext(ctx, &ids, s.qList); err != nil {
		return nil, &OpError{Op: "list", Err: err}
	}
	return ids, nil
}

func (s *sqlStore) MarkUnsubscribed(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.qUnsubscribe, s.now().UnixMilli(), id)
	if err != nil {
		return false, &OpError{Op: "unsubscribe", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Row was updated; only the count is unknown.
		return true, nil
	}
	return n > 0, nil
}

type subscriberRow struct {
	Subscriber
	CreatedMS int64 `db:"created_at"`
	UpdatedMS int64 `db:"updated_at"`
}

func (s *sqlStore) Get(ctx context.Context, id int64) (Subscriber, bool, error) {
	var rows []subscriberRow
	if err := s.db.SelectContext(ctx, &rows, s.qGet, id); err != nil {
		return Subscriber{}, false, &OpError{Op: "get", Err: err}
	}
	if len(rows) == 0 {
		return Subscriber{}, false, nil
	}
	r := rows[0]
	out := r.Subscriber
	out.CreatedAt = time.UnixMilli(r.CreatedMS)
	out.UpdatedAt = time.UnixMilli(r.UpdatedMS)
	return out, true, nil
}

func (s *sqlStore) Stats(ctx context.Context) (Stats, error) {
	var row struct {
		Total      int64 `db:"total"`
		Subscribed int64 `db:"subscribed"`
	}
	if err := s.db.GetContext(ctx, &row, s.qStats); err != nil {
		return Stats{}, &OpError{Op: "stats", Err: err}
	}
	return Stats{Total: int(row.Total), Subscribed: int(row.Subscribed)}, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &OpError{Op: "ping", Err: err}
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
