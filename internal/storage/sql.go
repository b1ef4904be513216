package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"fsubbot/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

// sqlStore serves both sqlite and postgres. Queries use "?" placeholders and
// go through Rebind. Timestamps are stored as unix milliseconds.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger
}

type groupRow struct {
	GroupID     int64  `db:"group_id"`
	Channel     string `db:"channel"`
	ChannelID   int64  `db:"channel_id"`
	UnmuteDelay int    `db:"unmute_delay"`
	UpdatedAt   int64  `db:"updated_at"`
}

func (r groupRow) group() Group {
	return Group{
		GroupID:     r.GroupID,
		Channel:     r.Channel,
		ChannelID:   r.ChannelID,
		UnmuteDelay: r.UnmuteDelay,
		UpdatedAt:   time.UnixMilli(r.UpdatedAt),
	}
}

type pendingRow struct {
	GroupID int64 `db:"group_id"`
	UserID  int64 `db:"user_id"`
	DueAt   int64 `db:"due_at"`
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}
	return newSQLStore(db, log)
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newSQLStore(db, log)
}

func newSQLStore(db *sqlx.DB, log logx.Logger) (Store, error) {
	s := &sqlStore{db: db, log: log}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("sql store opened", logx.String("driver", db.DriverName()))
	return s, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) PutGroup(ctx context.Context, g Group) error {
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO fsub_groups (group_id, channel, channel_id, unmute_delay, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (group_id) DO UPDATE SET
			channel = excluded.channel,
			channel_id = excluded.channel_id,
			unmute_delay = excluded.unmute_delay,
			updated_at = excluded.updated_at`),
		g.GroupID, g.Channel, g.ChannelID, g.UnmuteDelay, g.UpdatedAt.UnixMilli())
	return err
}

func (s *sqlStore) GetGroup(ctx context.Context, groupID int64) (Group, error) {
	var row groupRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT group_id, channel, channel_id, unmute_delay, updated_at FROM fsub_groups WHERE group_id = ?`), groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrNotFound
	}
	if err != nil {
		return Group{}, err
	}
	return row.group(), nil
}

func (s *sqlStore) DeleteGroup(ctx context.Context, groupID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM fsub_groups WHERE group_id = ?`), groupID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqlStore) SetUnmuteDelay(ctx context.Context, groupID int64, seconds int) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE fsub_groups SET unmute_delay = ?, updated_at = ? WHERE group_id = ?`),
		seconds, time.Now().UnixMilli(), groupID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) GroupIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `SELECT group_id FROM fsub_groups ORDER BY group_id`)
	return ids, err
}

func (s *sqlStore) CountGroups(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM fsub_groups`)
	return n, err
}

func (s *sqlStore) PutUser(ctx context.Context, u User) error {
	if u.LastInteraction.IsZero() {
		u.LastInteraction = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO bot_users (user_id, first_name, last_name, username, last_interaction)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			username = excluded.username,
			last_interaction = excluded.last_interaction`),
		u.UserID, u.FirstName, u.LastName, u.Username, u.LastInteraction.UnixMilli())
	return err
}

func (s *sqlStore) UserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `SELECT user_id FROM bot_users ORDER BY user_id`)
	return ids, err
}

func (s *sqlStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bot_users`)
	return n, err
}

func (s *sqlStore) PutPendingUnmute(ctx context.Context, p PendingUnmute) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO pending_unmutes (group_id, user_id, due_at) VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET due_at = excluded.due_at`),
		p.GroupID, p.UserID, p.DueAt.UnixMilli())
	return err
}

func (s *sqlStore) DeletePendingUnmute(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM pending_unmutes WHERE group_id = ? AND user_id = ?`), groupID, userID)
	return err
}

func (s *sqlStore) PendingUnmutes(ctx context.Context) ([]PendingUnmute, error) {
	var rows []pendingRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT group_id, user_id, due_at FROM pending_unmutes ORDER BY due_at`); err != nil {
		return nil, err
	}
	out := make([]PendingUnmute, 0, len(rows))
	for _, r := range rows {
		out = append(out, PendingUnmute{GroupID: r.GroupID, UserID: r.UserID, DueAt: time.UnixMilli(r.DueAt)})
	}
	return out, nil
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error { return s.db.Close() }
