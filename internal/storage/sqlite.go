package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "herald/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutContentState(ctx context.Context, r ContentRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(r.ID) == "" {
		return nil
	}
	var meta any
	if len(r.Meta) > 0 {
		b, err := json.Marshal(r.Meta)
		if err == nil {
			meta = string(b)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_states(id, type, phase, first_seen, last_updated, published_at, announced, source, url, title, meta)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   type=excluded.type, phase=excluded.phase, last_updated=excluded.last_updated,
		   published_at=excluded.published_at, announced=excluded.announced,
		   source=excluded.source, url=excluded.url, title=excluded.title, meta=excluded.meta`,
		r.ID, r.Type, r.Phase,
		r.FirstSeen.Format(time.RFC3339Nano), r.LastUpdated.Format(time.RFC3339Nano),
		nullTime(r.PublishedAt), boolInt(r.Announced), r.Source, r.URL, r.Title, meta,
	)
	return err
}

func (s *sqliteStore) GetContentState(ctx context.Context, id string) (ContentRecord, bool, error) {
	if s == nil || s.db == nil {
		return ContentRecord{}, false, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, phase, first_seen, last_updated, published_at, announced, source, url, title, meta
		 FROM content_states WHERE id = ?`, id)
	r, err := scanContentRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ContentRecord{}, false, nil
	}
	if err != nil {
		return ContentRecord{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) AllContentStates(ctx context.Context) ([]ContentRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, phase, first_seen, last_updated, published_at, announced, source, url, title, meta
		 FROM content_states`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContentRecord
	for rows.Next() {
		r, err := scanContentRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RemoveContentStates(ctx context.Context, ids []string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM content_states WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ClearContentStates(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM content_states`)
	return err
}

func (s *sqliteStore) PutFingerprint(ctx context.Context, fp string, meta FingerprintMeta) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	fp = strings.TrimSpace(fp)
	if fp == "" {
		return nil
	}
	at := meta.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fingerprints(fp, at, source) VALUES(?,?,?)
		 ON CONFLICT(fp) DO NOTHING`,
		fp, at.Format(time.RFC3339Nano), meta.Source,
	)
	return err
}

func (s *sqliteStore) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM fingerprints WHERE fp = ?`, strings.TrimSpace(fp)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) AppendAnnounce(ctx context.Context, e AnnounceEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO announces(at, content_id, chat_id, thread_id, outcome, err, attempts, took_ms)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ContentID, e.ChatID, e.ThreadID,
		e.Outcome, nullStr(e.Error), e.Attempts, e.TookMS,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentRecord(row rowScanner) (ContentRecord, error) {
	var (
		r                      ContentRecord
		firstSeen, lastUpdated string
		publishedAt, metaJSON  sql.NullString
		announced              int
	)
	err := row.Scan(&r.ID, &r.Type, &r.Phase, &firstSeen, &lastUpdated, &publishedAt, &announced, &r.Source, &r.URL, &r.Title, &metaJSON)
	if err != nil {
		return ContentRecord{}, err
	}
	r.FirstSeen, _ = time.Parse(time.RFC3339Nano, firstSeen)
	r.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated)
	if publishedAt.Valid {
		r.PublishedAt, _ = time.Parse(time.RFC3339Nano, publishedAt.String)
	}
	r.Announced = announced != 0
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &r.Meta)
	}
	return r, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
