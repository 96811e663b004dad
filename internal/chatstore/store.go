// Package chatstore implements the Conversation Store: durable chats and
// messages with recency ordering, soft-delete/trash, token sums, and
// full-text search over titles and message content.
//
// The schema is an implementation detail behind the operations below
// (spec §4.5); callers never see SQL. Storage is a single SQLite file,
// grounded on the sqlite3+goqu pattern in
// _examples/rakunlabs-at/internal/store/sqlite3/sqlite3.go.
package chatstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// ErrChatNotFound is returned by operations addressing a chat id that does
// not exist (or no longer exists after a purge).
var ErrChatNotFound = errors.New("chatstore: chat not found")

const timeLayout = time.RFC3339Nano

// Store is a durable, FTS-backed conversation store over a single SQLite
// file. All operations serialize through the database/sql connection pool,
// which is capped at one open connection (SQLite is single-writer).
type Store struct {
	db   *sql.DB
	goqu *goqu.Database
	log  zerolog.Logger
}

// Open creates or opens the store at path and ensures the schema exists.
// path is typically "<user-data>/ai/ai-chats.db"; callers are responsible
// for ensuring the parent directory exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; a single connection avoids SQLITE_BUSY
	// errors under the store's one-mutex-per-operation discipline (spec
	// §5 "Shared resources").
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{
		db:   db,
		goqu: goqu.New("sqlite3", db),
		log:  log.With().Str("component", "chatstore").Logger(),
	}

	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		model_id TEXT NOT NULL,
		provider_id TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_deleted_at ON chats(deleted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_provider_id ON chats(provider_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		seq INTEGER NOT NULL,
		tokens_used INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id, created_at, seq)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS search_fts USING fts5(doc_id UNINDEXED, chat_id UNINDEXED, text)`,
	// Keep search_fts synchronized with chats.title and messages.content;
	// equivalent to a batched rebuild but cheaper to keep incremental.
	`CREATE TRIGGER IF NOT EXISTS trg_chats_ai AFTER INSERT ON chats BEGIN
		INSERT INTO search_fts(doc_id, chat_id, text) VALUES ('title:' || new.id, new.id, new.title);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_chats_au AFTER UPDATE OF title ON chats BEGIN
		DELETE FROM search_fts WHERE doc_id = 'title:' || old.id;
		INSERT INTO search_fts(doc_id, chat_id, text) VALUES ('title:' || new.id, new.id, new.title);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_chats_ad AFTER DELETE ON chats BEGIN
		DELETE FROM search_fts WHERE chat_id = old.id;
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_messages_ai AFTER INSERT ON messages BEGIN
		INSERT INTO search_fts(doc_id, chat_id, text) VALUES ('msg:' || new.id, new.chat_id, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_messages_au AFTER UPDATE OF content ON messages BEGIN
		DELETE FROM search_fts WHERE doc_id = 'msg:' || old.id;
		INSERT INTO search_fts(doc_id, chat_id, text) VALUES ('msg:' || new.id, new.chat_id, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_messages_ad AFTER DELETE ON messages BEGIN
		DELETE FROM search_fts WHERE doc_id = 'msg:' || old.id;
	END`,
}

func (s *Store) init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}

// ─── Chat CRUD ───

type chatRow struct {
	ID         string
	Title      string
	CreatedAt  string
	UpdatedAt  string
	DeletedAt  sql.NullString
	ModelID    string
	ProviderID string
}

func chatToRecord(c Chat) goqu.Record {
	rec := goqu.Record{
		"id":          c.ID.String(),
		"title":       c.Title,
		"created_at":  c.CreatedAt.UTC().Format(timeLayout),
		"updated_at":  c.UpdatedAt.UTC().Format(timeLayout),
		"model_id":    c.ModelID,
		"provider_id": c.ProviderID,
	}
	if c.DeletedAt != nil {
		rec["deleted_at"] = c.DeletedAt.UTC().Format(timeLayout)
	} else {
		rec["deleted_at"] = nil
	}
	return rec
}

func (s *Store) rowToChat(row chatRow) Chat {
	c := Chat{
		Title:      row.Title,
		ModelID:    row.ModelID,
		ProviderID: row.ProviderID,
	}
	if id, err := ParseChatId(row.ID); err != nil {
		s.log.Error().Err(err).Str("id", row.ID).Msg("stored chat id failed to parse")
	} else {
		c.ID = id
	}
	c.CreatedAt = parseTimeOrNow(s.log, row.CreatedAt)
	c.UpdatedAt = parseTimeOrNow(s.log, row.UpdatedAt)
	if row.DeletedAt.Valid {
		t := parseTimeOrNow(s.log, row.DeletedAt.String)
		c.DeletedAt = &t
	}
	return c
}

// parseTimeOrNow falls back to "now" for display when a stored timestamp
// fails to parse, logging the failure rather than surfacing an error
// (spec §4.5 failure policy).
func parseTimeOrNow(logger zerolog.Logger, raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		logger.Error().Err(err).Str("raw", raw).Msg("stored timestamp failed to parse, falling back to now")
		return time.Now().UTC()
	}
	return t
}

// CreateChat inserts a new chat row.
func (s *Store) CreateChat(ctx context.Context, c Chat) error {
	query, _, err := s.goqu.Insert("chats").Rows(chatToRecord(c)).ToSQL()
	if err != nil {
		return fmt.Errorf("build create_chat query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create_chat %s: %w", c.ID, err)
	}
	return nil
}

// UpdateChat overwrites every mutable field of an existing chat row.
func (s *Store) UpdateChat(ctx context.Context, c Chat) error {
	rec := chatToRecord(c)
	delete(rec, "id")
	query, _, err := s.goqu.Update("chats").Set(rec).Where(goqu.C("id").Eq(c.ID.String())).ToSQL()
	if err != nil {
		return fmt.Errorf("build update_chat query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("update_chat %s: %w", c.ID, err)
	}
	return requireAffected(res, ErrChatNotFound)
}

// UpdateTitle sets a chat's title and bumps updated_at.
func (s *Store) UpdateTitle(ctx context.Context, id ChatId, title string) error {
	query, _, err := s.goqu.Update("chats").
		Set(goqu.Record{"title": title, "updated_at": time.Now().UTC().Format(timeLayout)}).
		Where(goqu.C("id").Eq(id.String())).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update_title query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("update_title %s: %w", id, err)
	}
	return requireAffected(res, ErrChatNotFound)
}

// GetChat loads a single chat by id, returning ErrChatNotFound if absent.
func (s *Store) GetChat(ctx context.Context, id ChatId) (Chat, error) {
	query, _, err := s.goqu.From("chats").
		Select("id", "title", "created_at", "updated_at", "deleted_at", "model_id", "provider_id").
		Where(goqu.C("id").Eq(id.String())).
		ToSQL()
	if err != nil {
		return Chat{}, fmt.Errorf("build get_chat query: %w", err)
	}

	var row chatRow
	err = s.db.QueryRowContext(ctx, query).Scan(
		&row.ID, &row.Title, &row.CreatedAt, &row.UpdatedAt, &row.DeletedAt, &row.ModelID, &row.ProviderID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrChatNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("get_chat %s: %w", id, err)
	}
	return s.rowToChat(row), nil
}

// ListLive returns every non-deleted chat, most recently updated first.
func (s *Store) ListLive(ctx context.Context) ([]Chat, error) {
	query, _, err := s.goqu.From("chats").
		Select("id", "title", "created_at", "updated_at", "deleted_at", "model_id", "provider_id").
		Where(goqu.C("deleted_at").IsNull()).
		Order(goqu.C("updated_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list_live query: %w", err)
	}
	return s.queryChats(ctx, query)
}

// ListTrash returns every soft-deleted chat, most recently deleted first.
func (s *Store) ListTrash(ctx context.Context) ([]Chat, error) {
	query, _, err := s.goqu.From("chats").
		Select("id", "title", "created_at", "updated_at", "deleted_at", "model_id", "provider_id").
		Where(goqu.C("deleted_at").IsNotNull()).
		Order(goqu.C("deleted_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list_trash query: %w", err)
	}
	return s.queryChats(ctx, query)
}

func (s *Store) queryChats(ctx context.Context, query string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var result []Chat
	for rows.Next() {
		var row chatRow
		if err := rows.Scan(&row.ID, &row.Title, &row.CreatedAt, &row.UpdatedAt, &row.DeletedAt, &row.ModelID, &row.ProviderID); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		result = append(result, s.rowToChat(row))
	}
	return result, rows.Err()
}

// SoftDelete moves a chat into the trash by setting deleted_at to now.
func (s *Store) SoftDelete(ctx context.Context, id ChatId) error {
	return s.setDeletedAt(ctx, id, ptrTime(time.Now().UTC()))
}

// Restore clears a chat's deleted_at, moving it back to the live list.
func (s *Store) Restore(ctx context.Context, id ChatId) error {
	return s.setDeletedAt(ctx, id, nil)
}

func (s *Store) setDeletedAt(ctx context.Context, id ChatId, at *time.Time) error {
	rec := goqu.Record{"updated_at": time.Now().UTC().Format(timeLayout)}
	if at != nil {
		rec["deleted_at"] = at.Format(timeLayout)
	} else {
		rec["deleted_at"] = nil
	}
	query, _, err := s.goqu.Update("chats").Set(rec).Where(goqu.C("id").Eq(id.String())).ToSQL()
	if err != nil {
		return fmt.Errorf("build soft-delete/restore query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("soft-delete/restore %s: %w", id, err)
	}
	return requireAffected(res, ErrChatNotFound)
}

// Purge permanently removes a chat and, via ON DELETE CASCADE, its
// messages.
func (s *Store) Purge(ctx context.Context, id ChatId) error {
	query, _, err := s.goqu.Delete("chats").Where(goqu.C("id").Eq(id.String())).ToSQL()
	if err != nil {
		return fmt.Errorf("build purge query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("purge %s: %w", id, err)
	}
	return requireAffected(res, ErrChatNotFound)
}

// PurgeOldTrash permanently removes every trashed chat whose deleted_at is
// older than the given number of days, returning the count removed.
func (s *Store) PurgeOldTrash(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timeLayout)
	query, _, err := s.goqu.Delete("chats").
		Where(goqu.C("deleted_at").IsNotNull(), goqu.C("deleted_at").Lt(cutoff)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build purge_old_trash query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("purge_old_trash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge_old_trash rows affected: %w", err)
	}
	return int(affected), nil
}

// CountLiveChats returns the number of non-deleted chats.
func (s *Store) CountLiveChats(ctx context.Context) (int, error) {
	query, _, err := s.goqu.From("chats").
		Select(goqu.COUNT("*")).
		Where(goqu.C("deleted_at").IsNull()).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count_live_chats query: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count_live_chats: %w", err)
	}
	return count, nil
}

// ─── Message operations ───

type messageRow struct {
	ID         string
	ChatID     string
	Role       string
	Content    string
	CreatedAt  string
	TokensUsed sql.NullInt64
}

func (s *Store) rowToMessage(row messageRow) Message {
	m := Message{
		ID:        row.ID,
		Role:      MessageRole(row.Role),
		Content:   row.Content,
		CreatedAt: parseTimeOrNow(s.log, row.CreatedAt),
	}
	if id, err := ParseChatId(row.ChatID); err != nil {
		s.log.Error().Err(err).Str("chat_id", row.ChatID).Msg("stored message chat id failed to parse")
	} else {
		m.ChatID = id
	}
	if row.TokensUsed.Valid {
		v := uint32(row.TokensUsed.Int64)
		m.TokensUsed = &v
	}
	return m
}

// messageSeq is a process-local monotonic counter breaking ties between
// messages inserted within the same microsecond (invariant 3, §3). It only
// needs to be monotonic within this process's lifetime: a restart resumes
// append-only at a fresh, still-increasing value space because seq is
// compared only alongside created_at, never across restarts in isolation.
var messageSeq int64

// UpsertMessage inserts a message, or — if a row with the same id already
// exists — overwrites only its content and tokens_used (spec §4.5).
// bumpChat controls whether the owning chat's updated_at is touched; the
// Engine requests this for live turns and suppresses it for bulk imports.
func (s *Store) UpsertMessage(ctx context.Context, m Message, bumpChat bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert_message transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = ?)`, m.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check existing message %s: %w", m.ID, err)
	}

	var tokens interface{}
	if m.TokensUsed != nil {
		tokens = int64(*m.TokensUsed)
	}

	if exists {
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET content = ?, tokens_used = ? WHERE id = ?`, m.Content, tokens, m.ID); err != nil {
			return fmt.Errorf("upsert_message (update) %s: %w", m.ID, err)
		}
	} else {
		messageSeq++
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages(id, chat_id, role, content, created_at, seq, tokens_used) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ChatID.String(), string(m.Role), m.Content, m.CreatedAt.UTC().Format(timeLayout), messageSeq, tokens,
		); err != nil {
			return fmt.Errorf("upsert_message (insert) %s: %w", m.ID, err)
		}
	}

	if bumpChat {
		if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, time.Now().UTC().Format(timeLayout), m.ChatID.String()); err != nil {
			return fmt.Errorf("bump chat %s updated_at: %w", m.ChatID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert_message transaction: %w", err)
	}
	return nil
}

// ListMessages returns every message of a chat in ascending created_at
// order, ties broken by insertion sequence.
func (s *Store) ListMessages(ctx context.Context, chatID ChatId) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, created_at, tokens_used FROM messages WHERE chat_id = ? ORDER BY created_at ASC, seq ASC`,
		chatID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list_messages %s: %w", chatID, err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var row messageRow
		if err := rows.Scan(&row.ID, &row.ChatID, &row.Role, &row.Content, &row.CreatedAt, &row.TokensUsed); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		result = append(result, s.rowToMessage(row))
	}
	return result, rows.Err()
}

// RecentMessages returns the last n messages of a chat, in chronological
// order.
func (s *Store) RecentMessages(ctx context.Context, chatID ChatId, n int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, created_at, tokens_used FROM messages WHERE chat_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`,
		chatID.String(), n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent_messages %s: %w", chatID, err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var row messageRow
		if err := rows.Scan(&row.ID, &row.ChatID, &row.Role, &row.Content, &row.CreatedAt, &row.TokensUsed); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		result = append(result, s.rowToMessage(row))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// SumTokens returns the sum of tokens_used over a chat's messages, treating
// absent values as zero.
func (s *Store) SumTokens(ctx context.Context, chatID ChatId) (uint64, error) {
	var sum sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(tokens_used) FROM messages WHERE chat_id = ?`, chatID.String()).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum_tokens %s: %w", chatID, err)
	}
	if !sum.Valid {
		return 0, nil
	}
	return uint64(sum.Int64), nil
}

// ─── Search ───

// Search implements spec §4.5's search operation: blank query behaves as
// ListLive; otherwise an FTS match over chat titles and message content,
// filtered to live chats, falling back to a case-insensitive substring
// match over titles when the FTS query fails to parse (e.g. unbalanced
// quotes or leading punctuation in the raw user input).
func (s *Store) Search(ctx context.Context, query string) ([]Chat, error) {
	if strings.TrimSpace(query) == "" {
		return s.ListLive(ctx)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT c.id, c.title, c.created_at, c.updated_at, c.deleted_at, c.model_id, c.provider_id
		FROM chats c
		JOIN search_fts f ON f.chat_id = c.id
		WHERE search_fts MATCH ? AND c.deleted_at IS NULL
		ORDER BY c.updated_at DESC
	`, query)
	if err != nil {
		s.log.Warn().Err(err).Str("query", query).Msg("fts query failed to parse, falling back to substring match")
		return s.searchSubstringFallback(ctx, query)
	}
	defer rows.Close()

	var result []Chat
	for rows.Next() {
		var row chatRow
		if err := rows.Scan(&row.ID, &row.Title, &row.CreatedAt, &row.UpdatedAt, &row.DeletedAt, &row.ModelID, &row.ProviderID); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		result = append(result, s.rowToChat(row))
	}
	if err := rows.Err(); err != nil {
		s.log.Warn().Err(err).Str("query", query).Msg("fts query failed mid-scan, falling back to substring match")
		return s.searchSubstringFallback(ctx, query)
	}
	return result, nil
}

func (s *Store) searchSubstringFallback(ctx context.Context, query string) ([]Chat, error) {
	query, _, err := s.goqu.From("chats").
		Select("id", "title", "created_at", "updated_at", "deleted_at", "model_id", "provider_id").
		Where(
			goqu.C("deleted_at").IsNull(),
			goqu.L("lower(title) LIKE ?", "%"+sqlLower(query)+"%"),
		).
		Order(goqu.C("updated_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build substring search query: %w", err)
	}
	return s.queryChats(ctx, query)
}

func sqlLower(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		out = append(out, r)
	}
	return string(out)
}

// ─── Helpers ───

func ptrTime(t time.Time) *time.Time { return &t }

func requireAffected(res sql.Result, notFoundErr error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFoundErr
	}
	return nil
}
