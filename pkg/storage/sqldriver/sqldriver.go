// Package sqldriver implements storage.Driver over database/sql. The sqlite
// and postgres packages wrap it with their connection setup.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/ragchat/pkg/storage"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

// Dialect covers the differences between the supported SQL databases.
type Dialect struct {
	Name string

	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres", Numbered: true}
)

// rebind rewrites ? placeholders for dialects that number them. Queries in
// this package never contain a literal ?.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS exchanges (
		turn_id         TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		top_k           INTEGER NOT NULL,
		user_turn_id    TEXT NOT NULL,
		query           TEXT NOT NULL,
		asked_at        BIGINT NOT NULL,
		content         TEXT NOT NULL,
		sources         TEXT NOT NULL,
		state           TEXT NOT NULL,
		error           TEXT NOT NULL,
		started_at      BIGINT NOT NULL,
		finished_at     BIGINT NOT NULL,
		applied         INTEGER NOT NULL,
		malformed       INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS exchanges_conversation_idx
		ON exchanges (conversation_id, asked_at)`,
}

const exchangeColumns = `turn_id, conversation_id, top_k, user_turn_id, query, asked_at,
	content, sources, state, error, started_at, finished_at, applied, malformed`

// Driver implements storage.Driver on a *sql.DB.
type Driver struct {
	DB      *sql.DB
	dialect Dialect
}

// New wraps db and creates the schema if needed. The Driver owns db from
// here on and closes it in Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Driver{DB: db, dialect: dialect}, nil
}

// Put stores an exchange. Returns false if the assistant turn ID is already
// stored.
func (d *Driver) Put(ctx context.Context, ex *transcript.Exchange) (bool, error) {
	if err := storage.ValidateExchange(ex); err != nil {
		return false, err
	}

	sources, err := json.Marshal(nonNil(ex.Assistant.Sources))
	if err != nil {
		return false, fmt.Errorf("encoding sources: %w", err)
	}

	query := d.dialect.rebind(`INSERT INTO exchanges (` + exchangeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (turn_id) DO NOTHING`)

	res, err := d.DB.ExecContext(ctx, query,
		ex.Assistant.ID,
		ex.ConversationID,
		ex.TopK,
		ex.User.ID,
		ex.User.Content,
		toMillis(ex.User.CreatedAt),
		ex.Assistant.Content,
		string(sources),
		string(ex.Assistant.State),
		ex.Assistant.Err,
		toMillis(ex.Assistant.CreatedAt),
		toMillis(ex.Assistant.FinishedAt),
		ex.Applied,
		ex.Malformed,
	)
	if err != nil {
		return false, fmt.Errorf("inserting exchange %s: %w", ex.Assistant.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting exchange %s: %w", ex.Assistant.ID, err)
	}
	return n == 1, nil
}

// Get retrieves an exchange by its assistant turn ID.
func (d *Driver) Get(ctx context.Context, turnID string) (*transcript.Exchange, error) {
	query := d.dialect.rebind(`SELECT ` + exchangeColumns + ` FROM exchanges WHERE turn_id = ?`)

	ex, err := scanExchange(d.DB.QueryRowContext(ctx, query, turnID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: turnID}
	}
	if err != nil {
		return nil, fmt.Errorf("loading exchange %s: %w", turnID, err)
	}
	return ex, nil
}

// Conversation returns a conversation's exchanges, oldest question first.
func (d *Driver) Conversation(ctx context.Context, conversationID string) ([]transcript.Exchange, error) {
	query := d.dialect.rebind(`SELECT ` + exchangeColumns + ` FROM exchanges
		WHERE conversation_id = ?
		ORDER BY asked_at, started_at`)

	rows, err := d.DB.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var out []transcript.Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, fmt.Errorf("loading conversation %s: %w", conversationID, err)
		}
		out = append(out, *ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}

	return out, nil
}

// Conversations summarizes every stored conversation, most recently active
// first.
func (d *Driver) Conversations(ctx context.Context) ([]storage.ConversationSummary, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT
			e.conversation_id,
			COUNT(*),
			MIN(e.asked_at),
			MAX(e.finished_at),
			(SELECT f.query FROM exchanges f
				WHERE f.conversation_id = e.conversation_id
				ORDER BY f.asked_at, f.started_at LIMIT 1)
		FROM exchanges e
		GROUP BY e.conversation_id
		ORDER BY MAX(e.finished_at) DESC, e.conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []storage.ConversationSummary
	for rows.Next() {
		var (
			s                    storage.ConversationSummary
			startedAt, updatedAt int64
		)
		if err := rows.Scan(&s.ID, &s.Exchanges, &startedAt, &updatedAt, &s.FirstQuery); err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}
		s.StartedAt = fromMillis(startedAt)
		s.UpdatedAt = fromMillis(updatedAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	return out, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExchange(row scanner) (*transcript.Exchange, error) {
	var (
		ex                   transcript.Exchange
		sources, state       string
		askedAt, startedAt   int64
		finishedAt           int64
		userID, query, reply string
	)

	err := row.Scan(
		&ex.Assistant.ID,
		&ex.ConversationID,
		&ex.TopK,
		&userID,
		&query,
		&askedAt,
		&reply,
		&sources,
		&state,
		&ex.Assistant.Err,
		&startedAt,
		&finishedAt,
		&ex.Applied,
		&ex.Malformed,
	)
	if err != nil {
		return nil, err
	}

	ex.User = transcript.Turn{
		ID:         userID,
		Role:       transcript.RoleUser,
		Content:    query,
		Sources:    []transcript.Source{},
		State:      transcript.StateCompleted,
		CreatedAt:  fromMillis(askedAt),
		FinishedAt: fromMillis(askedAt),
	}

	ex.Assistant.Role = transcript.RoleAssistant
	ex.Assistant.Content = reply
	ex.Assistant.State = transcript.State(state)
	ex.Assistant.CreatedAt = fromMillis(startedAt)
	ex.Assistant.FinishedAt = fromMillis(finishedAt)
	if err := json.Unmarshal([]byte(sources), &ex.Assistant.Sources); err != nil {
		return nil, fmt.Errorf("decoding sources: %w", err)
	}
	ex.Assistant.Sources = nonNil(ex.Assistant.Sources)

	return &ex, nil
}

func nonNil(s []transcript.Source) []transcript.Source {
	if s == nil {
		return []transcript.Source{}
	}
	return s
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
