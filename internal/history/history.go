// Package history archives finished transcript messages to SQLite for audit
// and export. The archive is write-only from the orchestrator's point of view:
// nothing in it is ever loaded back into a run.
// The database is opened lazily on first use. If opening it or executing
// queries fails, the archive falls back to in-memory storage.
// Fed from the scheduler, the archive only sees the events its subscription
// buffer (events.SinkBufferSize) can hold while it is writing.
package history

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/events"
	"github.com/comigor/roundtable/internal/logger"
)

// Record is one archived message.
type Record struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	MessageID string    `json:"message_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Message converts the record back to a conversation message.
func (r Record) Message() conversation.Message {
	return conversation.Message{ID: r.MessageID, Content: r.Content, Sender: conversation.Role(r.Role), Timestamp: r.CreatedAt}
}

type Archive struct {
	path string

	mu     sync.Mutex
	memory []Record // in-memory fallback

	dbOnce  sync.Once
	db      *sql.DB
	initErr error
}

func New(path string) *Archive {
	if path == "" {
		path = "history.db"
	}
	return &Archive{path: path}
}

// initDB opens the SQLite database and creates the messages table if it doesn't exist.
func (a *Archive) initDB() {
	var err error
	a.db, err = sql.Open("sqlite", "file:"+a.path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		a.initErr = err
		logger.L.Warn("sqlite open failed; using in-memory history", "error", err)
		return
	}
	if _, err = a.db.Exec(`CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT,
        message_id TEXT,
        role TEXT,
        content TEXT,
        created_at DATETIME
    );`); err != nil {
		a.initErr = err
		logger.L.Warn("sqlite table creation failed; using in-memory history", "error", err)
		return
	}
	logger.L.Info("sqlite history DB initialized", "path", a.path)
}

func (a *Archive) ready() bool {
	a.dbOnce.Do(a.initDB)
	return a.initErr == nil && a.db != nil
}

// Save archives a message. It is stored in SQLite when available and kept in
// memory only when SQLite cannot take it.
func (a *Archive) Save(runID string, msg conversation.Message) {
	rec := Record{
		RunID:     runID,
		MessageID: msg.ID,
		Role:      string(msg.Sender),
		Content:   msg.Content,
		CreatedAt: msg.Timestamp,
	}

	if a.ready() {
		_, err := a.db.Exec(`INSERT INTO messages (run_id, message_id, role, content, created_at) VALUES (?,?,?,?,?);`,
			rec.RunID, rec.MessageID, rec.Role, rec.Content, rec.CreatedAt)
		if err == nil {
			return
		}
		logger.L.Error("failed to store message in sqlite; falling back to memory", "error", err)
	}

	a.mu.Lock()
	a.memory = append(a.memory, rec)
	a.mu.Unlock()
}

// List returns the archived messages of a run in append order.
func (a *Archive) List(runID string) []Record {
	var out []Record
	if a.ready() {
		rows, err := a.db.Query(`SELECT id, run_id, message_id, role, content, created_at FROM messages WHERE run_id = ? ORDER BY id ASC;`, runID)
		if err == nil {
			defer rows.Close()
			for rows.Next() {
				var r Record
				if err := rows.Scan(&r.ID, &r.RunID, &r.MessageID, &r.Role, &r.Content, &r.CreatedAt); err == nil {
					out = append(out, r)
				}
			}
			return out
		}
		logger.L.Warn("sqlite query failed; reading in-memory history", "error", err)
	}
	a.mu.Lock()
	for _, r := range a.memory {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	a.mu.Unlock()
	return out
}

// Publish makes the archive an events.Sink: message events are saved, other
// events are ignored.
func (a *Archive) Publish(_ context.Context, e events.Event) error {
	if e.Type == events.TypeMessage && e.Message != nil {
		a.Save(e.RunID, *e.Message)
	}
	return nil
}

func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
