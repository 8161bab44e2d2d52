// Package activity keeps the per-document audit journal. Entries are
// append-only; the journal holds at most the retention cap per document and
// older entries are pruned (and optionally archived) as new ones arrive.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"inkwell/api/internal/kv"
	"inkwell/api/internal/util"
)

const (
	TypeCreate  = "create"
	TypeEdit    = "edit"
	TypeComment = "comment"
	TypeShare   = "share"
	TypeResolve = "resolve"
)

// DefaultRetention is the per-document entry cap.
const DefaultRetention = 100

// DefaultListLimit applies when a caller asks for entries without a limit.
const DefaultListLimit = 20

var allowedTypes = map[string]struct{}{
	TypeCreate:  {},
	TypeEdit:    {},
	TypeComment: {},
	TypeShare:   {},
	TypeResolve: {},
}

type Entry struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"documentId"`
	ActorID     string    `json:"actorId"`
	ActorName   string    `json:"actorName"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Archiver receives entries that fell out of the retention window. May be nil.
type Archiver interface {
	Archive(ctx context.Context, documentID string, entries []Entry) error
}

type Log struct {
	store     kv.Store
	retention int
	archiver  Archiver
	locks     *util.KeyedMutex
}

// NewLog creates the journal. retention <= 0 selects DefaultRetention;
// archiver may be nil to discard pruned entries.
func NewLog(store kv.Store, retention int, archiver Archiver) *Log {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{
		store:     store,
		retention: retention,
		archiver:  archiver,
		locks:     util.NewKeyedMutex(),
	}
}

func activityKey(documentID string) string {
	return "activity:" + documentID
}

// Record appends one entry and prunes the document down to the retention cap
// in a single write, so a concurrent reader sees either the old journal or
// the appended-and-pruned one. Entries for other documents are untouched.
func (l *Log) Record(ctx context.Context, documentID, actorID, actorName, entryType, description string) error {
	if _, ok := allowedTypes[entryType]; !ok {
		return fmt.Errorf("activity: unknown entry type %q", entryType)
	}

	l.locks.Lock(documentID)
	defer l.locks.Unlock(documentID)

	entries, err := l.readEntries(ctx, documentID)
	if err != nil {
		return fmt.Errorf("activity: record %s: %w", documentID, err)
	}
	entries = append(entries, Entry{
		ID:          util.NewID("act"),
		DocumentID:  documentID,
		ActorID:     actorID,
		ActorName:   actorName,
		Type:        entryType,
		Description: description,
		Timestamp:   time.Now().UTC(),
	})

	var pruned []Entry
	if len(entries) > l.retention {
		// Entries are appended in timestamp order under the document lock,
		// so the oldest ones are at the front.
		pruned = entries[:len(entries)-l.retention]
		entries = entries[len(entries)-l.retention:]
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("activity: marshal %s: %w", documentID, err)
	}
	if err := l.store.Set(ctx, activityKey(documentID), payload); err != nil {
		return fmt.Errorf("activity: record %s: %w", documentID, err)
	}

	if len(pruned) > 0 && l.archiver != nil {
		batch := make([]Entry, len(pruned))
		copy(batch, pruned)
		go func() {
			archiveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := l.archiver.Archive(archiveCtx, documentID, batch); err != nil {
				log.Printf("activity: archive %d pruned entries for %s: %v", len(batch), documentID, err)
			}
		}()
	}
	return nil
}

// List returns up to limit entries for the document, most recent first.
// limit <= 0 selects DefaultListLimit.
func (l *Log) List(ctx context.Context, documentID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	entries, err := l.readEntries(ctx, documentID)
	if err != nil {
		// Reads degrade: the audit trail is secondary to the document itself.
		log.Printf("activity: list %s: %v", documentID, err)
		return []Entry{}, nil
	}
	recent := make([]Entry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, entries[i])
	}
	return recent, nil
}

// readEntries treats a missing or corrupt journal as empty but surfaces
// adapter failures so writers never clobber a journal they could not read.
func (l *Log) readEntries(ctx context.Context, documentID string) ([]Entry, error) {
	payload, err := l.store.Get(ctx, activityKey(documentID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		log.Printf("activity: corrupt journal for %s, starting empty: %v", documentID, err)
		return nil, nil
	}
	return entries, nil
}
