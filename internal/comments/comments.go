// Package comments implements the threaded comment store: two-level threads
// (root + reply) over a flat per-document record set, with resolution state
// on roots, cascade delete, mention extraction and audit logging.
package comments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"inkwell/api/internal/activity"
	"inkwell/api/internal/kv"
	"inkwell/api/internal/mention"
	"inkwell/api/internal/util"
)

// Threads are capped at root + reply; replies cannot hold replies.
const maxThreadDepth = 2

var (
	ErrNotFound      = errors.New("comments: comment not found")
	ErrEmptyContent  = errors.New("comments: content must not be empty")
	ErrParentMissing = errors.New("comments: parent comment not found in document")
	ErrParentNotRoot = errors.New("comments: replies cannot be nested")
	ErrNotRoot       = errors.New("comments: resolution applies to root comments only")
	ErrNotAuthor     = errors.New("comments: actor is not the comment author")
)

type Selection struct {
	Start        int    `json:"start"`
	End          int    `json:"end"`
	AnchoredText string `json:"anchoredText"`
}

type Comment struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"documentId"`
	AuthorID     string     `json:"authorId"`
	AuthorName   string     `json:"authorName"`
	AuthorAvatar string     `json:"authorAvatar,omitempty"`
	Content      string     `json:"content"`
	Selection    *Selection `json:"selection,omitempty"`
	ParentID     string     `json:"parentId,omitempty"`
	Mentions     []string   `json:"mentions"`
	Resolved     bool       `json:"resolved"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	// Replies is populated by List only; persisted records are flat.
	Replies []Comment `json:"replies,omitempty"`
}

type Counts struct {
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
}

// Indexer receives comment changes for search. Implementations are expected
// to be asynchronous and must never fail the write path. May be nil.
type Indexer interface {
	IndexComment(comment Comment)
	RemoveComment(commentID string)
}

type AddInput struct {
	AuthorID     string
	AuthorName   string
	AuthorAvatar string
	Content      string
	Selection    *Selection
	ParentID     string
}

type Store struct {
	store   kv.Store
	log     *activity.Log
	indexer Indexer
	locks   *util.KeyedMutex
	indexMu sync.Mutex
}

func NewStore(store kv.Store, activityLog *activity.Log, indexer Indexer) *Store {
	return &Store{
		store:   store,
		log:     activityLog,
		indexer: indexer,
		locks:   util.NewKeyedMutex(),
	}
}

// SetIndexer wires the search indexer after construction. The indexer's scan
// fallback reads from this store, so the two are connected in a second step.
func (s *Store) SetIndexer(indexer Indexer) {
	s.indexer = indexer
}

func commentsKey(documentID string) string {
	return "comments:" + documentID
}

const indexKey = "comments:index"

// Add creates a root comment or a reply. Replies must reference an existing
// root comment in the same document.
func (s *Store) Add(ctx context.Context, documentID string, input AddInput) (Comment, error) {
	if strings.TrimSpace(input.Content) == "" {
		return Comment{}, ErrEmptyContent
	}

	s.locks.Lock(documentID)
	defer s.locks.Unlock(documentID)

	records, err := s.readRecords(ctx, documentID, true)
	if err != nil {
		return Comment{}, err
	}

	if input.ParentID != "" {
		parent := findRecord(records, input.ParentID)
		if parent == nil {
			return Comment{}, ErrParentMissing
		}
		if parent.ParentID != "" {
			return Comment{}, ErrParentNotRoot
		}
	}

	now := time.Now().UTC()
	comment := Comment{
		ID:           util.NewID("cmt"),
		DocumentID:   documentID,
		AuthorID:     input.AuthorID,
		AuthorName:   input.AuthorName,
		AuthorAvatar: input.AuthorAvatar,
		Content:      input.Content,
		Selection:    input.Selection,
		ParentID:     input.ParentID,
		Mentions:     mention.Extract(input.Content),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Index entry first: a dangling id that points at a missing comment reads
	// as not-found, whereas a comment missing from the index could never be
	// updated or deleted again.
	if err := s.setIndexEntry(ctx, comment.ID, documentID); err != nil {
		return Comment{}, err
	}
	if err := s.writeRecords(ctx, documentID, append(records, comment)); err != nil {
		return Comment{}, err
	}

	description := fmt.Sprintf("%s commented: %s", input.AuthorName, snippet(input.Content))
	if input.ParentID != "" {
		description = fmt.Sprintf("%s replied to a comment", input.AuthorName)
	}
	if err := s.log.Record(ctx, documentID, input.AuthorID, input.AuthorName, activity.TypeComment, description); err != nil {
		return Comment{}, err
	}

	if s.indexer != nil {
		s.indexer.IndexComment(comment)
	}
	return comment, nil
}

// List reconstructs the two-level tree: root comments newest first, each
// carrying its replies oldest first. Pure read.
func (s *Store) List(ctx context.Context, documentID string) ([]Comment, error) {
	records, err := s.readRecords(ctx, documentID, false)
	if err != nil {
		log.Printf("comments: list %s: %v", documentID, err)
		return []Comment{}, nil
	}

	// One grouping pass: bucket replies by parent, then assemble.
	repliesByParent := make(map[string][]Comment)
	roots := make([]Comment, 0, len(records))
	for _, record := range records {
		if record.ParentID != "" {
			repliesByParent[record.ParentID] = append(repliesByParent[record.ParentID], record)
			continue
		}
		roots = append(roots, record)
	}

	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].CreatedAt.After(roots[j].CreatedAt)
	})
	for i := range roots {
		replies := repliesByParent[roots[i].ID]
		sort.SliceStable(replies, func(a, b int) bool {
			return replies[a].CreatedAt.Before(replies[b].CreatedAt)
		})
		if replies == nil {
			replies = []Comment{}
		}
		roots[i].Replies = replies
	}
	return roots, nil
}

// Update replaces a comment's content, re-extracting mentions. Only the
// original author may update.
func (s *Store) Update(ctx context.Context, commentID, actorID, content string) (Comment, error) {
	if strings.TrimSpace(content) == "" {
		return Comment{}, ErrEmptyContent
	}

	documentID, err := s.lookupDocument(ctx, commentID)
	if err != nil {
		return Comment{}, err
	}

	s.locks.Lock(documentID)
	defer s.locks.Unlock(documentID)

	records, err := s.readRecords(ctx, documentID, true)
	if err != nil {
		return Comment{}, err
	}
	target := findRecord(records, commentID)
	if target == nil {
		return Comment{}, ErrNotFound
	}
	if target.AuthorID != actorID {
		return Comment{}, ErrNotAuthor
	}

	target.Content = content
	target.Mentions = mention.Extract(content)
	target.UpdatedAt = time.Now().UTC()
	if err := s.writeRecords(ctx, documentID, records); err != nil {
		return Comment{}, err
	}

	description := fmt.Sprintf("%s edited a comment", target.AuthorName)
	if err := s.log.Record(ctx, documentID, actorID, target.AuthorName, activity.TypeEdit, description); err != nil {
		return Comment{}, err
	}

	if s.indexer != nil {
		s.indexer.IndexComment(*target)
	}
	return *target, nil
}

// Delete removes a comment; deleting a root also removes its replies.
// Returns false without error when the id does not exist. Only the author
// may delete.
func (s *Store) Delete(ctx context.Context, commentID, actorID string) (bool, error) {
	documentID, err := s.lookupDocument(ctx, commentID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.locks.Lock(documentID)
	defer s.locks.Unlock(documentID)

	records, err := s.readRecords(ctx, documentID, true)
	if err != nil {
		return false, err
	}
	target := findRecord(records, commentID)
	if target == nil {
		return false, nil
	}
	if target.AuthorID != actorID {
		return false, ErrNotAuthor
	}

	removed := map[string]struct{}{commentID: {}}
	kept := make([]Comment, 0, len(records))
	for _, record := range records {
		if record.ID == commentID || record.ParentID == commentID {
			removed[record.ID] = struct{}{}
			continue
		}
		kept = append(kept, record)
	}

	if err := s.writeRecords(ctx, documentID, kept); err != nil {
		return false, err
	}
	if err := s.removeIndexEntries(ctx, removed); err != nil {
		return false, err
	}

	if s.indexer != nil {
		for id := range removed {
			s.indexer.RemoveComment(id)
		}
	}
	return true, nil
}

// ToggleResolution flips the resolved state of a root comment and returns the
// new state. Replies carry no resolution state and are rejected.
func (s *Store) ToggleResolution(ctx context.Context, commentID, actorID, actorName string) (bool, error) {
	documentID, err := s.lookupDocument(ctx, commentID)
	if err != nil {
		return false, err
	}

	s.locks.Lock(documentID)
	defer s.locks.Unlock(documentID)

	records, err := s.readRecords(ctx, documentID, true)
	if err != nil {
		return false, err
	}
	target := findRecord(records, commentID)
	if target == nil {
		return false, ErrNotFound
	}
	if target.ParentID != "" {
		return false, ErrNotRoot
	}

	target.Resolved = !target.Resolved
	target.UpdatedAt = time.Now().UTC()
	if err := s.writeRecords(ctx, documentID, records); err != nil {
		return false, err
	}

	description := fmt.Sprintf("%s resolved a comment", actorName)
	if !target.Resolved {
		description = fmt.Sprintf("%s reopened a comment", actorName)
	}
	if err := s.log.Record(ctx, documentID, actorID, actorName, activity.TypeResolve, description); err != nil {
		return false, err
	}
	return target.Resolved, nil
}

// Counts reports total comments (roots plus replies) and the resolution
// split, which is counted over roots only.
func (s *Store) Counts(ctx context.Context, documentID string) (Counts, error) {
	records, err := s.readRecords(ctx, documentID, false)
	if err != nil {
		log.Printf("comments: count %s: %v", documentID, err)
		return Counts{}, nil
	}

	counts := Counts{Total: len(records)}
	for _, record := range records {
		if record.ParentID != "" {
			continue
		}
		if record.Resolved {
			counts.Resolved++
		} else {
			counts.Unresolved++
		}
	}
	return counts, nil
}

func findRecord(records []Comment, commentID string) *Comment {
	for i := range records {
		if records[i].ID == commentID {
			return &records[i]
		}
	}
	return nil
}

// readRecords loads a document's flat comment collection. On the write path
// (strict) storage failures and corrupt data are errors so a mutation never
// clobbers records it could not read; missing collections are empty.
func (s *Store) readRecords(ctx context.Context, documentID string, strict bool) ([]Comment, error) {
	payload, err := s.store.Get(ctx, commentsKey(documentID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("comments: read %s: %w", documentID, err)
	}
	var records []Comment
	if err := json.Unmarshal(payload, &records); err != nil {
		if strict {
			return nil, fmt.Errorf("comments: corrupt collection for %s: %w", documentID, err)
		}
		log.Printf("comments: corrupt collection for %s, reading as empty: %v", documentID, err)
		return nil, nil
	}
	return records, nil
}

func (s *Store) writeRecords(ctx context.Context, documentID string, records []Comment) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("comments: marshal %s: %w", documentID, err)
	}
	if err := s.store.Set(ctx, commentsKey(documentID), payload); err != nil {
		return fmt.Errorf("comments: write %s: %w", documentID, err)
	}
	return nil
}

// lookupDocument resolves a comment id to its document via the global index.
func (s *Store) lookupDocument(ctx context.Context, commentID string) (string, error) {
	index, err := s.readIndex(ctx)
	if err != nil {
		return "", err
	}
	documentID, ok := index[commentID]
	if !ok {
		return "", ErrNotFound
	}
	return documentID, nil
}

func (s *Store) setIndexEntry(ctx context.Context, commentID, documentID string) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	index, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	index[commentID] = documentID
	return s.writeIndex(ctx, index)
}

func (s *Store) removeIndexEntries(ctx context.Context, commentIDs map[string]struct{}) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	index, err := s.readIndex(ctx)
	if err != nil {
		return err
	}
	for id := range commentIDs {
		delete(index, id)
	}
	return s.writeIndex(ctx, index)
}

func (s *Store) readIndex(ctx context.Context) (map[string]string, error) {
	payload, err := s.store.Get(ctx, indexKey)
	if errors.Is(err, kv.ErrNotFound) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("comments: read index: %w", err)
	}
	index := make(map[string]string)
	if err := json.Unmarshal(payload, &index); err != nil {
		return nil, fmt.Errorf("comments: corrupt index: %w", err)
	}
	return index, nil
}

func (s *Store) writeIndex(ctx context.Context, index map[string]string) error {
	payload, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("comments: marshal index: %w", err)
	}
	if err := s.store.Set(ctx, indexKey, payload); err != nil {
		return fmt.Errorf("comments: write index: %w", err)
	}
	return nil
}

func snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	runes := []rune(trimmed)
	if len(runes) <= 80 {
		return trimmed
	}
	return string(runes[:77]) + "..."
}
