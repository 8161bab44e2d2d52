// Package search makes comments findable. Meilisearch serves queries when it
// is reachable; otherwise a linear scan over the stored records answers, so
// search never goes dark with the engine up.
package search

import (
	"context"
	"log"

	"inkwell/api/internal/comments"
)

// Result is a single comment hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	AuthorName string `json:"authorName"`
	Snippet    string `json:"snippet"`
	Resolved   bool   `json:"resolved"`
	IsReply    bool   `json:"isReply"`
}

// Query describes a comment search request, always scoped to one document.
type Query struct {
	DocumentID string
	Text       string
	Limit      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	AuthorName string `json:"authorName"`
	Content    string `json:"content"`
	Resolved   bool   `json:"resolved"`
	IsReply    bool   `json:"isReply"`
	CreatedAt  int64  `json:"createdAt"`
}

// Searcher can execute a comment search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Service tries Meilisearch first and falls back to scanning the store.
// It also implements the comment store's Indexer.
type Service struct {
	meili *Meili
	scan  *Scan
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, scan *Scan) *Service {
	return &Service{meili: meili, scan: scan}
}

// Search tries Meilisearch if healthy, otherwise scans the comment records.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to scan: %v", err)
	}

	results, total, err := s.scan.Search(ctx, q)
	if err != nil {
		log.Printf("search: scan error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexComment indexes a comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(comment comments.Comment) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := CommentRecord{
		ID:         comment.ID,
		DocumentID: comment.DocumentID,
		AuthorName: comment.AuthorName,
		Content:    comment.Content,
		Resolved:   comment.Resolved,
		IsReply:    comment.ParentID != "",
		CreatedAt:  comment.CreatedAt.Unix(),
	}
	go func() {
		if err := s.meili.IndexComment(record); err != nil {
			log.Printf("search: index comment %s: %v", record.ID, err)
		}
	}()
}

// RemoveComment drops a comment from the index (fire-and-forget).
func (s *Service) RemoveComment(commentID string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteComment(commentID); err != nil {
			log.Printf("search: delete comment %s: %v", commentID, err)
		}
	}()
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
