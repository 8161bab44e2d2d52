package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"inkwell/api/internal/comments"
)

// CommentLister provides the flat comment tree to scan; the comment store
// satisfies it.
type CommentLister interface {
	List(ctx context.Context, documentID string) ([]comments.Comment, error)
}

// Scan is the fallback searcher: a case-insensitive substring walk over one
// document's comments. Documents carry at most a few hundred comments, so a
// linear pass is fine when Meilisearch is away.
type Scan struct {
	lister CommentLister
}

func NewScan(lister CommentLister) *Scan {
	return &Scan{lister: lister}
}

func (s *Scan) Healthy() bool { return true }

func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	roots, err := s.lister.List(ctx, q.DocumentID)
	if err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	needle := strings.ToLower(strings.TrimSpace(q.Text))

	type hit struct {
		result    Result
		createdAt time.Time
	}
	var hits []hit
	consider := func(comment comments.Comment) {
		if needle != "" &&
			!strings.Contains(strings.ToLower(comment.Content), needle) &&
			!strings.Contains(strings.ToLower(comment.AuthorName), needle) {
			return
		}
		hits = append(hits, hit{
			result: Result{
				ID:         comment.ID,
				DocumentID: comment.DocumentID,
				AuthorName: comment.AuthorName,
				Snippet:    snippet(comment.Content),
				Resolved:   comment.Resolved,
				IsReply:    comment.ParentID != "",
			},
			createdAt: comment.CreatedAt,
		})
	}
	for _, root := range roots {
		consider(root)
		for _, reply := range root.Replies {
			consider(reply)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].createdAt.After(hits[j].createdAt)
	})

	total := len(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.result)
	}
	return results, total, nil
}
