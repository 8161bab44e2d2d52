package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"inkwell/api/internal/activity"
	"inkwell/api/internal/comments"
	"inkwell/api/internal/kv"
	"inkwell/api/internal/search"
	"inkwell/api/internal/sharelink"
	"inkwell/api/internal/util"
)

// Actor identifies the user performing an operation. Authentication happens
// upstream; the identity arrives on trusted request headers.
type Actor struct {
	ID     string
	Name   string
	Avatar string
}

type Service struct {
	store    kv.Store
	comments *comments.Store
	links    *sharelink.Manager
	activity *activity.Log
	search   *search.Service
}

func NewService(store kv.Store, commentStore *comments.Store, links *sharelink.Manager, activityLog *activity.Log, searchSvc *search.Service) *Service {
	return &Service{
		store:    store,
		comments: commentStore,
		links:    links,
		activity: activityLog,
		search:   searchSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

type SelectionInput struct {
	Start        int    `json:"start"`
	End          int    `json:"end"`
	AnchoredText string `json:"anchoredText"`
}

type AddCommentInput struct {
	Content   string          `json:"content"`
	ParentID  string          `json:"parentId"`
	Selection *SelectionInput `json:"selection"`
}

func (s *Service) AddComment(ctx context.Context, documentID string, actor Actor, input AddCommentInput) (map[string]any, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Document id is required", nil)
	}

	addInput := comments.AddInput{
		AuthorID:     actor.ID,
		AuthorName:   actor.Name,
		AuthorAvatar: actor.Avatar,
		Content:      input.Content,
		ParentID:     strings.TrimSpace(input.ParentID),
	}
	if input.Selection != nil {
		addInput.Selection = &comments.Selection{
			Start:        input.Selection.Start,
			End:          input.Selection.End,
			AnchoredText: input.Selection.AnchoredText,
		}
	}

	comment, err := s.comments.Add(ctx, documentID, addInput)
	if err != nil {
		return nil, err
	}
	return map[string]any{"comment": commentPayload(comment, time.Now().UTC())}, nil
}

func (s *Service) GetComments(ctx context.Context, documentID string) (map[string]any, error) {
	threads, err := s.comments.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	items := make([]map[string]any, 0, len(threads))
	for _, thread := range threads {
		items = append(items, commentPayload(thread, now))
	}
	return map[string]any{"documentId": documentID, "comments": items}, nil
}

func (s *Service) UpdateComment(ctx context.Context, commentID string, actor Actor, content string) (map[string]any, error) {
	comment, err := s.comments.Update(ctx, commentID, actor.ID, content)
	if err != nil {
		return nil, err
	}
	return map[string]any{"comment": commentPayload(comment, time.Now().UTC())}, nil
}

func (s *Service) DeleteComment(ctx context.Context, commentID string, actor Actor) (map[string]any, error) {
	removed, err := s.comments.Delete(ctx, commentID, actor.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed}, nil
}

func (s *Service) ToggleCommentResolution(ctx context.Context, commentID string, actor Actor) (map[string]any, error) {
	resolved, err := s.comments.ToggleResolution(ctx, commentID, actor.ID, actor.Name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": commentID, "resolved": resolved}, nil
}

func (s *Service) GetCommentCount(ctx context.Context, documentID string) (map[string]any, error) {
	counts, err := s.comments.Counts(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"documentId": documentID,
		"total":      counts.Total,
		"resolved":   counts.Resolved,
		"unresolved": counts.Unresolved,
	}, nil
}

func (s *Service) SearchComments(ctx context.Context, documentID, text string, limit int) (map[string]any, error) {
	resp := s.search.Search(ctx, search.Query{DocumentID: documentID, Text: text, Limit: limit})
	return map[string]any{
		"documentId": documentID,
		"results":    resp.Results,
		"total":      resp.Total,
		"query":      resp.Query,
	}, nil
}

type CreateShareLinkInput struct {
	Permission  string `json:"permission"`
	ExpiresInMs *int64 `json:"expiresInMs"`
	Password    string `json:"password"`
}

type AccessShareLinkInput struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Service) CreateShareLink(ctx context.Context, documentID string, actor Actor, input CreateShareLinkInput) (map[string]any, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Document id is required", nil)
	}

	createInput := sharelink.CreateInput{
		Permission: input.Permission,
		Password:   input.Password,
	}
	if input.ExpiresInMs != nil {
		expiresIn := time.Duration(*input.ExpiresInMs) * time.Millisecond
		createInput.ExpiresIn = &expiresIn
	}

	link, err := s.links.Create(ctx, documentID, actor.ID, actor.Name, createInput)
	if err != nil {
		return nil, err
	}
	return map[string]any{"shareLink": linkPayload(link, time.Now().UTC())}, nil
}

func (s *Service) GetShareLinks(ctx context.Context, documentID string) (map[string]any, error) {
	links, err := s.links.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	items := make([]map[string]any, 0, len(links))
	for _, link := range links {
		items = append(items, linkPayload(link, now))
	}
	return map[string]any{"documentId": documentID, "shareLinks": items}, nil
}

func (s *Service) RevokeShareLink(ctx context.Context, linkID string, actor Actor) (map[string]any, error) {
	removed, err := s.links.Revoke(ctx, linkID, actor.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"removed": removed}, nil
}

func (s *Service) AccessShareLink(ctx context.Context, input AccessShareLinkInput) (map[string]any, error) {
	link, err := s.links.Access(ctx, input.Token, input.Password)
	if err != nil {
		return nil, err
	}
	return map[string]any{"shareLink": linkPayload(link, time.Now().UTC())}, nil
}

func (s *Service) GetActivity(ctx context.Context, documentID string, limit int) (map[string]any, error) {
	entries, err := s.activity.List(ctx, documentID, limit)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"id":          entry.ID,
			"documentId":  entry.DocumentID,
			"actorId":     entry.ActorID,
			"actorName":   entry.ActorName,
			"type":        entry.Type,
			"description": entry.Description,
			"timestamp":   entry.Timestamp.Format(time.RFC3339),
			"timeAgo":     util.TimeAgo(now, entry.Timestamp),
		})
	}
	return map[string]any{"documentId": documentID, "activities": items}, nil
}

func commentPayload(comment comments.Comment, now time.Time) map[string]any {
	payload := map[string]any{
		"id":         comment.ID,
		"documentId": comment.DocumentID,
		"authorId":   comment.AuthorID,
		"authorName": comment.AuthorName,
		"content":    comment.Content,
		"mentions":   comment.Mentions,
		"resolved":   comment.Resolved,
		"createdAt":  comment.CreatedAt.Format(time.RFC3339),
		"updatedAt":  comment.UpdatedAt.Format(time.RFC3339),
		"timeAgo":    util.TimeAgo(now, comment.CreatedAt),
	}
	if comment.AuthorAvatar != "" {
		payload["authorAvatar"] = comment.AuthorAvatar
	}
	if comment.ParentID != "" {
		payload["parentId"] = comment.ParentID
	}
	if comment.Selection != nil {
		payload["selection"] = map[string]any{
			"start":        comment.Selection.Start,
			"end":          comment.Selection.End,
			"anchoredText": comment.Selection.AnchoredText,
		}
	}
	if comment.Replies != nil {
		replies := make([]map[string]any, 0, len(comment.Replies))
		for _, reply := range comment.Replies {
			replies = append(replies, commentPayload(reply, now))
		}
		payload["replies"] = replies
	}
	return payload
}

func linkPayload(link sharelink.ShareLink, now time.Time) map[string]any {
	payload := map[string]any{
		"id":          link.ID,
		"documentId":  link.DocumentID,
		"issuerId":    link.IssuerID,
		"token":       link.Token,
		"permission":  link.Permission,
		"accessCount": link.AccessCount,
		"createdAt":   link.CreatedAt.Format(time.RFC3339),
		"timeAgo":     util.TimeAgo(now, link.CreatedAt),
	}
	if link.ExpiresAt != nil {
		payload["expiresAt"] = link.ExpiresAt.Format(time.RFC3339)
	}
	return payload
}
