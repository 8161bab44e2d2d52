// Package sharelink issues and validates opaque-token share links granting
// bounded document access. Validation failures are deliberately uniform: a
// caller cannot tell a missing token from an expired one or a bad password.
package sharelink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"inkwell/api/internal/activity"
	"inkwell/api/internal/kv"
	"inkwell/api/internal/util"
)

const (
	PermissionView    = "view"
	PermissionComment = "comment"
	PermissionEdit    = "edit"
)

var allowedPermissions = map[string]struct{}{
	PermissionView:    {},
	PermissionComment: {},
	PermissionEdit:    {},
}

var (
	// ErrDenied covers unknown token, expired link and wrong password alike.
	ErrDenied            = errors.New("sharelink: access denied")
	ErrInvalidPermission = errors.New("sharelink: permission must be view, comment or edit")
	ErrNotIssuer         = errors.New("sharelink: actor is not the link issuer")
)

type ShareLink struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"documentId"`
	IssuerID     string     `json:"issuerId"`
	Token        string     `json:"token"`
	Permission   string     `json:"permission"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	PasswordHash string     `json:"passwordHash,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	AccessCount  int        `json:"accessCount"`
}

type CreateInput struct {
	Permission string
	// ExpiresIn of nil means the link never expires. Zero and negative
	// durations produce a link that is already unusable.
	ExpiresIn *time.Duration
	Password  string
}

// Manager owns the global share-link collection. Token uniqueness is global,
// so one collection and one mutex serialize every link mutation, which also
// makes validate-then-increment atomic with respect to revoke.
type Manager struct {
	store kv.Store
	log   *activity.Log
	mu    sync.Mutex
}

func NewManager(store kv.Store, activityLog *activity.Log) *Manager {
	return &Manager{store: store, log: activityLog}
}

const linksKey = "share_links"

func (m *Manager) Create(ctx context.Context, documentID, issuerID, issuerName string, input CreateInput) (ShareLink, error) {
	if _, ok := allowedPermissions[input.Permission]; !ok {
		return ShareLink{}, ErrInvalidPermission
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	links, err := m.readLinks(ctx, true)
	if err != nil {
		return ShareLink{}, err
	}

	token := util.NewToken()
	for tokenExists(links, token) {
		token = util.NewToken()
	}

	now := time.Now().UTC()
	link := ShareLink{
		ID:         util.NewID("lnk"),
		DocumentID: documentID,
		IssuerID:   issuerID,
		Token:      token,
		Permission: input.Permission,
		CreatedAt:  now,
	}
	if input.ExpiresIn != nil {
		expiresAt := now.Add(*input.ExpiresIn)
		link.ExpiresAt = &expiresAt
	}
	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return ShareLink{}, fmt.Errorf("sharelink: hash password: %w", err)
		}
		link.PasswordHash = string(hash)
	}

	if err := m.writeLinks(ctx, append(links, link)); err != nil {
		return ShareLink{}, err
	}

	description := fmt.Sprintf("%s created a %s share link", issuerName, input.Permission)
	if err := m.log.Record(ctx, documentID, issuerID, issuerName, activity.TypeShare, description); err != nil {
		return ShareLink{}, err
	}
	return sanitize(link), nil
}

// List returns the document's links newest first, without password hashes.
func (m *Manager) List(ctx context.Context, documentID string) ([]ShareLink, error) {
	links, err := m.readLinks(ctx, false)
	if err != nil {
		log.Printf("sharelink: list %s: %v", documentID, err)
		return []ShareLink{}, nil
	}

	matched := make([]ShareLink, 0)
	for _, link := range links {
		if link.DocumentID == documentID {
			matched = append(matched, sanitize(link))
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// Revoke removes a link. Returns false without error for unknown ids. Only
// the issuer may revoke.
func (m *Manager) Revoke(ctx context.Context, linkID, actorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	links, err := m.readLinks(ctx, true)
	if err != nil {
		return false, err
	}

	kept := make([]ShareLink, 0, len(links))
	removed := false
	for _, link := range links {
		if link.ID == linkID {
			if link.IssuerID != actorID {
				return false, ErrNotIssuer
			}
			removed = true
			continue
		}
		kept = append(kept, link)
	}
	if !removed {
		return false, nil
	}

	if err := m.writeLinks(ctx, kept); err != nil {
		return false, err
	}
	return true, nil
}

// Access validates a token and, on success, increments the access counter in
// the same critical section, so a concurrent revoke either wins entirely or
// sees the incremented link. Every failure is ErrDenied.
func (m *Manager) Access(ctx context.Context, token, password string) (ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	links, err := m.readLinks(ctx, true)
	if err != nil {
		return ShareLink{}, err
	}

	var target *ShareLink
	for i := range links {
		if links[i].Token == token {
			target = &links[i]
			break
		}
	}
	if target == nil {
		return ShareLink{}, ErrDenied
	}
	if target.ExpiresAt != nil && !time.Now().Before(*target.ExpiresAt) {
		return ShareLink{}, ErrDenied
	}
	if target.PasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(target.PasswordHash), []byte(password)) != nil {
			return ShareLink{}, ErrDenied
		}
	}

	target.AccessCount++
	if err := m.writeLinks(ctx, links); err != nil {
		return ShareLink{}, err
	}
	return sanitize(*target), nil
}

func sanitize(link ShareLink) ShareLink {
	link.PasswordHash = ""
	return link
}

func tokenExists(links []ShareLink, token string) bool {
	for _, link := range links {
		if link.Token == token {
			return true
		}
	}
	return false
}

func (m *Manager) readLinks(ctx context.Context, strict bool) ([]ShareLink, error) {
	payload, err := m.store.Get(ctx, linksKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sharelink: read links: %w", err)
	}
	var links []ShareLink
	if err := json.Unmarshal(payload, &links); err != nil {
		if strict {
			return nil, fmt.Errorf("sharelink: corrupt collection: %w", err)
		}
		log.Printf("sharelink: corrupt collection, reading as empty: %v", err)
		return nil, nil
	}
	return links, nil
}

func (m *Manager) writeLinks(ctx context.Context, links []ShareLink) error {
	payload, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("sharelink: marshal links: %w", err)
	}
	if err := m.store.Set(ctx, linksKey, payload); err != nil {
		return fmt.Errorf("sharelink: write links: %w", err)
	}
	return nil
}
