package sharelink

import (
	"context"
	"errors"
	"testing"
	"time"

	"inkwell/api/internal/activity"
	"inkwell/api/internal/kv"
)

func newTestManager(t *testing.T) (*Manager, *activity.Log) {
	t.Helper()
	backend := kv.NewMemoryStore()
	activityLog := activity.NewLog(backend, 0, nil)
	return NewManager(backend, activityLog), activityLog
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func TestCreateAndAccess(t *testing.T) {
	manager, activityLog := newTestManager(t)
	ctx := context.Background()

	link, err := manager.Create(ctx, "doc1", "uA", "Avery", CreateInput{Permission: PermissionComment})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(link.Token) != 32 {
		t.Errorf("token length = %d, want 32 hex chars", len(link.Token))
	}
	if link.Permission != PermissionComment || link.DocumentID != "doc1" || link.IssuerID != "uA" {
		t.Errorf("unexpected link: %+v", link)
	}
	if link.AccessCount != 0 {
		t.Errorf("fresh link AccessCount = %d", link.AccessCount)
	}

	accessed, err := manager.Access(ctx, link.Token, "")
	if err != nil {
		t.Fatalf("Access failed: %v", err)
	}
	if accessed.AccessCount != 1 {
		t.Errorf("AccessCount after access = %d, want 1", accessed.AccessCount)
	}
	if accessed.PasswordHash != "" {
		t.Error("Access must never return a password hash")
	}

	entries, err := activityLog.List(ctx, "doc1", 0)
	if err != nil {
		t.Fatalf("activity List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != activity.TypeShare {
		t.Errorf("activity entries = %+v", entries)
	}
}

func TestCreateRejectsUnknownPermission(t *testing.T) {
	manager, _ := newTestManager(t)
	if _, err := manager.Create(context.Background(), "doc1", "uA", "Avery", CreateInput{Permission: "owner"}); !errors.Is(err, ErrInvalidPermission) {
		t.Errorf("err = %v, want ErrInvalidPermission", err)
	}
}

func TestEachAccessIncrementsCountByOne(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	link, err := manager.Create(ctx, "doc1", "uA", "Avery", CreateInput{Permission: PermissionView})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		accessed, err := manager.Access(ctx, link.Token, "")
		if err != nil {
			t.Fatalf("Access %d failed: %v", i, err)
		}
		if accessed.AccessCount != i {
			t.Errorf("AccessCount = %d, want %d", accessed.AccessCount, i)
		}
	}

	// Observable via List as well.
	links, err := manager.List(ctx, "doc1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(links) != 1 || links[0].AccessCount != 3 {
		t.Errorf("List = %+v, want one link with AccessCount 3", links)
	}
}

func TestExpiredLinkIsDeniedEvenWithCorrectPassword(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	link, err := manager.Create(ctx, "doc1", "uA", "Avery", CreateInput{
		Permission: PermissionView,
		ExpiresIn:  durationPtr(-1 * time.Second),
		Password:   "hunter2",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, password := range []string{"", "wrong", "hunter2"} {
		if _, err := manager.Access(ctx, link.Token, password); !errors.Is(err, ErrDenied) {
			t.Errorf("Access(password=%q) err = %v, want ErrDenied", password, err)
		}
	}
}

func TestZeroExpiryIsImmediatelyUnusable(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	link, err := manager.Create(ctx, "doc1", "uA", "Avery", CreateInput{
		Permission: PermissionComment,
		ExpiresIn:  durationPtr(0),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := manager.Access(ctx, link.Token, ""); !errors.Is(err, ErrDenied) {
		t.Errorf("Access on zero-expiry link err = %v, want ErrDenied", err)
	}
}

func TestPasswordProtectedAccess(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	link, err := manager.Create(ctx, "doc1", "uA", "Avery", CreateInput{
		Permission: PermissionEdit,
		Password:   "s3cret",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if link.PasswordHash != "" {
		t.Error("Create must not return the password hash")
	}

	if _, err := manager.Access(ctx, link.Token, ""); !errors.Is(err, ErrDenied) {
		t.Errorf("Access without password err = %v, want ErrDenied", err)
	}
	if _, err := manager.Access(ctx, link.Token, "wrong"); !errors.Is(err, ErrDenied) {
		t.Errorf("Access with wrong password err = %v, want ErrDenied", err)
	}
	accessed, err := manager.Access(ctx, link.Token, "s3cret")
	if err != nil {
		t.Fatalf("Access with correct password failed: %v", err)
	}
	if accessed.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1 (denied attempts must not count)", accessed.AccessCount)
	}
}

func TestUnknownTokenIsDenied(t *testing.T) {
	manager, _ := newTestManager(t)
	if _, err := manager.Access(context.Background(), "no-such-token", ""); !errors.Is(err, ErrDenied) {
		t.Errorf("err = %v, want ErrDenied", err)
	}
}

func TestListNewestFirstAndScopedToDocument(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	first, err := manager.Create(ctx, "doc1", "uA", "Avery", CreateInput{Permission: PermissionView})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := manager.Create(ctx, "doc1", "uA", "Avery", CreateInput{Permission: PermissionEdit})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := manager.Create(ctx, "doc2", "uB", "Blair", CreateInput{Permission: PermissionView}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	links, err := manager.List(ctx, "doc1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("List returned %d links, want 2", len(links))
	}
	if links[0].ID != second.ID || links[1].ID != first.ID {
		t.Errorf("List order = [%s, %s], want newest first", links[0].ID, links[1].ID)
	}
}

func TestRevoke(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	link, err := manager.Create(ctx, "doc1", "uA", "Avery", CreateInput{Permission: PermissionView})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := manager.Revoke(ctx, link.ID, "uB"); !errors.Is(err, ErrNotIssuer) {
		t.Errorf("Revoke by non-issuer err = %v, want ErrNotIssuer", err)
	}

	removed, err := manager.Revoke(ctx, link.ID, "uA")
	if err != nil || !removed {
		t.Fatalf("Revoke = (%v, %v), want (true, nil)", removed, err)
	}

	// Idempotent: second revoke is a no-op.
	removed, err = manager.Revoke(ctx, link.ID, "uA")
	if err != nil || removed {
		t.Errorf("second Revoke = (%v, %v), want (false, nil)", removed, err)
	}

	// Revoked token no longer grants access.
	if _, err := manager.Access(ctx, link.Token, ""); !errors.Is(err, ErrDenied) {
		t.Errorf("Access after revoke err = %v, want ErrDenied", err)
	}
}

func TestTokensAreGloballyUnique(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		documentID := "doc1"
		if i%2 == 0 {
			documentID = "doc2"
		}
		link, err := manager.Create(ctx, documentID, "uA", "Avery", CreateInput{Permission: PermissionView})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, dup := seen[link.Token]; dup {
			t.Fatalf("duplicate token across documents: %s", link.Token)
		}
		seen[link.Token] = struct{}{}
	}
}

type failingStore struct {
	kv.Store
	failSet bool
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failSet {
		return errors.New("backend down")
	}
	return s.Store.Set(ctx, key, value)
}

func TestAccessStorageFailureIsNotDenied(t *testing.T) {
	backend := &failingStore{Store: kv.NewMemoryStore()}
	manager := NewManager(backend, activity.NewLog(backend, 0, nil))
	ctx := context.Background()

	link, err := manager.Create(ctx, "doc1", "uA", "Avery", CreateInput{Permission: PermissionView})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	backend.failSet = true
	_, err = manager.Access(ctx, link.Token, "")
	if err == nil {
		t.Fatal("expected storage failure to propagate")
	}
	if errors.Is(err, ErrDenied) {
		t.Error("storage failure must not masquerade as ErrDenied")
	}

	// The increment did not apply.
	backend.failSet = false
	accessed, err := manager.Access(ctx, link.Token, "")
	if err != nil {
		t.Fatalf("Access failed: %v", err)
	}
	if accessed.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1 (failed access must not count)", accessed.AccessCount)
	}
}
