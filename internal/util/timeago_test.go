package util

import (
	"testing"
	"time"
)

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		ago  time.Duration
		want string
	}{
		{"under a minute", 30 * time.Second, "just now"},
		{"minutes", 5 * time.Minute, "5m ago"},
		{"just over an hour", 3700 * time.Second, "1h ago"},
		{"hours", 7 * time.Hour, "7h ago"},
		{"just over a day", 90000 * time.Second, "1d ago"},
		{"days", 6 * 24 * time.Hour, "6d ago"},
		{"months", 75 * 24 * time.Hour, "2mo ago"},
		{"years", 800 * 24 * time.Hour, "2y ago"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TimeAgo(now, now.Add(-tc.ago))
			if got != tc.want {
				t.Errorf("TimeAgo(-%v) = %q, want %q", tc.ago, got, tc.want)
			}
		})
	}
}

func TestNewTokenLengthAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token := NewToken()
		if len(token) != 32 {
			t.Fatalf("token length = %d, want 32", len(token))
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = struct{}{}
	}
}
