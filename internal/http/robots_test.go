package http

import (
	"net/http"
	"testing"
)

func TestIsDisallowed(t *testing.T) {
	noindex := NewDirectiveSet([]string{"noindex"})

	tests := []struct {
		name   string
		values []string
		token  string
		set    map[string]struct{}
		want   bool
	}{
		{"matching token", []string{"mybot: noindex"}, "mybot", noindex, true},
		{"other token", []string{"mybot: noindex"}, "otherbot", noindex, false},
		{"no token is wildcard", []string{"noindex"}, "mybot", noindex, true},
		{"no token and no configured token", []string{"noindex"}, "", noindex, true},
		{"token case insensitive", []string{"MyBot: NOINDEX"}, "mybot", noindex, true},
		{"directive list", []string{"nofollow, noindex"}, "mybot", noindex, true},
		{"no matching directive", []string{"nofollow, noarchive"}, "mybot", noindex, false},
		{"second value matches", []string{"otherbot: noindex", "mybot: noindex"}, "mybot", noindex, true},
		{"malformed value skipped", []string{"mybot:", "noindex"}, "mybot", noindex, true},
		{"only malformed", []string{" , ", ""}, "mybot", noindex, false},
		{"no header", nil, "mybot", noindex, false},
		{"empty set", []string{"noindex"}, "mybot", nil, false},
		{"empty token segment without configured token", []string{": noindex"}, "", noindex, false},
		{"empty token segment with configured token", []string{": noindex"}, "mybot", noindex, false},
		{"token without configured token", []string{"mybot: noindex"}, "", noindex, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, v := range tt.values {
				h.Add("X-Robots-Tag", v)
			}
			if got := IsDisallowed(h, tt.token, tt.set); got != tt.want {
				t.Errorf("IsDisallowed(%q, %q) = %v, want %v", tt.values, tt.token, got, tt.want)
			}
		})
	}
}

func TestIsDisallowedIdempotent(t *testing.T) {
	h := http.Header{}
	h.Add("X-Robots-Tag", "mybot: noai, noimageai")
	set := NewDirectiveSet([]string{"noai"})

	first := IsDisallowed(h, "mybot", set)
	for i := 0; i < 5; i++ {
		if got := IsDisallowed(h, "mybot", set); got != first {
			t.Fatalf("call %d returned %v, first returned %v", i, got, first)
		}
	}
}

func TestNewDirectiveSet(t *testing.T) {
	set := NewDirectiveSet([]string{" NoAI ", "", "noindex"})
	if len(set) != 2 {
		t.Fatalf("expected 2 directives, got %d", len(set))
	}
	if _, ok := set["noai"]; !ok {
		t.Error("expected normalized 'noai'")
	}
	if NewDirectiveSet(nil) != nil {
		t.Error("expected nil set for no directives")
	}
}
