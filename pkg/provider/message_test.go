package provider

import (
	"strings"
	"testing"
	"unicode/utf8"

	"chatrelay/pkg/forum"
)

func testNotification(raw, excerpt string) *Notification {
	return &Notification{
		Post:    &forum.Post{Username: "alice", Raw: raw, Excerpt: excerpt},
		Topic:   &forum.Topic{Title: "Release notes"},
		PostURL: "https://forum.example.com/t/release-notes/1/1",
	}
}

func TestExcerptPrefersForumExcerpt(t *testing.T) {
	n := testNotification("full raw body", "short excerpt")
	if got := n.Excerpt(); got != "short excerpt" {
		t.Errorf("expected forum excerpt, got %q", got)
	}

	n = testNotification("full raw body", "")
	if got := n.Excerpt(); got != "full raw body" {
		t.Errorf("expected raw fallback, got %q", got)
	}
}

func TestExcerptTruncation(t *testing.T) {
	long := strings.Repeat("é", 450)
	n := testNotification(long, "")
	got := n.Excerpt()
	if utf8.RuneCountInString(got) != 401 {
		t.Errorf("expected 400 runes plus ellipsis, got %d", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("expected ellipsis suffix")
	}
}

func TestPlainTextIncludesLink(t *testing.T) {
	n := testNotification("body", "")
	text := n.PlainText()
	if !strings.Contains(text, "Release notes") {
		t.Error("expected topic title")
	}
	if !strings.Contains(text, "@alice") {
		t.Error("expected author")
	}
	if !strings.Contains(text, n.PostURL) {
		t.Error("expected post url")
	}
}
