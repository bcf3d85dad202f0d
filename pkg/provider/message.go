package provider

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const excerptLimit = 400

// Excerpt returns the post body trimmed for inclusion in a chat message.
func (n *Notification) Excerpt() string {
	text := n.Post.Excerpt
	if text == "" {
		text = n.Post.Raw
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > excerptLimit {
		runes := []rune(text)
		text = string(runes[:excerptLimit]) + "…"
	}
	return text
}

// PlainText renders the notification as a simple text message. Webhook
// sinks without their own rich format use it directly.
func (n *Notification) PlainText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s — new post by @%s\n", n.Topic.Title, n.Post.Username)
	if excerpt := n.Excerpt(); excerpt != "" {
		b.WriteString(excerpt)
		b.WriteString("\n")
	}
	b.WriteString(n.PostURL)
	return b.String()
}

// MarkdownText renders the notification with markdown emphasis for sinks
// that support it.
func (n *Notification) MarkdownText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**[%s](%s)** — new post by @%s\n", n.Topic.Title, n.PostURL, n.Post.Username)
	if excerpt := n.Excerpt(); excerpt != "" {
		b.WriteString(excerpt)
	}
	return b.String()
}
