package store

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var transcriptMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// TranscriptMarkdown renders a conversation as a markdown document.
func (s *Store) TranscriptMarkdown(ctx context.Context, conversationID uuid.UUID) (string, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("get conversation: %w", err)
	}
	msgs, err := s.Messages(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("get messages: %w", err)
	}

	var b strings.Builder
	title := conv.Title
	if title == "" {
		title = "Conversation"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_Started %s_\n\n", conv.CreatedAt.Format("2006-01-02 15:04 UTC"))

	for _, m := range msgs {
		switch m.Role {
		case "user":
			b.WriteString("## You\n\n")
		case "assistant":
			b.WriteString("## Tutor\n\n")
		default:
			fmt.Fprintf(&b, "## %s\n\n", m.Role)
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	return b.String(), nil
}

// TranscriptHTML renders a conversation transcript as a standalone
// HTML page.
func (s *Store) TranscriptHTML(ctx context.Context, conversationID uuid.UUID) (string, error) {
	md, err := s.TranscriptMarkdown(ctx, conversationID)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	if err := transcriptMarkdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;line-height:1.5}</style>\n")
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
