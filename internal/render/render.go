// Package render turns a session's message history into the transcript text
// an agent sees. It is purely functional: no I/O, no clock, identical inputs
// produce byte-identical output.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/onyxchat/relay-backend/internal/types"
)

const (
	clientSide   = "🟢 Client"
	operatorSide = "🔵 Operator"
	noMessages   = "No messages yet."
	noUsername   = "(no username)"
)

// AttachmentIndexEntry maps an attachment number shown in the transcript to
// the message that carries the attachment. Numbers are 1-based and local to
// a single render call; they must never be cached across calls.
type AttachmentIndexEntry struct {
	Number    int    `json:"number"`
	MessageID uint64 `json:"message_id"`
}

func formatTimestamp(t time.Time) string {
	return t.Format("15:04 02.01.2006")
}

// SessionText renders the transcript for a session: a header identifying the
// client (and the operator, when assigned) followed by one line per message
// in input order. Attachment-bearing messages without text render as a
// numbered placeholder and are reported in the returned index.
func SessionText(username *string, assignedAgent *int64, msgs []types.Message) (string, []AttachmentIndexEntry) {
	var header []string
	if username != nil && *username != "" {
		header = append(header, fmt.Sprintf("👤 Client: @%s", *username))
	} else {
		header = append(header, fmt.Sprintf("👤 Client: %s", noUsername))
	}
	if assignedAgent != nil {
		header = append(header, fmt.Sprintf("👨‍💼 Operator: %d", *assignedAgent))
	}

	lines := make([]string, 0, len(msgs))
	attachments := []AttachmentIndexEntry{}
	counter := 1

	for _, m := range msgs {
		side := clientSide
		if m.Direction == types.FromAgent {
			side = operatorSide
		}
		ts := formatTimestamp(m.CreatedAt)

		hasText := m.Text != nil && *m.Text != ""
		if m.AttachmentRef != nil && *m.AttachmentRef != "" && !hasText {
			lines = append(lines, fmt.Sprintf("(%s) %s: 🖼 Attachment %d", ts, side, counter))
			attachments = append(attachments, AttachmentIndexEntry{Number: counter, MessageID: m.ID})
			counter++
			continue
		}

		text := "-"
		if hasText {
			text = *m.Text
		}
		lines = append(lines, fmt.Sprintf("(%s) %s: %s", ts, side, text))
	}

	body := noMessages
	if len(lines) > 0 {
		body = strings.Join(lines, "\n")
	}
	return strings.Join(header, "\n") + "\n\n" + body, attachments
}
