package router

import (
	"strings"

	"github.com/aatumaykin/nanoclaw/internal/store"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// formatPrompt renders missed messages as the XML block the agent parses.
// Sender names and content are escaped so message text can never inject
// markup into the prompt structure.
func formatPrompt(msgs []*store.Message) string {
	var b strings.Builder
	b.WriteString("<messages>\n")
	for _, m := range msgs {
		b.WriteString(`<message sender="`)
		b.WriteString(xmlEscaper.Replace(m.SenderName))
		b.WriteString(`" time="`)
		b.WriteString(m.Timestamp)
		b.WriteString(`">`)
		b.WriteString(xmlEscaper.Replace(m.Content))
		b.WriteString("</message>\n")
	}
	b.WriteString("</messages>")
	return b.String()
}
