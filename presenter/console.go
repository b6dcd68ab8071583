package presenter

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"scanbox/recognizer"
)

// Console writes presentations to a terminal.
type Console struct {
	mu         sync.Mutex
	w          io.Writer
	hyperlinks bool
}

// NewConsole creates a Console. With hyperlinks set, links are emitted as
// OSC-8 escape sequences.
func NewConsole(w io.Writer, hyperlinks bool) *Console {
	return &Console{w: w, hyperlinks: hyperlinks}
}

// ShowPayload implements Display.ShowPayload.
func (c *Console) ShowPayload(p recognizer.Payload, links []Link) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.w, "\n[%s]\n%s\n", p.Format, c.render(p.Text, links))
	for _, l := range links {
		fmt.Fprintf(c.w, "  %s: %s\n", l.Kind, printable(l.Target))
	}
	fmt.Fprintln(c.w, "Press enter to scan again.")
}

// ShowMessage implements Display.ShowMessage.
func (c *Console) ShowMessage(kind MessageKind, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case MessageRationale:
		fmt.Fprintf(c.w, "\n%s [retry: enter]\n", msg)
	default:
		fmt.Fprintf(c.w, "\n%s\n", msg)
	}
}

// Clear implements Display.Clear.
func (c *Console) Clear() {}

func (c *Console) render(text string, links []Link) string {
	if !c.hyperlinks || len(links) == 0 {
		return printable(text)
	}
	var b strings.Builder
	pos := 0
	for _, l := range links {
		b.WriteString(printable(text[pos:l.Start]))
		fmt.Fprintf(&b, "\x1b]8;;%s\x1b\\%s\x1b]8;;\x1b\\", printable(l.Target), printable(l.Text))
		pos = l.End
	}
	b.WriteString(printable(text[pos:]))
	return b.String()
}

// printable replaces terminal control characters in scanned text so a
// payload cannot drive the terminal. C0 controls and DEL become their
// Control Pictures glyphs, C1 controls are written as \u escapes and
// invalid UTF-8 becomes U+FFFD. Newlines and tabs pass through.
func printable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20:
			b.WriteRune(0x2400 + r)
		case r == 0x7f:
			b.WriteRune('\u2421')
		case r >= 0x80 && r <= 0x9f:
			fmt.Fprintf(&b, "\\u%04x", r)
		default:
			// Invalid bytes arrive as utf8.RuneError and are written as U+FFFD.
			b.WriteRune(r)
		}
	}
	return b.String()
}
