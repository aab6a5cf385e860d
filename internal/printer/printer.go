// Package printer writes colored, human-readable CLI output.
package printer

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/comigor/roundtable/internal/conversation"
)

var (
	red     = color.New(color.FgRed, color.Bold)
	faint   = color.New(color.Faint)
	human   = color.New(color.FgWhite, color.Bold)
	palette = []*color.Color{
		color.New(color.FgCyan, color.Bold),
		color.New(color.FgGreen, color.Bold),
		color.New(color.FgMagenta, color.Bold),
		color.New(color.FgBlue, color.Bold),
		color.New(color.FgYellow, color.Bold),
	}
)

// Transcript prints messages as they arrive, one color per role.
type Transcript struct {
	out    io.Writer
	colors map[conversation.Role]*color.Color
}

// NewTranscript assigns colors to roles in roster order.
func NewTranscript(out io.Writer, roles []conversation.Role) *Transcript {
	t := &Transcript{out: out, colors: map[conversation.Role]*color.Color{conversation.Human: human}}
	for i, r := range roles {
		t.colors[r] = palette[i%len(palette)]
	}
	return t
}

func (t *Transcript) Message(m conversation.Message) {
	c, ok := t.colors[m.Sender]
	if !ok {
		c = faint
	}
	c.Fprintf(t.out, "%s", m.Sender)
	fmt.Fprintf(t.out, ": %s\n\n", m.Content)
}

func (t *Transcript) Done(reason string) {
	faint.Fprintf(t.out, "-- run complete (%s) --\n", reason)
}

// Error prints title and explanation to stderr and returns a plain error for cobra.
func Error(title, explanation string, suggestions ...string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprintf(os.Stderr, "%s\n", explanation)
	for _, s := range suggestions {
		fmt.Fprintf(os.Stderr, "  - %s\n", s)
	}
	return fmt.Errorf("%s", title)
}
