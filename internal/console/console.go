// Package console renders decoded agent events and session summaries to
// a terminal. Color degrades automatically: a non-TTY writer gets plain
// ASCII output.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"pilot/internal/session"
	"pilot/internal/session/decoder"
	"pilot/internal/session/supervisor"
)

const defaultBarWidth = 20

// Renderer writes human-readable session output.
type Renderer struct {
	out      *termenv.Output
	barWidth int
}

// New builds a renderer for w. Styling is enabled only when w is a
// terminal, and the progress bar widens on wide terminals.
func New(w io.Writer) *Renderer {
	profile := termenv.Ascii
	barWidth := defaultBarWidth
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		profile = termenv.NewOutput(f).Profile
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 80 {
			barWidth = 40
		}
	}
	return &Renderer{out: termenv.NewOutput(w, termenv.WithProfile(profile)), barWidth: barWidth}
}

// NewWithProfile builds a renderer with an explicit color profile.
func NewWithProfile(w io.Writer, profile termenv.Profile) *Renderer {
	return &Renderer{out: termenv.NewOutput(w, termenv.WithProfile(profile)), barWidth: defaultBarWidth}
}

func (r *Renderer) tag(label string, color termenv.ANSIColor) string {
	return r.out.String("[" + label + "]").Foreground(color).Bold().String()
}

// Event renders one decoded event as one or more tagged lines.
func (r *Renderer) Event(ev decoder.Event) {
	switch data := ev.Data.(type) {
	case decoder.AssistantMessageData:
		if data.Thinking != "" {
			line := r.out.String(data.Thinking).Faint().Italic().String()
			fmt.Fprintf(r.out, "%s %s\n", r.tag("thinking", termenv.ANSIMagenta), line)
		}
		if data.Text != "" {
			fmt.Fprintf(r.out, "%s %s\n", r.tag("assistant", termenv.ANSICyan), data.Text)
		}
		for _, tool := range data.Tools {
			fmt.Fprintf(r.out, "%s %s\n", r.tag("tool", termenv.ANSIYellow), tool)
		}
	case decoder.ToolResultData:
		if data.IsError {
			line := r.out.String(data.Content).Foreground(termenv.ANSIRed).String()
			fmt.Fprintf(r.out, "%s %s\n", r.tag("tool error", termenv.ANSIRed), line)
		}
	case decoder.TerminalResultData:
		label, color := "result", termenv.ANSIGreen
		if data.IsError {
			label, color = "result error", termenv.ANSIRed
		}
		fmt.Fprintf(r.out, "%s tokens in=%d out=%d\n", r.tag(label, color), data.InputTokens, data.OutputTokens)
	}
}

// Progress renders a feature checklist progress bar.
func (r *Renderer) Progress(passing, total int) {
	width := r.barWidth
	filled := 0
	if total > 0 {
		filled = passing * width / total
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	styled := r.out.String(bar).Foreground(termenv.ANSIGreen).String()
	fmt.Fprintf(r.out, "[%s] %d/%d features passing\n", styled, passing, total)
}

// Summary renders the terminal outcome of a session.
func (r *Renderer) Summary(res session.Result) {
	color := termenv.ANSIGreen
	if res.Status != supervisor.StatusSuccess {
		color = termenv.ANSIRed
	}
	status := r.out.String(res.Status.String()).Foreground(color).Bold().String()
	fmt.Fprintf(r.out, "session %s: %s", res.SessionID, status)
	if res.Cause != supervisor.CauseNone {
		fmt.Fprintf(r.out, " (%s)", res.Cause)
	}
	fmt.Fprintf(r.out, " in %s, tokens in=%d out=%d\n",
		res.Duration.Round(time.Millisecond), res.TokensIn, res.TokensOut)
}
