package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
)

var (
	colorSuccess = lipgloss.Color("#50C878")
	colorError   = lipgloss.Color("#FF6961")
	colorMuted   = lipgloss.Color("#808080")
)

// Notifier prints operation results the way the editor panel shows
// notifications: successes as info lines, failures as error lines.
type Notifier struct {
	w     io.Writer
	ok    lipgloss.Style
	err   lipgloss.Style
	dim   lipgloss.Style
	quiet bool
}

// NewNotifier styles output for w; colour is dropped when w is not a
// terminal. quiet suppresses progress lines.
func NewNotifier(w io.Writer, quiet bool) *Notifier {
	r := lipgloss.NewRenderer(w)
	return &Notifier{
		w:     w,
		ok:    r.NewStyle().Foreground(colorSuccess).Bold(true),
		err:   r.NewStyle().Foreground(colorError).Bold(true),
		dim:   r.NewStyle().Foreground(colorMuted),
		quiet: quiet,
	}
}

// Result prints r as an info or error line.
func (n *Notifier) Result(r outcome.Result) {
	if r.OK {
		n.Info(r.Message)
		return
	}
	n.Error(r.String())
}

// Info prints an informational line.
func (n *Notifier) Info(msg string) {
	fmt.Fprintf(n.w, "%s %s\n", n.ok.Render("✓"), msg)
}

// Error prints an error line.
func (n *Notifier) Error(msg string) {
	fmt.Fprintf(n.w, "%s %s\n", n.err.Render("✗"), msg)
}

// Status prints a progress line. It matches outcome.Reporter.
func (n *Notifier) Status(s outcome.Status) {
	if n.quiet {
		return
	}
	fmt.Fprintln(n.w, n.dim.Render(fmt.Sprintf("  %s: %s", s.Stage, s.Message)))
}
