package cli

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
)

const wordWrap = 80

// newRenderer returns a markdown renderer for w. Stories are rendered with
// glamour on a terminal and written as-is anywhere else.
func newRenderer(w io.Writer) func(markdown string) string {
	plain := func(markdown string) string { return markdown }

	f, ok := w.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return plain
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return plain
	}

	return func(markdown string) string {
		out, err := renderer.Render(markdown)
		if err != nil {
			return markdown
		}
		return strings.TrimRight(out, "\n")
	}
}
