package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// hasStdinInput checks if data is available from r (pipe or redirect).
// Readers that are not files are always treated as piped input.
func hasStdinInput(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	fd := f.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// readStdinInput reads all available input from r
func readStdinInput(r io.Reader) (string, error) {
	var content strings.Builder
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		content.WriteString(scanner.Text())
		content.WriteString("\n")
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}

	return strings.TrimSuffix(content.String(), "\n"), nil
}
