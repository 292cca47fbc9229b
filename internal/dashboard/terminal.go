package dashboard

import (
	"os"
	"strings"

	"github.com/vito/midterm"
)

// renderRawOutput replays the raw output file through a virtual
// terminal and returns the resulting screen as plain text. The
// terminal auto-resizes in both dimensions, so cursor movement and
// carriage returns collapse like a real screen while no line ever
// scrolls off the top.
func renderRawOutput(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	vt := midterm.NewAutoResizingTerminal()
	vt.Write(data) //nolint:errcheck

	lines := make([]string, 0, vt.UsedHeight())
	for row := 0; row < vt.UsedHeight() && row < len(vt.Content); row++ {
		lines = append(lines, strings.TrimRight(string(vt.Content[row]), " "))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n") + "\n", nil
}
