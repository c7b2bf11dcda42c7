package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"  _        _      _           _   ", "#818cf8"},
	{" | |_ __ _| | ___| |__   ___ | |_ ", "#a78bfa"},
	{" | __/ _` | |/ _ \\ '_ \\ / _ \\| __|", "#c084fc"},
	{" | || (_| | |  __/ |_) | (_) | |_ ", "#e879f9"},
	{"  \\__\\__,_|_|\\___|_.__/ \\___/ \\__|", "#f472b6"},
}

// PrintBanner writes the talebot banner to w, coloured for w's terminal.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, line := range bannerLines {
		fmt.Fprintln(w, out.String(line.text).Foreground(out.Color(line.color)))
	}
	fmt.Fprintln(w)
}
