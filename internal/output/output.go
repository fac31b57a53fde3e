// Package output formats command-line results: status lines and ranked
// image listings for the search command.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/imagedex/internal/record"
	"github.com/Aman-CERP/imagedex/internal/ui"
	"github.com/Aman-CERP/imagedex/pkg/searcher"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. Color is used only when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	noColor := !ui.IsTTY(out) || ui.DetectNoColor()
	return &Writer{out: out, styles: ui.GetStyles(noColor)}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Hits prints ranked images, one block per hit:
//
//	1. Flatiron Building  flatiron  score 6.00
//	   skyscraper · New York · 40.7411,-73.9897 · 0.88 km
//	   nyc/flatiron.jpg
//
// The distance is shown only for plain geo hits.
func (w *Writer) Hits(header string, hits []searcher.Hit) {
	if len(hits) == 0 {
		w.Status("🔍", "No images found for "+header)
		return
	}

	w.Statusf("🔍", "%d result%s for %s", len(hits), plural(len(hits)), header)
	w.Newline()
	for i, h := range hits {
		w.hit(i+1, h)
	}
}

func (w *Writer) hit(num int, h searcher.Hit) {
	title := h.Fields[record.FieldTitle]
	if title == "" {
		title = "(untitled)"
	}
	_, _ = fmt.Fprintf(w.out, "%3d. %s  %s  %s\n",
		num,
		w.styles.Active.Render(title),
		w.styles.Label.Render(h.Identity),
		w.styles.Success.Render(fmt.Sprintf("score %.2f", h.Score)))

	details := make([]string, 0, 4)
	for _, key := range []string{record.FieldTags, record.FieldLocation} {
		if v := h.Fields[key]; v != "" {
			details = append(details, v)
		}
	}
	lat, lng := h.Fields[record.FieldLatitude], h.Fields[record.FieldLongitude]
	if lat != "" && lng != "" {
		details = append(details, lat+","+lng)
	}
	if len(h.Sources) == 0 && h.Distance > 0 {
		details = append(details, fmt.Sprintf("%.2f km", h.Distance))
	}
	if len(details) > 0 {
		_, _ = fmt.Fprintf(w.out, "     %s\n", strings.Join(details, " · "))
	}
	if file := h.Fields[record.FieldFileRef]; file != "" {
		_, _ = fmt.Fprintf(w.out, "     %s\n", w.styles.Label.Render(file))
	}
	if len(h.Sources) > 0 {
		_, _ = fmt.Fprintf(w.out, "     %s\n", w.styles.Label.Render("via "+strings.Join(h.Sources, ", ")))
	}
}

// KeyValue prints aligned key/value rows.
func (w *Writer) KeyValue(rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r[0]))
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w.out, "  %-*s  %s\n", width+1, r[0]+":", r[1])
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
