package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// maxLineSize bounds a single log line read by the viewer.
const maxLineSize = 1 << 20

// Entry is one parsed JSON log line.
type Entry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any
	Raw   string
	Valid bool
}

// ViewerConfig filters and formats entries.
type ViewerConfig struct {
	// Level is the minimum level shown. Empty shows everything.
	Level string
	// Pattern must match the raw line when set.
	Pattern *regexp.Regexp
	// Event keeps only messages with this prefix, e.g. "index_".
	Event   string
	NoColor bool
	// PollInterval is how often Follow checks for new lines.
	PollInterval time.Duration
}

// Viewer tails and follows imagedex log files.
type Viewer struct {
	cfg    ViewerConfig
	out    io.Writer
	levels map[string]lipgloss.Style
	dim    lipgloss.Style
}

// NewViewer creates a viewer printing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Viewer{
		cfg: cfg,
		out: out,
		levels: map[string]lipgloss.Style{
			"DEBUG": lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
			"INFO":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
			"WARN":  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
			"ERROR": lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		},
		dim: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Tail returns the last n entries of path that pass the filters.
func (v *Viewer) Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if n <= 0 {
		return nil, nil
	}

	ring := make([]Entry, 0, n)
	next := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		entry := ParseEntry(scanner.Text())
		if !v.Matches(entry) {
			continue
		}
		if len(ring) < n {
			ring = append(ring, entry)
			continue
		}
		ring[next] = entry
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	// Oldest first
	return append(ring[next:], ring[:next]...), nil
}

// Follow calls emit for each matching line appended to path until ctx is
// done. When the file shrinks, as after rotation, it is reopened and read
// from the start.
func (v *Viewer) Follow(ctx context.Context, path string, emit func(Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	reader := bufio.NewReaderSize(f, 64*1024)
	var partial strings.Builder

	ticker := time.NewTicker(v.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if info, err := os.Stat(path); err == nil && info.Size() < offset {
			_ = f.Close()
			if f, err = os.Open(path); err != nil {
				return fmt.Errorf("failed to reopen log file: %w", err)
			}
			reader.Reset(f)
			offset = 0
			partial.Reset()
		}

		for {
			chunk, err := reader.ReadString('\n')
			offset += int64(len(chunk))
			if err != nil {
				// Keep an unterminated line until the rest is written
				partial.WriteString(chunk)
				break
			}
			line := strings.TrimRight(partial.String()+chunk, "\r\n")
			partial.Reset()
			if line == "" {
				continue
			}
			if entry := ParseEntry(line); v.Matches(entry) {
				emit(entry)
			}
		}
	}
}

// Matches reports whether entry passes the level, event and pattern filters.
// Unparseable lines only face the pattern filter.
func (v *Viewer) Matches(entry Entry) bool {
	if entry.Valid {
		if v.cfg.Level != "" && ParseLevel(entry.Level) < ParseLevel(v.cfg.Level) {
			return false
		}
		if v.cfg.Event != "" && !strings.HasPrefix(entry.Msg, v.cfg.Event) {
			return false
		}
	} else if v.cfg.Level != "" || v.cfg.Event != "" {
		return false
	}
	if v.cfg.Pattern != nil && !v.cfg.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

// FormatEntry renders entry as "15:04:05.000 LEVEL msg k=v ...".
// Attributes are sorted by key. Invalid lines are returned raw.
func (v *Viewer) FormatEntry(entry Entry) string {
	if !entry.Valid {
		return entry.Raw
	}

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(v.style(v.dim, entry.Time.Format("15:04:05.000")))
	b.WriteByte(' ')
	b.WriteString(v.formatLevel(entry.Level))
	b.WriteByte(' ')
	b.WriteString(entry.Msg)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(v.style(v.dim, k+"="))
		fmt.Fprint(&b, entry.Attrs[k])
	}
	return b.String()
}

// Print writes entries, one per line.
func (v *Viewer) Print(entries []Entry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(e))
	}
}

func (v *Viewer) formatLevel(level string) string {
	name := strings.ToUpper(ParseLevel(level).String())
	padded := fmt.Sprintf("%-5s", name)
	if style, ok := v.levels[name]; ok {
		return v.style(style, padded)
	}
	return padded
}

func (v *Viewer) style(s lipgloss.Style, text string) string {
	if v.cfg.NoColor {
		return text
	}
	return s.Render(text)
}

// ParseEntry parses one slog JSON line. Lines that are not JSON objects
// come back with Valid false and only Raw set.
func ParseEntry(line string) Entry {
	entry := Entry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return entry
	}
	entry.Valid = true

	if t, ok := data[slog.TimeKey].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			entry.Time = parsed
		}
	}
	entry.Level, _ = data[slog.LevelKey].(string)
	entry.Msg, _ = data[slog.MessageKey].(string)

	delete(data, slog.TimeKey)
	delete(data, slog.LevelKey)
	delete(data, slog.MessageKey)
	entry.Attrs = data
	return entry
}
