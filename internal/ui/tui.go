package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer provides rich terminal UI using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *indexingModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
// Returns an error if TUI initialization fails (e.g., non-TTY output).
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, cfg.StorePath, cfg.QueueCapacity)

	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	// Ctrl+C is left to the command's signal handler so the pipeline can drain.
	opts = append(opts, tea.WithoutSignalHandler())

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Update(event)
	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Update(ProgressEvent{
		Stage:     StageComplete,
		Processed: stats.Processed,
		Skipped:   stats.Skipped,
		Failed:    stats.Failed,
		Elapsed:   stats.Duration,
		PerItem:   stats.PerItem,
	})
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}

	program.Quit()
	// Wait with timeout to avoid hanging on an unresponsive terminal
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	return nil
}

// Message types for bubbletea
type progressUpdateMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

// indexingModel is the bubbletea model for indexing progress.
type indexingModel struct {
	tracker       *ProgressTracker
	width         int
	height        int
	complete      bool
	stats         CompletionStats
	spinner       spinner.Model
	queueBar      progress.Model
	styles        Styles
	storePath     string
	queueCapacity int
}

func newIndexingModel(tracker *ProgressTracker, storePath string, queueCapacity int) *indexingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	bar := progress.New(
		progress.WithSolidFill(ColorLime),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &indexingModel{
		tracker:       tracker,
		spinner:       s,
		queueBar:      bar,
		styles:        DefaultStyles(),
		width:         80,
		height:        24,
		storePath:     storePath,
		queueCapacity: queueCapacity,
	}
}

// Init implements tea.Model.
func (m *indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// tickCmd returns a command that ticks every 100ms.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.queueBar.Width = max(msg.Width-30, 20)

	case progressUpdateMsg, errorMsg:
		// Already handled by tracker in renderer
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *indexingModel) View() string {
	if m.complete {
		return m.renderComplete()
	}

	contentWidth := max(m.width-4, 40)

	sections := []string{
		m.renderStages(),
		m.renderDivider(contentWidth),
		m.renderCounters(),
		m.renderQueue(),
		m.renderDivider(contentWidth),
		m.renderSparklines(contentWidth),
	}

	title := "imagedex indexer"
	if m.storePath != "" {
		title = fmt.Sprintf("imagedex indexer • %s", m.storePath)
	}
	panel := m.wrapInPanel(title, strings.Join(sections, "\n"), contentWidth)

	return panel + "\n" + m.renderStatusBar()
}

// renderStages renders the pipeline stage indicators.
func (m *indexingModel) renderStages() string {
	current := m.tracker.Stats().Stage

	stages := []Stage{StageLoading, StageDraining, StageCommitting}
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		var icon string
		var style lipgloss.Style

		switch {
		case s < current:
			icon = "●"
			style = m.styles.Success
		case s == current:
			icon = m.spinner.View()
			style = m.styles.Active
		default:
			icon = "○"
			style = m.styles.Dim
		}
		parts = append(parts, style.Render(icon+" "+s.String()))
	}

	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

// renderCounters renders processed/skipped/failed, speed and per-item time.
func (m *indexingModel) renderCounters() string {
	stats := m.tracker.Stats()

	counts := fmt.Sprintf("%s %s  %s %s  %s %s",
		m.styles.Label.Render("processed"), m.styles.Value.Render(fmt.Sprintf("%d", stats.Processed)),
		m.styles.Label.Render("skipped"), m.styles.Value.Render(fmt.Sprintf("%d", stats.Skipped)),
		m.styles.Label.Render("failed"), m.styles.Value.Render(fmt.Sprintf("%d", stats.Failed)))

	speed := fmt.Sprintf("Speed: %.0f/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		speed += fmt.Sprintf(" (avg: %.0f, peak: %.0f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	timing := fmt.Sprintf("%s elapsed, %s per item", formatDuration(stats.Elapsed), formatPerItem(stats.PerItem))

	sep := m.styles.Dim.Render("  •  ")
	return counts + "\n" + m.styles.Label.Render(speed) + sep + m.styles.Label.Render(timing)
}

// renderQueue renders the queue fill bar, or the bare depth when the
// capacity is unknown.
func (m *indexingModel) renderQueue() string {
	stats := m.tracker.Stats()
	depth := fmt.Sprintf("queue %d (peak %d)", stats.QueueDepth, stats.MaxDepth)

	if m.queueCapacity <= 0 {
		return m.styles.Label.Render(depth)
	}
	fill := min(float64(stats.QueueDepth)/float64(m.queueCapacity), 1)
	return m.queueBar.ViewAs(fill) + "  " + m.styles.Label.Render(depth)
}

// renderSparklines renders throughput and queue depth history.
func (m *indexingModel) renderSparklines(width int) string {
	sparkWidth := max(width-14, 10)
	throughput := m.styles.Sparkline.Render(m.tracker.RenderThroughput(sparkWidth)) +
		" " + m.styles.Dim.Render("throughput")
	depth := m.styles.Depth.Render(m.tracker.RenderDepth(sparkWidth)) +
		" " + m.styles.Dim.Render("queue")
	return throughput + "\n" + depth
}

// renderDivider renders a horizontal divider line.
func (m *indexingModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

// wrapInPanel wraps content in a box border with title.
func (m *indexingModel) wrapInPanel(title, content string, width int) string {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(content),
	)
}

// renderStatusBar renders warning and error counts.
func (m *indexingModel) renderStatusBar() string {
	stats := m.tracker.Stats()
	var parts []string

	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}

	hint := m.styles.Dim.Render("ctrl+c to stop and commit")
	if len(parts) == 0 {
		return hint
	}
	sep := m.styles.Dim.Render("  │  ")
	return strings.Join(parts, sep) + sep + hint
}

// renderComplete renders the completion summary.
func (m *indexingModel) renderComplete() string {
	contentWidth := max(m.width-4, 40)

	label := m.styles.Label.Render
	value := func(format string, a ...any) string {
		return m.styles.Active.Render(fmt.Sprintf(format, a...))
	}

	lines := []string{
		m.styles.Success.Render("✓ Indexing Complete"),
		"",
		label("Processed: ") + value("%d", m.stats.Processed),
		label("Indexed:   ") + value("%d", m.stats.Indexed),
		label("Duration:  ") + value("%s", formatDuration(m.stats.Duration)),
		label("Per item:  ") + value("%s", formatPerItem(m.stats.PerItem)),
	}
	if m.stats.MaxDepth > 0 {
		lines = append(lines, label("Peak queue:")+" "+value("%d", m.stats.MaxDepth))
	}

	if m.stats.Skipped > 0 || m.stats.Failed > 0 {
		lines = append(lines, "")
		if m.stats.Skipped > 0 {
			lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d skipped", m.stats.Skipped)))
		}
		if m.stats.Failed > 0 {
			lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", m.stats.Failed)))
		}
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorLime)).
		Padding(1, 2).
		Width(contentWidth)

	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}

// Ensure TUIRenderer implements Renderer
var _ Renderer = (*TUIRenderer)(nil)
