// Package ui is the terminal front end of a sync run. It only consumes engine
// events and drives the session's pause and stop switches.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/modsync/internal/engine"
)

const (
	maxLogLines     = 500
	defaultLogLines = 12
	defaultWidth    = 80
)

const (
	txtTitle    = "ModSync"
	txtHelp     = "'p' pause/resume · 'q' stop"
	txtHelpDone = "'q' quit"
	txtPaused   = "PAUSED"
	txtStopping = "stopping after current downloads..."
	txtDone     = "sync finished"
)

type SyncTUIOpts struct {
	ServerURL      string
	VersionDir     string
	PreserveConfig bool
	// AutoQuit leaves the UI as soon as the run ends.
	AutoQuit bool

	Session *engine.Session
	Events  <-chan engine.Event
	// Run performs the sync; events must be sent on Events while it runs.
	Run func() (*engine.Summary, error)
}

type eventMsg engine.Event

type runDoneMsg struct {
	summary *engine.Summary
	err     error
}

type syncModel struct {
	opts *SyncTUIOpts

	overall progress.Model
	file    progress.Model

	logs        []string
	total       int
	completed   int
	filePercent int

	paused   bool
	stopping bool
	done     bool
	summary  *engine.Summary
	err      error

	width  int
	height int
}

func newSyncModel(opts *SyncTUIOpts) syncModel {
	return syncModel{
		opts:    opts,
		overall: progress.New(progress.WithDefaultGradient()),
		file:    progress.New(progress.WithSolidFill("14")),
		width:   defaultWidth,
	}
}

func (m syncModel) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.run())
}

func (m syncModel) listen() tea.Cmd {
	events := m.opts.Events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m syncModel) run() tea.Cmd {
	return func() tea.Msg {
		summary, err := m.opts.Run()
		return runDoneMsg{summary: summary, err: err}
	}
}

func (m syncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m = m.apply(engine.Event(msg))
		return m, m.listen()

	case runDoneMsg:
		m = m.drain()
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		if m.opts.AutoQuit || m.stopping {
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.overall.Width = max(msg.Width-20, 10)
		m.file.Width = max(msg.Width-20, 10)
	}

	return m, nil
}

func (m syncModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		if m.done {
			return m, tea.Quit
		}
		if !m.stopping {
			m.stopping = true
			m.opts.Session.Stop()
			m.logs = appendLog(m.logs, txtStopping)
		}

	case "p", " ":
		if m.done || m.stopping {
			return m, nil
		}
		m.paused = m.opts.Session.TogglePause()
	}

	return m, nil
}

func (m syncModel) apply(ev engine.Event) syncModel {
	switch ev.Kind {
	case engine.EventLog:
		m.logs = appendLog(m.logs, ev.Text)
	case engine.EventTotalTasks:
		m.total = ev.Value
		m.completed = 0
	case engine.EventOverallProgress:
		m.completed = ev.Value
	case engine.EventFileProgress:
		m.filePercent = ev.Value
	}
	return m
}

// drain applies whatever the engine sent before the run returned.
func (m syncModel) drain() syncModel {
	for {
		select {
		case ev, ok := <-m.opts.Events:
			if !ok {
				return m
			}
			m = m.apply(ev)
		default:
			return m
		}
	}
}

func appendLog(logs []string, line string) []string {
	logs = append(logs, line)
	if len(logs) > maxLogLines {
		logs = logs[len(logs)-maxLogLines:]
	}
	return logs
}

func (m syncModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(txtTitle))
	if m.paused {
		b.WriteString("  " + pauseStyle.Render(txtPaused))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s%s\n", labelStyle.Render("Server   "), valueStyle.Render(m.opts.ServerURL)))
	b.WriteString(fmt.Sprintf("%s%s\n", labelStyle.Render("Version  "), valueStyle.Render(m.opts.VersionDir)))
	b.WriteString(fmt.Sprintf("%s%s\n\n", labelStyle.Render("Config   "), valueStyle.Render(preserveText(m.opts.PreserveConfig))))

	b.WriteString(logBox.Width(max(m.width-2, 20)).Render(strings.Join(m.tail(), "\n")))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s %d/%d\n", labelStyle.Render("Overall"), m.overall.ViewAs(m.overallRatio()), m.completed, m.total))
	b.WriteString(fmt.Sprintf("%s %s\n\n", labelStyle.Render("File   "), m.file.ViewAs(float64(m.filePercent)/100)))

	switch {
	case m.done && m.err != nil:
		b.WriteString(errorStyle.Render("ERROR: ") + m.err.Error() + "\n")
	case m.done && m.summary != nil:
		b.WriteString(green.Render(txtDone) + " " + summaryText(m.summary) + "\n")
	}

	if m.done {
		b.WriteString(helpStyle.Render(txtHelpDone))
	} else {
		b.WriteString(helpStyle.Render(txtHelp))
	}
	b.WriteString("\n")
	return b.String()
}

func (m syncModel) tail() []string {
	n := defaultLogLines
	if m.height > 0 {
		n = max(m.height-14, 3)
	}
	if len(m.logs) <= n {
		return m.logs
	}
	return m.logs[len(m.logs)-n:]
}

func (m syncModel) overallRatio() float64 {
	if m.total == 0 {
		if m.done {
			return 1
		}
		return 0
	}
	return float64(m.completed) / float64(m.total)
}

func preserveText(preserve bool) string {
	if preserve {
		return "keep existing config files"
	}
	return "overwrite config files"
}

func summaryText(s *engine.Summary) string {
	return fmt.Sprintf("(%d downloaded, %d failed, %d deleted, %d archived)",
		s.Downloaded, s.Failed, s.Deleted, len(s.Archived))
}

// RunSyncTUI runs opts.Run behind a full screen progress view and returns its
// outcome once the user leaves the UI.
func RunSyncTUI(opts SyncTUIOpts) (*engine.Summary, error) {
	model, err := tea.NewProgram(newSyncModel(&opts), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, fmt.Errorf("TUI encountered an error during execution: %w", err)
	}

	fm, ok := model.(syncModel)
	if !ok || !fm.done {
		return nil, fmt.Errorf("sync interrupted")
	}
	return fm.summary, fm.err
}
