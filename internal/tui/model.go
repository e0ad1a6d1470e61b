// Package tui renders a pipeline run in the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"storymaker/internal/domain"
	"storymaker/internal/pipeline"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	stageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Italic(true)
)

type imageState int

const (
	imagePending imageState = iota
	imageDone
	imageFailed
)

type imageLine struct {
	id      string
	state   imageState
	detail  string
	elapsed float64
}

// RunResult is what the pipeline returned once its event stream closed.
type RunResult struct {
	Result *pipeline.Result
	Err    error
}

type eventMsg struct{ event pipeline.Event }

type streamClosedMsg struct{}

type runDoneMsg RunResult

// Model follows one pipeline run: it reads events until the channel closes,
// then waits for the run result and quits.
type Model struct {
	events <-chan pipeline.Event
	done   <-chan RunResult
	cancel func()

	spinner spinner.Model
	bar     progress.Model

	stage      int
	progress   int
	heading    string
	message    string
	storyTitle string
	images     []imageLine
	failure    string

	finished bool
	result   RunResult
	width    int
}

// New builds a model that consumes events and done. cancel is invoked when
// the user quits before the run ends.
func New(events <-chan pipeline.Event, done <-chan RunResult, cancel func()) Model {
	return Model{
		events:  events,
		done:    done,
		cancel:  cancel,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(stageStyle)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
		heading: "Starting",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func waitForEvent(ch <-chan pipeline.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{event: e}
	}
}

func waitForResult(ch <-chan RunResult) tea.Cmd {
	return func() tea.Msg {
		return runDoneMsg(<-ch)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.finished && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, min(72, msg.Width-8))
		return m, nil
	case eventMsg:
		m.apply(msg.event)
		return m, waitForEvent(m.events)
	case streamClosedMsg:
		return m, waitForResult(m.done)
	case runDoneMsg:
		m.finished = true
		m.result = RunResult(msg)
		return m, tea.Quit
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(e pipeline.Event) {
	m.stage = e.StageNumber()
	if e.Type() != pipeline.EventError {
		m.progress = e.ProgressValue()
	}
	switch ev := e.(type) {
	case pipeline.StageEvent:
		m.heading, m.message = ev.Title, ev.Message
	case pipeline.StoryCreatedEvent:
		m.heading, m.message = ev.Title, ev.Message
		m.storyTitle = ev.Data.Title
	case pipeline.ImageStartEvent:
		m.heading = "Illustrating"
		m.message = ev.Message
		m.images = append(m.images, imageLine{id: ev.ImageID, state: imagePending})
	case pipeline.ImageDoneEvent:
		m.message = ev.Message
		m.settle(ev.ImageID, imageDone, ev.ImageURL, ev.Elapsed)
	case pipeline.ImageErrorEvent:
		m.message = ev.Message
		m.settle(ev.ImageID, imageFailed, ev.Error, ev.Elapsed)
	case pipeline.ErrorEvent:
		m.heading, m.message = ev.Title, ev.Message
		m.failure = ev.Message
	case pipeline.CompleteEvent:
		m.heading, m.message = ev.Title, ev.Message
	}
}

func (m *Model) settle(id string, state imageState, detail string, elapsed float64) {
	for i := range m.images {
		if m.images[i].id == id {
			m.images[i].state = state
			m.images[i].detail = detail
			m.images[i].elapsed = elapsed
			return
		}
	}
	m.images = append(m.images, imageLine{id: id, state: state, detail: detail, elapsed: elapsed})
}

// Progress reports the last progress value seen.
func (m Model) Progress() int { return m.progress }

// Failed reports whether the run ended with an error event.
func (m Model) Failed() bool { return m.failure != "" }

// Result returns the run result once the model has finished.
func (m Model) Result() (RunResult, bool) { return m.result, m.finished }

func (m Model) View() string {
	var b strings.Builder
	header := "Storymaker"
	if m.storyTitle != "" {
		header += ": " + m.storyTitle
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	indicator := m.spinner.View()
	if m.finished {
		indicator = okStyle.Render("✓")
		if m.Failed() {
			indicator = failStyle.Render("✗")
		}
	}
	fmt.Fprintf(&b, "%s %s %s\n", indicator, stageStyle.Render(fmt.Sprintf("[%d/%d] %s", max(m.stage, 1), pipeline.StageFinalize, m.heading)), messageStyle.Render(m.message))
	b.WriteString(m.bar.ViewAs(float64(m.progress) / 100))
	b.WriteString("\n")

	if len(m.images) > 0 {
		b.WriteString("\n")
		for _, img := range m.images {
			b.WriteString(renderImage(img))
			b.WriteString("\n")
		}
	}

	if m.finished {
		b.WriteString("\n")
		b.WriteString(m.summary())
		b.WriteString("\n")
	} else {
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("q to cancel"))
		b.WriteString("\n")
	}
	return b.String()
}

func renderImage(img imageLine) string {
	switch img.state {
	case imageDone:
		return okStyle.Render(fmt.Sprintf("  ✓ %-8s %5.1fs  %s", img.id, img.elapsed, img.detail))
	case imageFailed:
		return failStyle.Render(fmt.Sprintf("  ✗ %-8s %5.1fs  %s", img.id, img.elapsed, img.detail))
	default:
		return pendingStyle.Render(fmt.Sprintf("  … %-8s", img.id))
	}
}

func (m Model) summary() string {
	if m.failure != "" {
		return failStyle.Render("Generation failed: " + m.failure)
	}
	if m.result.Err != nil {
		return failStyle.Render("Generation failed: " + m.result.Err.Error())
	}
	var rec *domain.StoryRecord
	if m.result.Result != nil {
		rec = m.result.Result.Record
	}
	if rec == nil {
		return messageStyle.Render("Run finished.")
	}
	lines := []string{
		okStyle.Render(fmt.Sprintf("%q saved in %.1fs (%d images, %d failed)", rec.Title, rec.TotalTime, rec.Succeeded, rec.Failed)),
		messageStyle.Render("folder: " + rec.Folder),
	}
	return strings.Join(lines, "\n")
}
