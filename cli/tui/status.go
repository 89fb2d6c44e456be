package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/catalogfeed/cli/reader"
)

const timeLayout = "2006-01-02 15:04:05"

// StatusModel is a Bubble Tea model for the status view.
type StatusModel struct {
	data     *reader.StatusResponse
	keys     keyMap
	width    int
	height   int
	quitting bool
}

// NewStatusModel creates a status model.
func NewStatusModel(data *reader.StatusResponse) StatusModel {
	return StatusModel{data: data, keys: defaultKeys}
}

// Init implements tea.Model.
func (m StatusModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatusModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Feed " + m.data.Feed))
	b.WriteString("\n")
	b.WriteString(field("Phase:", PhaseStyle(m.data.Phase).Render(m.data.Phase)))

	if cur := m.data.Current; cur != nil {
		b.WriteString("\n")
		b.WriteString(m.renderCurrent(cur))
	}
	b.WriteString("\n")
	b.WriteString(m.renderLatest(m.data.Latest))

	help := HelpStyle.Render(m.keys.Quit.Help().Key + " quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}

func (m StatusModel) renderCurrent(cur *reader.CurrentRun) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Current Run"))
	b.WriteString("\n")
	b.WriteString(field("Run ID:", ValueStyle.Render(cur.RunID)))
	b.WriteString(field("Attempt:", ValueStyle.Render(fmt.Sprintf("%d", cur.Attempt))))
	if cur.ParentRunID != nil {
		b.WriteString(field("Parent:", ValueStyle.Render(*cur.ParentRunID)))
	}
	b.WriteString(field("Next Batch:", ValueStyle.Render(
		fmt.Sprintf("%d (offset %d)", cur.NextBatch, int64(cur.NextBatch)*int64(cur.BatchSize)))))
	if !cur.StartedAt.IsZero() {
		b.WriteString(field("Started:", ValueStyle.Render(cur.StartedAt.Format(timeLayout))))
	}
	if cur.BatchAttempts > 0 {
		b.WriteString(field("Failures:", ErrorStyle.Render(fmt.Sprintf("%d", cur.BatchAttempts))))
	}
	if cur.LastError != "" {
		b.WriteString(field("Last Error:", ErrorStyle.Render(cur.LastError)))
	}
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Batches", int64(cur.Batches), highlightColor),
		statBox("Records", cur.Records, successColor),
		statBox("Skipped", cur.Skipped, warningColor),
	))
	b.WriteString("\n")
	return b.String()
}

func (m StatusModel) renderLatest(latest *reader.PublishedRun) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Last Published"))
	b.WriteString("\n")
	if latest == nil {
		b.WriteString(HelpStyle.Render("no published runs"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(field("Run ID:", ValueStyle.Render(latest.RunID)))
	b.WriteString(field("Location:", ValueStyle.Render(latest.Location)))
	b.WriteString(field("Completed:", ValueStyle.Render(latest.CompletedAt.Format(timeLayout))))
	b.WriteString(field("Duration:", ValueStyle.Render(
		(time.Duration(latest.DurationMs) * time.Millisecond).String())))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Batches", latest.Batches, highlightColor),
		statBox("Records", latest.Records, successColor),
		statBox("Skipped", latest.Skipped, warningColor),
	))
	b.WriteString("\n")

	if len(latest.SkippedBy) > 0 {
		reasons := make([]string, 0, len(latest.SkippedBy))
		for reason := range latest.SkippedBy {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			b.WriteString(field("  "+reason+":", ValueStyle.Render(fmt.Sprintf("%d", latest.SkippedBy[reason]))))
		}
	}
	return b.String()
}

func field(label, value string) string {
	return LabelStyle.Render(label) + " " + value + "\n"
}

func statBox(label string, value int64, color lipgloss.Color) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value)),
		StatLabelStyle.Render(label),
	)
	return StatBoxStyle.BorderForeground(color).Render(content)
}

type keyMap struct {
	Quit key.Binding
}

var defaultKeys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RenderStatusStatic renders the status view without starting a program.
func RenderStatusStatic(data *reader.StatusResponse) string {
	model := NewStatusModel(data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
