package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"casestream.ai/cli/internal/core/streaming"
)

var (
	viewerTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))
	viewerMetaStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))
	viewerBodyStyle = lipgloss.NewStyle().
		Padding(1, 2)
	viewerFooterStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))
)

// runViewer plays chunks in an interactive terminal view, revealing each
// chunk at its timing offset.
func runViewer(caseID, stageName string, chunks []streaming.StreamChunk, offsets []int) error {
	model := newViewerModel(caseID, stageName, chunks, offsets)
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("replay viewer failed: %w", err)
	}
	return nil
}

// viewerModel holds the state for the Bubble Tea replay viewer
type viewerModel struct {
	caseID    string
	stageName string
	chunks    []streaming.StreamChunk
	offsets   []int

	next        int // index of the next chunk to reveal
	revealed    strings.Builder
	paused      bool
	started     time.Time
	pausedFor   time.Duration
	pauseBegan  time.Time
	windowWidth int
}

// chunkTickMsg fires when the next chunk's timing offset is due
type chunkTickMsg struct {
	index int
}

func newViewerModel(caseID, stageName string, chunks []streaming.StreamChunk, offsets []int) *viewerModel {
	return &viewerModel{
		caseID:    caseID,
		stageName: stageName,
		chunks:    chunks,
		offsets:   offsets,
		started:   time.Now(),
	}
}

// Init implements the Bubble Tea init method
func (m *viewerModel) Init() tea.Cmd {
	return m.scheduleNext()
}

// scheduleNext arms a timer for the next unrevealed chunk, relative to
// replay start so pacing stays uniform regardless of render time.
func (m *viewerModel) scheduleNext() tea.Cmd {
	if m.next >= len(m.chunks) {
		return nil
	}
	index := m.next
	due := m.started.Add(m.pausedFor + time.Duration(m.offsets[index])*time.Millisecond)
	wait := time.Until(due)
	if wait < 0 {
		wait = 0
	}
	return tea.Tick(wait, func(time.Time) tea.Msg {
		return chunkTickMsg{index: index}
	})
}

// Update implements the Bubble Tea update method
func (m *viewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit

		case " ":
			if m.paused {
				m.paused = false
				m.pausedFor += time.Since(m.pauseBegan)
				return m, m.scheduleNext()
			}
			m.paused = true
			m.pauseBegan = time.Now()
			return m, nil

		case "right", "l":
			// Step forward manually while paused
			if m.paused && m.next < len(m.chunks) {
				m.reveal(m.next)
			}
			return m, nil
		}

	case chunkTickMsg:
		if m.paused || msg.index != m.next {
			return m, nil
		}
		m.reveal(msg.index)
		return m, m.scheduleNext()
	}

	return m, nil
}

func (m *viewerModel) reveal(index int) {
	m.revealed.WriteString(m.chunks[index].Content)
	if index+1 < len(m.chunks) {
		m.revealed.WriteString(" ")
	}
	m.next = index + 1
}

// View implements the Bubble Tea view method
func (m *viewerModel) View() string {
	title := viewerTitleStyle.Render(m.stageName)
	meta := viewerMetaStyle.Render(fmt.Sprintf("case %s | chunk %d/%d", m.caseID, m.next, len(m.chunks)))

	body := m.revealed.String()
	if m.windowWidth > 4 {
		body = lipgloss.NewStyle().Width(m.windowWidth - 4).Render(body)
	}
	body = viewerBodyStyle.Render(body)

	status := "playing"
	if m.paused {
		status = "paused"
	}
	if m.next >= len(m.chunks) {
		status = "done"
	}
	footer := viewerFooterStyle.Render(fmt.Sprintf("[%s] space pause/resume | right step | q quit", status))

	return lipgloss.JoinVertical(lipgloss.Left, title, meta, body, footer)
}
