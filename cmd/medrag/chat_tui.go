package main

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type answerFunc func(ctx context.Context, query string) (string, error)

type answerMsg struct {
	answer string
	err    error
}

// chatModel is the Bubble Tea model behind `chat --tui`. It follows the same
// rules as the line loop: blank input is ignored and exit/quit ends the session.
type chatModel struct {
	ctx        context.Context
	answer     answerFunc
	input      textinput.Model
	viewport   viewport.Model
	transcript []string
	status     string
	busy       bool
	ready      bool
}

func newChatModel(ctx context.Context, answer answerFunc) chatModel {
	ti := textinput.New()
	ti.Prompt = "You: "
	ti.Placeholder = "Describe your symptoms or ask a question"
	ti.Focus()
	ti.CharLimit = 0
	return chatModel{
		ctx:      ctx,
		answer:   answer,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Type a question and press Enter. exit or quit to leave.",
	}
}

func (m chatModel) Init() tea.Cmd { return textinput.Blink }

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + ih + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.transcript = append(m.transcript, errorStyle.Render("Error: "+msg.err.Error()))
			m.status = "The last question failed; try again."
		} else {
			m.transcript = append(m.transcript, botStyle.Render("Chatbot:")+" "+msg.answer)
			m.status = "Ready."
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) submit() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" || m.busy {
		return m, nil
	}
	if isExitCommand(query) {
		return m, tea.Quit
	}

	m.input.Reset()
	m.busy = true
	m.status = "Thinking..."
	m.transcript = append(m.transcript, userStyle.Render("You:")+" "+query)
	m.refresh()

	ctx, answer := m.ctx, m.answer
	return m, func() tea.Msg {
		reply, err := answer(ctx, query)
		return answerMsg{answer: reply, err: err}
	}
}

func (m *chatModel) refresh() {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	wrapped := lipgloss.NewStyle().Width(width).Render(strings.Join(m.transcript, "\n\n"))
	m.viewport.SetContent(wrapped)
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Medical Chatbot")
	body := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + body + "\n" + input + "\n" + status
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func runChatTUI(ctx context.Context, in io.Reader, out io.Writer, answer answerFunc) error {
	p := tea.NewProgram(
		newChatModel(ctx, answer),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := p.Run()
	return err
}
