package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ============================================================================
// Menu
// ============================================================================

// menuModel picks one entry of a numbered list. Digits select directly;
// esc selects entry 0, which is Exit or Cancel in every menu we show.
type menuModel struct {
	title  string
	header string
	items  []string

	cursor      int
	chosen      int
	interrupted bool
}

func newMenu(title string, items []string) menuModel {
	return menuModel{title: title, items: items, chosen: -1}
}

func (m menuModel) Init() tea.Cmd {
	return nil
}

func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch s := key.String(); s {
	case "ctrl+c":
		m.interrupted = true
		return m, tea.Quit
	case "esc":
		m.chosen = 0
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case "enter":
		m.chosen = m.cursor
		return m, tea.Quit
	default:
		if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(m.items) {
			m.cursor = n
			m.chosen = n
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m menuModel) View() string {
	if m.chosen >= 0 {
		return mutedStyle.Render(fmt.Sprintf("%s %s", m.title, m.items[m.chosen])) + "\n"
	}
	if m.interrupted {
		return ""
	}

	var b strings.Builder
	if m.header != "" {
		b.WriteString(m.header + "\n")
	}
	b.WriteString(titleStyle.Render(m.title) + "\n")
	for i, item := range m.items {
		line := fmt.Sprintf("%d. %s", i, item)
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString(itemStyle.Render("  "+line) + "\n")
		}
	}
	b.WriteString(helpTextStyle.Render("↑/↓ move • enter select • 0-9 jump • esc back") + "\n")
	return b.String()
}

// ============================================================================
// Text input
// ============================================================================

// inputModel reads one line. When validate reports a problem the answer is
// rejected and the user keeps editing. esc submits an empty answer.
type inputModel struct {
	label    string
	input    textinput.Model
	validate func(string) string

	problem     string
	value       string
	submitted   bool
	interrupted bool
}

func newInput(label, placeholder string, validate func(string) string) inputModel {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Width = 60
	ti.Focus()

	return inputModel{label: label, input: ti, validate: validate}
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			m.interrupted = true
			return m, tea.Quit
		case "esc":
			m.value = ""
			m.submitted = true
			return m, tea.Quit
		case "enter":
			value := strings.TrimSpace(m.input.Value())
			if value != "" && m.validate != nil {
				if problem := m.validate(value); problem != "" {
					m.problem = problem
					return m, nil
				}
			}
			m.value = value
			m.submitted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.submitted {
		return mutedStyle.Render(fmt.Sprintf("%s %s", m.label, m.value)) + "\n"
	}
	if m.interrupted {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.label) + "\n")
	b.WriteString(m.input.View() + "\n")
	if m.problem != "" {
		b.WriteString(errorStyle.Render(m.problem) + "\n")
	}
	b.WriteString(helpTextStyle.Render("enter confirm • esc back") + "\n")
	return b.String()
}

// ============================================================================
// Progress
// ============================================================================

type progressMsg float64

type progressDoneMsg struct{}

type progressModel struct {
	label   string
	bar     progress.Model
	percent float64
	done    bool
}

func newProgress(label string) progressModel {
	return progressModel{
		label: label,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.percent = float64(msg)
	case progressDoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	return m.label + " " + m.bar.ViewAs(m.percent) + "\n"
}
