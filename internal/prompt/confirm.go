// Package prompt implements the interactive confirmation required before
// the pipeline clears a target environment. The operator must type the
// target environment name back; anything else declines.
package prompt

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ConfirmModel is the bubbletea model behind the destructive-action prompt.
type ConfirmModel struct {
	source string
	target string
	tables []string

	input     textinput.Model
	confirmed bool
	done      bool
	mismatch  bool
}

// NewConfirmModel builds the prompt for one source → target sync.
func NewConfirmModel(source, target string, tables []string) *ConfirmModel {
	input := textinput.New()
	input.Placeholder = target
	input.CharLimit = 64
	input.Focus()

	return &ConfirmModel{
		source: source,
		target: target,
		tables: tables,
		input:  input,
	}
}

// Confirmed reports the operator's decision once the prompt has finished.
func (m *ConfirmModel) Confirmed() bool {
	return m.done && m.confirmed
}

func (m *ConfirmModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.done = true
			m.confirmed = false
			return m, tea.Quit
		case tea.KeyEnter:
			if strings.TrimSpace(m.input.Value()) == m.target {
				m.done = true
				m.confirmed = true
				return m, tea.Quit
			}
			m.mismatch = true
			m.input.SetValue("")
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *ConfirmModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Sync auth data: %s → %s", m.source, m.target)))
	b.WriteString("\n\n")
	b.WriteString(dangerStyle.Render("This will DELETE all rows in the following tables on " + m.target + ":"))
	b.WriteString("\n")
	for _, table := range m.tables {
		b.WriteString(tableStyle.Render("• " + table))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Type %s to continue, Esc to abort.\n", targetStyle.Render(m.target)))
	if m.mismatch {
		b.WriteString(dangerStyle.Render("Input did not match the target environment name."))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("enter confirm • esc abort"))
	b.WriteString("\n")
	return b.String()
}

// TerminalConfirmer runs the prompt on the controlling terminal. It
// satisfies pipeline.Confirmer.
type TerminalConfirmer struct{}

func (TerminalConfirmer) Confirm(source, target string, tables []string) (bool, error) {
	model := NewConfirmModel(source, target, tables)
	program := tea.NewProgram(model)

	final, err := program.Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	m, ok := final.(*ConfirmModel)
	if !ok {
		return false, fmt.Errorf("unexpected prompt model type %T", final)
	}
	return m.Confirmed(), nil
}
