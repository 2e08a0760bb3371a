package main

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// confirmModel is a one-key yes/no prompt. Anything other than y counts as no.
type confirmModel struct {
	question string
	answer   bool
	done     bool
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
		m.done = true
		return m, tea.Quit
	case tea.KeyRunes:
		switch strings.ToLower(string(key.Runes)) {
		case "y":
			m.answer = true
			m.done = true
			return m, tea.Quit
		case "n":
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	if !m.done {
		return m.question + " (y/n) "
	}
	answer := "n"
	if m.answer {
		answer = "y"
	}
	return m.question + " (y/n) " + answer + "\n"
}

// confirm asks question on out and waits for a y or n key on in.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	p := tea.NewProgram(confirmModel{question: question}, tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	m, ok := final.(confirmModel)
	if !ok {
		return false, fmt.Errorf("prompt returned unexpected model %T", final)
	}
	return m.answer, nil
}
