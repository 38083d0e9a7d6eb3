package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
)

// drive runs cmd and everything it leads to on the calling goroutine,
// feeding each result to update. One-shot commands use the same machines
// as the TUI this way, without a program loop.
func drive(cmd tea.Cmd, update func(tea.Msg) tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			queue = append(queue, update(msg))
		}
	}
}
