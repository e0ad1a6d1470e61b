package main

import (
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"storymaker/internal/domain"
	"storymaker/internal/pipeline"
	"storymaker/internal/tui"
)

// settle drives a model whose event stream is already closed until it quits.
func settle(t *testing.T, res tui.RunResult) tea.Model {
	t.Helper()
	events := make(chan pipeline.Event)
	close(events)
	done := make(chan tui.RunResult, 1)
	done <- res

	var m tea.Model = tui.New(events, done, nil)
	queue := []tea.Cmd{m.Init()}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 50 {
			t.Fatal("model did not quit")
		}
		cmd := queue[0]
		queue = queue[1:]
		if cmd == nil {
			continue
		}
		switch msg := cmd().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case tea.QuitMsg:
			return m
		case spinner.TickMsg:
		default:
			var next tea.Cmd
			m, next = m.Update(msg)
			queue = append(queue, next)
		}
	}
	return m
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name  string
		model tea.Model
		want  int
	}{
		{name: "finished", model: settle(t, tui.RunResult{Result: &pipeline.Result{}}), want: 0},
		{name: "aborted", model: settle(t, tui.RunResult{Err: domain.ErrAllImagesFailed}), want: 1},
		{name: "quit early", model: tui.New(nil, nil, nil), want: 1},
		{name: "foreign model", model: nil, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.model); got != tc.want {
				t.Fatalf("exitCode = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestFailReturnsNonZero(t *testing.T) {
	if fail("boom %d", 1) != 1 {
		t.Fatal("fail should return exit code 1")
	}
}
