package tui

import (
	"context"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/episim/internal/fit"
)

// EvaluationMsg carries one residual evaluation into the progress view.
type EvaluationMsg fit.Evaluation

// DoneMsg ends the progress view.
type DoneMsg struct {
	Solution fit.Solution
	Err      error
}

// FitProgress shows a running fit: evaluation count, best cost so far and
// a cost sparkline. Quitting cancels the fit and waits for DoneMsg.
type FitProgress struct {
	params   []string
	cancel   context.CancelFunc
	history  []float64
	last     fit.Evaluation
	best     fit.Evaluation
	hasBest  bool
	done     bool
	stopping bool
	result   DoneMsg
	width    int
}

func NewFitProgress(params []string, cancel context.CancelFunc) FitProgress {
	return FitProgress{
		params:  params,
		cancel:  cancel,
		history: make([]float64, 0, 256),
		width:   80,
	}
}

func (m FitProgress) Init() tea.Cmd { return nil }

func (m FitProgress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done {
				return m, tea.Quit
			}
			m.stopping = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case EvaluationMsg:
		e := fit.Evaluation(msg)
		m.last = e
		if !m.hasBest || e.Cost < m.best.Cost {
			m.best = e
			m.hasBest = true
		}
		m.history = append(m.history, math.Log10(e.Cost+1e-300))
		return m, nil
	case DoneMsg:
		m.done = true
		m.result = msg
		return m, tea.Quit
	}
	return m, nil
}

// Result is the DoneMsg that ended the view.
func (m FitProgress) Result() DoneMsg { return m.result }

func (m FitProgress) Best() (fit.Evaluation, bool) { return m.best, m.hasBest }

func (m FitProgress) View() string {
	var b strings.Builder

	statusIcon := green.Render("●")
	statusText := green.Render("fitting")
	switch {
	case m.done && m.result.Err != nil:
		statusIcon, statusText = red.Render("●"), red.Render("failed")
	case m.done:
		statusIcon, statusText = cyan.Render("●"), cyan.Render("done")
	case m.stopping:
		statusIcon, statusText = yellow.Render("○"), yellow.Render("stopping")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n\n", statusIcon, statusText,
		dim.Render(fmt.Sprintf("%d evaluations", m.last.Index))))

	if m.hasBest {
		b.WriteString(fmt.Sprintf("   %s %s   %s %s\n",
			dim.Render("cost"), white.Render(fmt.Sprintf("%.6g", m.last.Cost)),
			dim.Render("best"), magenta.Render(fmt.Sprintf("%.6g", m.best.Cost)),
		))
		for i, name := range m.params {
			if i >= len(m.best.Params) {
				break
			}
			b.WriteString(fmt.Sprintf("   %s %s\n",
				dim.Render(fmt.Sprintf("%-28s", name)),
				cyan.Render(fmt.Sprintf("%.6g", m.best.Params[i]))))
		}
	}

	if len(m.history) > 1 {
		width := min(max(m.width-16, 10), 60)
		b.WriteString(fmt.Sprintf("\n   %s %s\n", dim.Render("log cost"), cyan.Render(Sparkline(m.history, width))))
	}

	b.WriteString("\n" + dim.Render("   q stop") + "\n")
	return b.String()
}
