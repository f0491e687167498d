package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"jobfetch/internal/progress"
	"jobfetch/internal/util/format"
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	for _, section := range []string{m.viewTask(), m.viewDownload(), m.viewToast()} {
		if section != "" {
			b.WriteString("\n")
			b.WriteString(section)
		}
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) viewHeader() string {
	title := m.styles.Title.Render("jobfetch")
	if m.opts.Server == "" {
		return title
	}
	return title + "  " + m.styles.Subtitle.Render(m.opts.Server)
}

// viewTask shows the bar only while the server reports 0 < p < 100, and a
// spinner while waiting on either side of that range.
func (m Model) viewTask() string {
	if m.state.Idle() {
		if m.busy {
			return m.styles.Box.Render(m.styles.Spinner.Render(m.spinner.View()) + " submitting")
		}
		return ""
	}

	line1 := m.styles.TaskID.Render("task "+m.state.TaskID) + "  " + m.stageStyle().Render(string(m.stage))

	var line2 string
	switch {
	case m.state.ShowProgress():
		line2 = m.bar.ViewAs(float64(m.state.Progress)/100.0) + " " + format.Percent(m.state.Progress)
	case m.state.HasDownload():
		line2 = m.styles.Success.Render("✓ ready")
	case m.stage == progress.StageStalled:
		line2 = m.styles.Error.Render("✗ gave up waiting")
	case m.stage == progress.StageCompleted:
		line2 = m.styles.Spinner.Render(m.spinner.View()) + " " + m.styles.Faint.Render("fetching result")
	default:
		line2 = m.styles.Spinner.Render(m.spinner.View()) + " " + m.styles.Faint.Render("waiting for server")
	}
	return m.styles.Box.Render(line1 + "\n" + line2)
}

func (m Model) stageStyle() lipgloss.Style {
	switch m.stage {
	case progress.StagePolling:
		return m.styles.StagePolling
	case progress.StageCompleted:
		return m.styles.StageCompleted
	case progress.StageReady:
		return m.styles.Success
	case progress.StageStalled:
		return m.styles.Error
	default:
		return m.styles.Faint
	}
}

// viewDownload is empty unless an artifact is available.
func (m Model) viewDownload() string {
	if !m.state.HasDownload() {
		return ""
	}
	a := m.state.Download
	line := m.styles.Download.Render(fmt.Sprintf("⬇ %s (%s)", truncate(a.Name, 48), format.HumanizeBytes(a.Size))) +
		"  " + m.styles.Faint.Render("ctrl+d to save to "+m.opts.OutDir)
	if m.saved != "" {
		line += "\n" + m.styles.Success.Render("Saved: "+m.saved)
	}
	return m.styles.Box.Render(line)
}

func (m Model) viewToast() string {
	if m.toast == nil {
		return ""
	}
	style := m.styles.Info
	switch m.toast.Level {
	case progress.LevelSuccess:
		style = m.styles.Success
	case progress.LevelError:
		style = m.styles.Error
	}
	return m.styles.Box.Render(style.Render(m.toast.Message))
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
