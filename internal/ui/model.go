package ui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"jobfetch/internal/lifecycle"
	"jobfetch/internal/model"
	"jobfetch/internal/progress"
)

const defaultToastTTL = 4 * time.Second

// Controller is what the UI drives. *lifecycle.Controller satisfies it.
type Controller interface {
	Submit(ctx context.Context, url string) (string, error)
	Reset()
	Download(dir string) (string, error)
	SetURL(url string)
	Snapshot() model.UIState
	Stage() progress.Stage
	Subscribe(r progress.Reporter)
}

// Options configures the interactive session.
type Options struct {
	Server     string // shown in the header
	OutDir     string
	InitialURL string // submitted on start when set
	ToastTTL   time.Duration
}

type Model struct {
	ctx  context.Context
	ctrl Controller
	opts Options

	state model.UIState
	stage progress.Stage

	input   textinput.Model
	spinner spinner.Model
	bar     bubblesprogress.Model

	toast    *progress.Notice
	toastSeq int
	busy     bool // submission in flight
	saved    string

	keys   keyMap
	help   help.Model
	width  int
	styles Styles
}

func NewModel(ctx context.Context, ctrl Controller, opts Options) Model {
	sty := defaultStyles()
	if opts.ToastTTL <= 0 {
		opts.ToastTTL = defaultToastTTL
	}

	in := textinput.New()
	in.Prompt = "URL › "
	in.Placeholder = "https://www.youtube.com/watch?v=..."
	in.CharLimit = 2048
	in.Width = 60
	in.SetValue(opts.InitialURL)
	in.Focus()

	sp := spinner.New()
	sp.Style = sty.Spinner

	return Model{
		ctx:     ctx,
		ctrl:    ctrl,
		opts:    opts,
		state:   ctrl.Snapshot(),
		stage:   ctrl.Stage(),
		input:   in,
		spinner: sp,
		bar:     bubblesprogress.New(
			bubblesprogress.WithDefaultGradient(),
			bubblesprogress.WithWidth(40),
			bubblesprogress.WithoutPercentage(),
		),
		busy:    opts.InitialURL != "",
		keys:    defaultKeys(),
		help:    help.New(),
		styles:  sty,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.opts.InitialURL != "" {
		cmds = append(cmds, m.submitCmd(m.opts.InitialURL))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 12; w > 10 && w < 60 {
			m.bar.Width = w
			m.input.Width = w
		}
		return m, nil

	case eventsMsg:
		if msg.StateChanged {
			m.refresh()
		}
		if n := len(msg.Notices); n > 0 {
			return m, m.showToast(msg.Notices[n-1])
		}
		return m, nil

	case submittedMsg:
		m.busy = false
		m.refresh()
		return m, nil

	case savedMsg:
		if msg.Err == nil {
			m.saved = msg.Path
		} else if !errors.Is(msg.Err, lifecycle.ErrNoArtifact) {
			return m, m.showToast(progress.Notice{Level: progress.LevelError, Message: "Saving failed: " + msg.Err.Error()})
		}
		return m, nil

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.saved = ""
		return m, m.submitCmd(m.input.Value())

	case key.Matches(msg, m.keys.Reset):
		m.ctrl.Reset()
		m.input.SetValue("")
		m.saved = ""
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Download):
		if !m.state.HasDownload() {
			return m, nil
		}
		return m, m.downloadCmd()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.ctrl.SetURL(v)
	}
	return m, cmd
}

func (m *Model) refresh() {
	m.state = m.ctrl.Snapshot()
	m.stage = m.ctrl.Stage()
}

func (m *Model) showToast(n progress.Notice) tea.Cmd {
	m.toastSeq++
	m.toast = &n
	seq := m.toastSeq
	return tea.Tick(m.opts.ToastTTL, func(time.Time) tea.Msg {
		return toastExpiredMsg{seq: seq}
	})
}

func (m Model) submitCmd(url string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		id, err := ctrl.Submit(ctx, url)
		return submittedMsg{TaskID: id, Err: err}
	}
}

func (m Model) downloadCmd() tea.Cmd {
	ctrl, dir := m.ctrl, m.opts.OutDir
	return func() tea.Msg {
		path, err := ctrl.Download(dir)
		return savedMsg{Path: path, Err: err}
	}
}
