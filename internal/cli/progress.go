package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressSpinner shows a spinner on stderr while a batch runs. Without a
// terminal it prints the message once and stays silent.
type ProgressSpinner struct {
	out         io.Writer
	message     string
	interactive bool

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewProgressSpinner creates a spinner on stderr.
func NewProgressSpinner(message string, noColor bool) *ProgressSpinner {
	interactive := UseColor(os.Stderr, noColor) && os.Getenv("CI") == ""
	return NewProgressSpinnerTo(os.Stderr, message, interactive)
}

// NewProgressSpinnerTo creates a spinner on out.
func NewProgressSpinnerTo(out io.Writer, message string, interactive bool) *ProgressSpinner {
	return &ProgressSpinner{out: out, message: message, interactive: interactive}
}

// Start begins the spinner in a goroutine
func (p *ProgressSpinner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.program != nil {
		return
	}
	if !p.interactive {
		fmt.Fprintf(p.out, "%s...\n", p.message)
		return
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	model := &spinnerModel{
		spinner: s,
		message: p.message,
		style:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
	p.program = tea.NewProgram(model, tea.WithOutput(p.out), tea.WithInput(nil))
	p.done = make(chan struct{})

	go func(prog *tea.Program, done chan struct{}) {
		defer close(done)
		_, _ = prog.Run()
	}(p.program, p.done)
}

// SetMessage replaces the text next to the spinner.
func (p *ProgressSpinner) SetMessage(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.message = message
	if p.program != nil {
		p.program.Send(messageMsg(message))
	}
}

// Stop stops the spinner and waits for the terminal to be restored.
func (p *ProgressSpinner) Stop() {
	p.mu.Lock()
	prog, done := p.program, p.done
	p.program, p.done = nil, nil
	p.mu.Unlock()

	if prog == nil {
		return
	}
	prog.Quit()
	<-done
}

type messageMsg string

// spinnerModel implements the tea.Model interface for the spinner
type spinnerModel struct {
	spinner spinner.Model
	message string
	style   lipgloss.Style
}

func (m *spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messageMsg:
		m.message = string(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *spinnerModel) View() string {
	return fmt.Sprintf("%s %s\n", m.spinner.View(), m.style.Render(m.message))
}
