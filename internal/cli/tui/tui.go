// Package tui is the Bubble Tea View. It draws inline, without the
// alternate screen: each question runs a short-lived tea.Program, and
// listings and messages are rendered with lipgloss straight to the output.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/granddizzy/ItismAsyncio/internal/cli"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// TUI implements cli.View with Bubble Tea.
type TUI struct {
	in  io.Reader
	out io.Writer
}

// Option configures a TUI.
type Option func(*TUI)

// WithInput sets the key source. Default os.Stdin.
func WithInput(r io.Reader) Option {
	return func(t *TUI) { t.in = r }
}

// WithOutput sets where the TUI draws. Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(t *TUI) { t.out = w }
}

// New returns a TUI.
func New(opts ...Option) *TUI {
	t := &TUI{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ cli.View = (*TUI)(nil)

func (t *TUI) run(ctx context.Context, model tea.Model) (tea.Model, error) {
	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
	)
	final, err := p.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("tui: %w", err)
	}
	return final, nil
}

func (t *TUI) choose(ctx context.Context, menu menuModel) (int, error) {
	final, err := t.run(ctx, menu)
	if err != nil {
		return 0, err
	}
	m := final.(menuModel)
	if m.interrupted || m.chosen < 0 {
		return 0, cli.ErrInterrupted
	}
	return m.chosen, nil
}

func (t *TUI) ask(ctx context.Context, input inputModel) (string, error) {
	final, err := t.run(ctx, input)
	if err != nil {
		return "", err
	}
	m := final.(inputModel)
	if m.interrupted || !m.submitted {
		return "", cli.ErrInterrupted
	}
	return m.value, nil
}

func (t *TUI) ShowMainMenu(ctx context.Context) (cli.MenuChoice, error) {
	n, err := t.choose(ctx, newMenu("Main menu:", cli.MenuItems))
	return cli.MenuChoice(n), err
}

func (t *TUI) InputConflict(ctx context.Context, target string) (cli.ConflictAction, error) {
	menu := newMenu("Choose an action:", cli.ConflictItems)
	menu.header = errorStyle.Render(target + " already exists.")
	n, err := t.choose(ctx, menu)
	return cli.ConflictAction(n), err
}

func (t *TUI) InputLocalPath(ctx context.Context) (string, error) {
	return t.ask(ctx, newInput("Path on this computer:", "./file.bin", nil))
}

func (t *TUI) InputFilename(ctx context.Context) (string, error) {
	return t.ask(ctx, newInput("File name on server:", "report.txt", cli.NameProblem))
}

func (t *TUI) ShowFileList(files []store.FileRecord) {
	fmt.Fprintln(t.out, renderFileList(files))
}

func (t *TUI) ShowError(err error) {
	fmt.Fprintln(t.out, errorStyle.Render("Error: "+cli.Describe(err)))
}

func (t *TUI) ShowMessage(msg string) {
	fmt.Fprintln(t.out, successStyle.Render(msg))
}

// renderFileList lays the records out in aligned columns inside a box.
func renderFileList(files []store.FileRecord) string {
	if len(files) == 0 {
		return listBoxStyle.Render(mutedStyle.Render("No files"))
	}

	rows := make([][3]string, 0, len(files)+1)
	rows = append(rows, [3]string{"Name", "Size", "Modified"})
	for _, f := range files {
		rows = append(rows, [3]string{f.Name, cli.FormatSize(f.Size), cli.FormatTime(f.ModTime)})
	}

	var widths [3]int
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows)+1)
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		line := strings.Join(cells, "  ")
		if r == 0 {
			lines = append(lines, headerStyle.Render(line))
			lines = append(lines, mutedStyle.Render(strings.Repeat("─", lipgloss.Width(line))))
			continue
		}
		lines = append(lines, itemStyle.Render(line))
	}
	lines = append(lines, mutedStyle.Render(fmt.Sprintf("%d file(s)", len(files))))
	return listBoxStyle.Render(strings.Join(lines, "\n"))
}

// StartProgress runs a progress bar program next to the transfer. It does
// not read input.
func (t *TUI) StartProgress(label string) cli.Progress {
	p := tea.NewProgram(newProgress(label),
		tea.WithInput(nil),
		tea.WithOutput(t.out),
		tea.WithoutSignalHandler(),
	)
	bar := &progressBar{program: p, finished: make(chan struct{}), last: -1}
	go func() {
		defer close(bar.finished)
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			fmt.Fprintln(t.out, errorStyle.Render("progress: "+err.Error()))
		}
	}()
	return bar
}

type progressBar struct {
	program  *tea.Program
	finished chan struct{}
	last     int
}

func (b *progressBar) Update(done, total int64) {
	pct := cli.Percent(done, total)
	if pct == b.last {
		return
	}
	b.last = pct
	b.program.Send(progressMsg(float64(pct) / 100))
}

func (b *progressBar) Done() {
	b.program.Send(progressDoneMsg{})
	<-b.finished
}
