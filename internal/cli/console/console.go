// Package console is the line-oriented View: numbered menus, colored
// messages and a table for file listings.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/granddizzy/ItismAsyncio/internal/cli"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

const progressWidth = 30

// Console implements cli.View on a terminal or any reader/writer pair.
type Console struct {
	out io.Writer
	in  LineReader

	titleColor   *color.Color
	errorColor   *color.Color
	successColor *color.Color
	infoColor    *color.Color
}

// Option configures a Console.
type Option func(*Console)

// WithOutput sets where the console writes. Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Console) { c.out = w }
}

// WithLineReader sets where answers come from. Default reads os.Stdin
// line by line.
func WithLineReader(r LineReader) Option {
	return func(c *Console) { c.in = r }
}

// WithoutColor disables ANSI colors.
func WithoutColor() Option {
	return func(c *Console) {
		for _, col := range []*color.Color{c.titleColor, c.errorColor, c.successColor, c.infoColor} {
			col.DisableColor()
		}
	}
}

// New returns a Console.
func New(opts ...Option) *Console {
	c := &Console{
		out:          os.Stdout,
		titleColor:   color.New(color.FgCyan, color.Bold),
		errorColor:   color.New(color.FgRed),
		successColor: color.New(color.FgGreen),
		infoColor:    color.New(color.FgYellow),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.in == nil {
		c.in = NewScanReader(os.Stdin, c.out)
	}
	return c
}

var _ cli.View = (*Console)(nil)

func (c *Console) ShowMainMenu(ctx context.Context) (cli.MenuChoice, error) {
	fmt.Fprintln(c.out)
	c.titleColor.Fprintln(c.out, "Main menu:")
	c.printItems(cli.MenuItems)
	fmt.Fprintln(c.out)

	n, err := c.readChoice(ctx, len(cli.MenuItems)-1)
	return cli.MenuChoice(n), err
}

func (c *Console) InputConflict(ctx context.Context, target string) (cli.ConflictAction, error) {
	fmt.Fprintln(c.out)
	c.infoColor.Fprintf(c.out, "%s already exists.\n", target)
	fmt.Fprintln(c.out, "Choose an action:")
	c.printItems(cli.ConflictItems)
	fmt.Fprintln(c.out)

	n, err := c.readChoice(ctx, len(cli.ConflictItems)-1)
	return cli.ConflictAction(n), err
}

func (c *Console) printItems(items []string) {
	for i, item := range items {
		fmt.Fprintf(c.out, "%d. %s\n", i, item)
	}
}

// readChoice re-prompts until the answer is a number in [0, limit].
func (c *Console) readChoice(ctx context.Context, limit int) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		answer, err := c.in.ReadLine("Your choice: ", CompleteNone)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(answer))
		if err == nil && n >= 0 && n <= limit {
			return n, nil
		}
		c.infoColor.Fprintf(c.out, "Enter a number from 0 to %d\n", limit)
	}
}

func (c *Console) InputLocalPath(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := c.in.ReadLine("Path on this computer: ", CompletePath)
	return strings.TrimSpace(path), err
}

func (c *Console) InputFilename(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		answer, err := c.in.ReadLine("File name on server: ", CompleteNone)
		if err != nil {
			return "", err
		}
		name := strings.TrimSpace(answer)
		if name == "" {
			return "", nil
		}
		if problem := cli.NameProblem(name); problem != "" {
			c.errorColor.Fprintln(c.out, problem)
			continue
		}
		return name, nil
	}
}

func (c *Console) ShowFileList(files []store.FileRecord) {
	fmt.Fprintln(c.out)
	if len(files) == 0 {
		c.infoColor.Fprintln(c.out, "No files")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Name", "Size", "Modified")
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Header = tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		}
		cfg.Row = tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		}
	})
	for _, f := range files {
		table.Append([]string{f.Name, cli.FormatSize(f.Size), cli.FormatTime(f.ModTime)})
	}
	if err := table.Render(); err != nil {
		c.errorColor.Fprintf(c.out, "render listing: %v\n", err)
	}
	fmt.Fprintf(c.out, "%d file(s)\n", len(files))
}

func (c *Console) ShowError(err error) {
	c.errorColor.Fprintf(c.out, "Error: %s\n", cli.Describe(err))
}

func (c *Console) ShowMessage(msg string) {
	c.successColor.Fprintln(c.out, msg)
}

func (c *Console) StartProgress(label string) cli.Progress {
	return &progressLine{out: c.out, label: label, last: -1}
}

// progressLine redraws one line in place whenever the percentage moves.
type progressLine struct {
	out   io.Writer
	label string
	last  int
}

func (p *progressLine) Update(done, total int64) {
	pct := cli.Percent(done, total)
	if pct == p.last {
		return
	}
	p.last = pct
	filled := pct * progressWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat(".", progressWidth-filled)
	fmt.Fprintf(p.out, "\r%s [%s] %3d%%", p.label, bar, pct)
}

func (p *progressLine) Done() {
	if p.last >= 0 {
		fmt.Fprintln(p.out)
	}
}
