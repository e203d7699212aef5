package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granddizzy/ItismAsyncio/internal/cli"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/pkg/client"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

func newConsole(input string) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	c := New(
		WithOutput(&out),
		WithLineReader(NewScanReader(strings.NewReader(input), &out)),
		WithoutColor(),
	)
	return c, &out
}

func TestShowMainMenu(t *testing.T) {
	ctx := context.Background()

	t.Run("RepromptsUntilValid", func(t *testing.T) {
		c, out := newConsole("9\nabc\n2\n")
		choice, err := c.ShowMainMenu(ctx)
		require.NoError(t, err)
		assert.Equal(t, cli.ChoiceUpload, choice)
		assert.Equal(t, 2, strings.Count(out.String(), "Enter a number from 0 to 4"))
		assert.Contains(t, out.String(), "0. Exit")
		assert.Contains(t, out.String(), "4. Download file")
	})

	t.Run("EndOfInput", func(t *testing.T) {
		c, _ := newConsole("")
		_, err := c.ShowMainMenu(ctx)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("LastLineWithoutNewline", func(t *testing.T) {
		c, _ := newConsole("0")
		choice, err := c.ShowMainMenu(ctx)
		require.NoError(t, err)
		assert.Equal(t, cli.ChoiceExit, choice)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		c, _ := newConsole("1\n")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.ShowMainMenu(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestInputConflict(t *testing.T) {
	tests := []struct {
		input string
		want  cli.ConflictAction
	}{
		{"0\n", cli.ConflictCancel},
		{"1\n", cli.ConflictAppend},
		{"3\n2\n", cli.ConflictReplace},
	}
	for _, tt := range tests {
		c, out := newConsole(tt.input)
		got, err := c.InputConflict(context.Background(), "report")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, out.String(), "report already exists.")
	}
}

func TestInputFilename(t *testing.T) {
	ctx := context.Background()

	t.Run("RejectsForbiddenChars", func(t *testing.T) {
		c, out := newConsole("a/b\nwhat?\n  report  \n")
		name, err := c.InputFilename(ctx)
		require.NoError(t, err)
		assert.Equal(t, "report", name)
		assert.Equal(t, 2, strings.Count(out.String(), "forbidden characters"))
	})

	t.Run("EmptyBacksOut", func(t *testing.T) {
		c, _ := newConsole("\n")
		name, err := c.InputFilename(ctx)
		require.NoError(t, err)
		assert.Empty(t, name)
	})
}

func TestInputLocalPath(t *testing.T) {
	c, out := newConsole(" /tmp/data.bin \n")
	path, err := c.InputLocalPath(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/data.bin", path)
	assert.Contains(t, out.String(), "Path on this computer: ")
}

func TestShowFileList(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		c, out := newConsole("")
		c.ShowFileList(nil)
		assert.Contains(t, out.String(), "No files")
	})

	t.Run("Records", func(t *testing.T) {
		c, out := newConsole("")
		mod := time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)
		c.ShowFileList([]store.FileRecord{
			{Name: "report", Size: 5000, ModTime: mod},
			{Name: "notes.txt", Size: 12, ModTime: mod},
		})
		text := out.String()
		assert.Contains(t, text, "report")
		assert.Contains(t, text, "4.9 KB")
		assert.Contains(t, text, "notes.txt")
		assert.Contains(t, text, "12 B")
		assert.Contains(t, text, "2024-03-01 12:30:00")
		assert.Contains(t, text, "2 file(s)")
	})
}

func TestShowErrorDescribesServerErrors(t *testing.T) {
	c, out := newConsole("")
	c.ShowError(&client.ServerError{Op: "del", Status: protocol.StatusError, Message: protocol.MsgFileNotExists})
	c.ShowError(errors.New("boom"))
	assert.Contains(t, out.String(), "Error: File not found on server")
	assert.Contains(t, out.String(), "Error: boom")
}

func TestProgressLine(t *testing.T) {
	c, out := newConsole("")
	p := c.StartProgress("Uploading report")
	p.Update(0, 200)
	p.Update(1, 200)
	p.Update(100, 200)
	p.Update(200, 200)
	p.Done()

	text := out.String()
	assert.Equal(t, 3, strings.Count(text, "\r"), "redraws only when the percentage changes")
	assert.Contains(t, text, " 50%")
	assert.True(t, strings.HasSuffix(text, "100%\n"))
}

func TestProgressLineWithoutUpdates(t *testing.T) {
	c, out := newConsole("")
	c.StartProgress("x").Done()
	assert.Empty(t, out.String())
}

func TestPathSuggestions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "beta.txt"), []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "assets"), 0o755))

	prefix := dir + string(filepath.Separator)
	got := pathSuggestions(prefix + "a")

	var texts []string
	for _, s := range got {
		texts = append(texts, s.Text)
	}
	assert.ElementsMatch(t, []string{
		prefix + "alpha.txt",
		prefix + "assets" + string(filepath.Separator),
	}, texts)

	assert.Nil(t, pathSuggestions(filepath.Join(dir, "missing", "x")))
}
