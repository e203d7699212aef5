package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/c-bata/go-prompt"
)

// Completion selects what the line reader may suggest.
type Completion int

const (
	CompleteNone Completion = iota
	CompletePath
)

// LineReader reads one line of user input after printing label.
type LineReader interface {
	ReadLine(label string, complete Completion) (string, error)
}

// ============================================================================
// Plain reader
// ============================================================================

// ScanReader reads lines from any io.Reader. Use it when stdin is not a
// terminal.
type ScanReader struct {
	r   *bufio.Reader
	out io.Writer
}

// NewScanReader reads from in and prints labels to out.
func NewScanReader(in io.Reader, out io.Writer) *ScanReader {
	return &ScanReader{r: bufio.NewReader(in), out: out}
}

func (s *ScanReader) ReadLine(label string, _ Completion) (string, error) {
	fmt.Fprint(s.out, label)
	line, err := s.r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ============================================================================
// Interactive reader
// ============================================================================

// PromptReader reads lines with go-prompt: history, line editing and local
// path completion. It needs a terminal on stdin.
type PromptReader struct {
	history []string
}

// NewPromptReader returns a terminal line reader.
func NewPromptReader() *PromptReader {
	return &PromptReader{}
}

func (p *PromptReader) ReadLine(label string, complete Completion) (string, error) {
	completer := noCompletion
	if complete == CompletePath {
		completer = completePath
	}

	line := prompt.Input(label, completer,
		prompt.OptionHistory(p.history),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
		prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
		prompt.OptionSuggestionBGColor(prompt.DarkGray),
	)
	if line != "" {
		p.history = append(p.history, line)
	}
	return line, nil
}

func noCompletion(prompt.Document) []prompt.Suggest {
	return nil
}

// completePath suggests entries of the directory being typed.
func completePath(d prompt.Document) []prompt.Suggest {
	text := d.GetWordBeforeCursor()
	return pathSuggestions(text)
}

func pathSuggestions(text string) []prompt.Suggest {
	dir, _ := filepath.Split(text)
	lookup := dir
	if lookup == "" {
		lookup = "."
	}

	entries, err := os.ReadDir(lookup)
	if err != nil {
		return nil
	}

	suggestions := make([]prompt.Suggest, 0, len(entries))
	for _, entry := range entries {
		name := dir + entry.Name()
		desc := "file"
		if entry.IsDir() {
			name += string(filepath.Separator)
			desc = "dir"
		}
		suggestions = append(suggestions, prompt.Suggest{Text: name, Description: desc})
	}
	return prompt.FilterHasPrefix(suggestions, text, false)
}
