// Package cli implements the interactive file client: a menu-driven
// Controller that talks to the server through a Remote and to the user
// through a View. Views live in the console and tui sub-packages.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// ErrInterrupted is returned by a View when the user aborts input
// (Ctrl-C in the TUI). The Controller treats it like choosing Exit.
var ErrInterrupted = errors.New("interrupted")

// TimeLayout formats modification times in file listings.
const TimeLayout = "2006-01-02 15:04:05"

// MenuChoice is an entry of the main menu.
type MenuChoice int

const (
	ChoiceExit MenuChoice = iota
	ChoiceList
	ChoiceUpload
	ChoiceDelete
	ChoiceDownload
)

// MenuItems holds the main menu labels indexed by MenuChoice.
var MenuItems = []string{
	ChoiceExit:     "Exit",
	ChoiceList:     "List files",
	ChoiceUpload:   "Upload file",
	ChoiceDelete:   "Delete file",
	ChoiceDownload: "Download file",
}

// ConflictAction is the answer to "the target already exists".
type ConflictAction int

const (
	ConflictCancel ConflictAction = iota
	ConflictAppend
	ConflictReplace
)

// ConflictItems holds the conflict menu labels indexed by ConflictAction.
var ConflictItems = []string{
	ConflictCancel:  "Cancel",
	ConflictAppend:  "Append",
	ConflictReplace: "Replace",
}

// Mode maps the action to a transfer mode. ok is false for ConflictCancel.
func (a ConflictAction) Mode() (mode protocol.Mode, ok bool) {
	switch a {
	case ConflictAppend:
		return protocol.ModeAdd, true
	case ConflictReplace:
		return protocol.ModeWrite, true
	default:
		return "", false
	}
}

// Progress receives transfer progress for one file.
type Progress interface {
	Update(done, total int64)
	Done()
}

// View is everything the Controller needs from a front-end.
//
// Input methods block until the user answers. They return io.EOF when
// input is exhausted and ErrInterrupted when the user aborts. An empty
// path or filename means the user backed out of the operation.
type View interface {
	ShowMainMenu(ctx context.Context) (MenuChoice, error)

	// InputLocalPath asks for a path on the local machine.
	InputLocalPath(ctx context.Context) (string, error)

	// InputFilename asks for a server file name and re-prompts until the
	// name is empty or passes store.ValidateName.
	InputFilename(ctx context.Context) (string, error)

	// InputConflict asks what to do because target already exists.
	InputConflict(ctx context.Context, target string) (ConflictAction, error)

	ShowFileList(files []store.FileRecord)
	ShowError(err error)
	ShowMessage(msg string)

	StartProgress(label string) Progress
}

// NameProblem explains why name cannot be used on the server, or returns
// "" when it can. Views use it to re-prompt.
func NameProblem(name string) string {
	if store.ValidateName(name) == nil {
		return ""
	}
	switch {
	case store.HasForbiddenChars(name):
		return fmt.Sprintf("Name contains forbidden characters: %s", store.ForbiddenChars)
	case len(name) > store.MaxNameLength:
		return fmt.Sprintf("Name is longer than %d bytes", store.MaxNameLength)
	default:
		return fmt.Sprintf("Name %q is not allowed", name)
	}
}

// FormatSize renders a byte count in human-readable units.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// FormatTime renders a listing modification time in local time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(TimeLayout)
}

// Percent returns done/total as a whole percentage. An empty transfer is
// complete.
func Percent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	return int(done * 100 / total)
}
