package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/pkg/client"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// Remote is the server as seen by the Controller. *client.Session and
// *client.Client implement it.
type Remote interface {
	List(ctx context.Context) ([]store.FileRecord, error)
	Check(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
	PutFile(ctx context.Context, name, path string, mode protocol.Mode, opts ...client.TransferOption) error
	GetFile(ctx context.Context, name, path string, mode protocol.Mode, opts ...client.TransferOption) error
	Close() error
}

// connector is implemented by remotes that can connect eagerly.
type connector interface {
	Connect(ctx context.Context) error
}

// Controller runs the main menu loop.
type Controller struct {
	remote Remote
	view   View
}

// NewController wires a Remote to a View.
func NewController(remote Remote, view View) *Controller {
	return &Controller{remote: remote, view: view}
}

// Run shows the main menu until the user exits, input ends or ctx is done.
// Failed operations are reported through the View and the loop continues;
// a lost connection is replaced by the Remote on the next operation.
//
// Run always closes the Remote before returning.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		if err := c.remote.Close(); err != nil {
			logger.Debug("close: %v", err)
		}
	}()

	if rc, ok := c.remote.(connector); ok {
		if err := rc.Connect(ctx); err != nil {
			c.view.ShowError(err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		choice, err := c.view.ShowMainMenu(ctx)
		if err != nil {
			if isEndOfInput(err) {
				c.exit()
				return nil
			}
			return fmt.Errorf("read menu choice: %w", err)
		}

		if choice == ChoiceExit {
			c.exit()
			return nil
		}

		if err := c.dispatch(ctx, choice); err != nil {
			if isEndOfInput(err) {
				c.exit()
				return nil
			}
			logger.Debug("%s failed: %v", MenuItems[choice], err)
			c.view.ShowError(err)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, choice MenuChoice) error {
	switch choice {
	case ChoiceList:
		return c.List(ctx)
	case ChoiceUpload:
		return c.Upload(ctx)
	case ChoiceDelete:
		return c.Delete(ctx)
	case ChoiceDownload:
		return c.Download(ctx)
	default:
		return fmt.Errorf("unknown menu choice %d", choice)
	}
}

func (c *Controller) exit() {
	c.view.ShowMessage("Goodbye!")
}

// List shows the server's files.
func (c *Controller) List(ctx context.Context) error {
	files, err := c.remote.List(ctx)
	if err != nil {
		return err
	}
	c.view.ShowFileList(files)
	return nil
}

// Upload asks for a local file and a server name and sends the file. The
// local file must exist and be non-empty. When the name is taken the user
// chooses to append, replace or cancel.
func (c *Controller) Upload(ctx context.Context) error {
	var path string
	for {
		p, err := c.view.InputLocalPath(ctx)
		if err != nil {
			return err
		}
		if p == "" {
			return nil
		}
		if _, err := client.CheckLocalFile(p); err != nil {
			c.view.ShowError(err)
			continue
		}
		path = p
		break
	}

	name, err := c.view.InputFilename(ctx)
	if err != nil || name == "" {
		return err
	}

	mode := protocol.ModeWrite
	exists, err := c.remote.Check(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		var ok bool
		if mode, ok, err = c.resolveConflict(ctx, name); err != nil || !ok {
			return err
		}
	}

	progress := c.view.StartProgress("Uploading " + name)
	err = c.remote.PutFile(ctx, name, path, mode, client.WithProgress(progress.Update))
	progress.Done()
	if err != nil {
		return err
	}

	c.view.ShowMessage(fmt.Sprintf("File %s uploaded", name))
	return nil
}

// Delete removes a file after checking that the server has it.
func (c *Controller) Delete(ctx context.Context) error {
	name, err := c.view.InputFilename(ctx)
	if err != nil || name == "" {
		return err
	}

	exists, err := c.remote.Check(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("file %s: %w", name, client.ErrNotFound)
	}

	if err := c.remote.Delete(ctx, name); err != nil {
		return err
	}
	c.view.ShowMessage(fmt.Sprintf("File %s deleted", name))
	return nil
}

// Download fetches a server file into a local path. When the local file
// exists the user chooses to append, replace or cancel.
func (c *Controller) Download(ctx context.Context) error {
	name, err := c.view.InputFilename(ctx)
	if err != nil || name == "" {
		return err
	}

	exists, err := c.remote.Check(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("file %s: %w", name, client.ErrNotFound)
	}

	path, err := c.view.InputLocalPath(ctx)
	if err != nil || path == "" {
		return err
	}

	mode := protocol.ModeWrite
	if client.LocalExists(path) {
		var ok bool
		if mode, ok, err = c.resolveConflict(ctx, path); err != nil || !ok {
			return err
		}
	}

	progress := c.view.StartProgress("Downloading " + name)
	err = c.remote.GetFile(ctx, name, path, mode, client.WithProgress(progress.Update))
	progress.Done()
	if err != nil {
		return err
	}

	c.view.ShowMessage(fmt.Sprintf("File %s saved to %s", name, path))
	return nil
}

func (c *Controller) resolveConflict(ctx context.Context, target string) (protocol.Mode, bool, error) {
	action, err := c.view.InputConflict(ctx, target)
	if err != nil {
		return "", false, err
	}
	mode, ok := action.Mode()
	if !ok {
		c.view.ShowMessage("Cancelled")
	}
	return mode, ok, nil
}

func isEndOfInput(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}

// Describe turns an operation error into a line for the user.
func Describe(err error) string {
	var serverErr *client.ServerError
	switch {
	case errors.As(err, &serverErr):
		if errors.Is(serverErr, client.ErrNotFound) {
			return "File not found on server"
		}
		if serverErr.Message != "" {
			return "Server error: " + serverErr.Message
		}
		return fmt.Sprintf("Server replied %s", serverErr.Status)
	case client.IsConnectionError(err):
		return fmt.Sprintf("Connection problem (%v); reconnecting on the next command", errors.Unwrap(err))
	default:
		return err.Error()
	}
}
