package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/granddizzy/ItismAsyncio/internal/protocol"
	"github.com/granddizzy/ItismAsyncio/pkg/client"
	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// ============================================================================
// Fakes
// ============================================================================

// scriptView answers from queues and records what was shown.
type scriptView struct {
	choices   []MenuChoice
	paths     []string
	names     []string
	conflicts []ConflictAction

	lists    [][]store.FileRecord
	errs     []error
	messages []string
	asked    []string
	progress []string
}

func (v *scriptView) ShowMainMenu(context.Context) (MenuChoice, error) {
	if len(v.choices) == 0 {
		return 0, io.EOF
	}
	c := v.choices[0]
	v.choices = v.choices[1:]
	return c, nil
}

func (v *scriptView) InputLocalPath(context.Context) (string, error) {
	if len(v.paths) == 0 {
		return "", io.EOF
	}
	p := v.paths[0]
	v.paths = v.paths[1:]
	return p, nil
}

func (v *scriptView) InputFilename(context.Context) (string, error) {
	if len(v.names) == 0 {
		return "", io.EOF
	}
	n := v.names[0]
	v.names = v.names[1:]
	return n, nil
}

func (v *scriptView) InputConflict(_ context.Context, target string) (ConflictAction, error) {
	v.asked = append(v.asked, target)
	if len(v.conflicts) == 0 {
		return 0, io.EOF
	}
	a := v.conflicts[0]
	v.conflicts = v.conflicts[1:]
	return a, nil
}

func (v *scriptView) ShowFileList(files []store.FileRecord) { v.lists = append(v.lists, files) }
func (v *scriptView) ShowError(err error) { v.errs = append(v.errs, err) }
func (v *scriptView) ShowMessage(msg string) { v.messages = append(v.messages, msg) }

func (v *scriptView) StartProgress(label string) Progress {
	v.progress = append(v.progress, label)
	return nopProgress{}
}

type nopProgress struct{}

func (nopProgress) Update(int64, int64) {}
func (nopProgress) Done() {}

type putCall struct {
	name, path string
	mode       protocol.Mode
}

// fakeRemote keeps files in a map.
type fakeRemote struct {
	files   map[string][]byte
	puts    []putCall
	gets    []putCall
	deletes []string
	checks  int
	closed  int

	connectErr error
	listErr    error
}

func newFakeRemote(files map[string][]byte) *fakeRemote {
	if files == nil {
		files = make(map[string][]byte)
	}
	return &fakeRemote{files: files}
}

func (r *fakeRemote) Connect(context.Context) error { return r.connectErr }

func (r *fakeRemote) List(context.Context) ([]store.FileRecord, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []store.FileRecord
	for name, data := range r.files {
		out = append(out, store.FileRecord{Name: name, Size: int64(len(data))})
	}
	return out, nil
}

func (r *fakeRemote) Check(_ context.Context, name string) (bool, error) {
	r.checks++
	_, ok := r.files[name]
	return ok, nil
}

func (r *fakeRemote) Delete(_ context.Context, name string) error {
	if _, ok := r.files[name]; !ok {
		return &client.ServerError{Op: "del", Status: protocol.StatusError, Message: protocol.MsgFileNotExists}
	}
	delete(r.files, name)
	r.deletes = append(r.deletes, name)
	return nil
}

func (r *fakeRemote) PutFile(_ context.Context, name, path string, mode protocol.Mode, _ ...client.TransferOption) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	r.puts = append(r.puts, putCall{name, path, mode})
	if mode == protocol.ModeAdd {
		data = append(r.files[name], data...)
	}
	r.files[name] = data
	return nil
}

func (r *fakeRemote) GetFile(_ context.Context, name, path string, mode protocol.Mode, _ ...client.TransferOption) error {
	r.gets = append(r.gets, putCall{name, path, mode})
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == protocol.ModeAdd {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(r.files[name])
	return err
}

func (r *fakeRemote) Close() error {
	r.closed++
	return nil
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// ============================================================================
// Run loop
// ============================================================================

func TestRunExitClosesRemote(t *testing.T) {
	view := &scriptView{choices: []MenuChoice{ChoiceExit}}
	remote := newFakeRemote(nil)

	require.NoError(t, NewController(remote, view).Run(context.Background()))
	assert.Equal(t, []string{"Goodbye!"}, view.messages)
	assert.Equal(t, 1, remote.closed)
}

func TestRunEndOfInputExits(t *testing.T) {
	view := &scriptView{}
	remote := newFakeRemote(nil)

	require.NoError(t, NewController(remote, view).Run(context.Background()))
	assert.Equal(t, []string{"Goodbye!"}, view.messages)
	assert.Equal(t, 1, remote.closed)
}

func TestRunReportsConnectFailureAndContinues(t *testing.T) {
	view := &scriptView{choices: []MenuChoice{ChoiceList, ChoiceExit}}
	remote := newFakeRemote(map[string][]byte{"a": []byte("x")})
	remote.connectErr = &client.ConnectionError{Op: "dial", Err: errors.New("refused")}

	require.NoError(t, NewController(remote, view).Run(context.Background()))
	require.Len(t, view.errs, 1)
	assert.True(t, client.IsConnectionError(view.errs[0]))
	require.Len(t, view.lists, 1)
	assert.Len(t, view.lists[0], 1)
}

func TestRunOperationErrorKeepsLooping(t *testing.T) {
	view := &scriptView{choices: []MenuChoice{ChoiceList, ChoiceList, ChoiceExit}}
	remote := newFakeRemote(nil)
	remote.listErr = errors.New("list broke")

	require.NoError(t, NewController(remote, view).Run(context.Background()))
	assert.Len(t, view.errs, 2)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	view := &scriptView{choices: []MenuChoice{ChoiceList}}
	remote := newFakeRemote(nil)

	require.NoError(t, NewController(remote, view).Run(ctx))
	assert.Empty(t, view.lists)
	assert.Equal(t, 1, remote.closed)
}

// ============================================================================
// Upload
// ============================================================================

func TestUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("NewFile", func(t *testing.T) {
		src := writeTemp(t, "src", []byte("hello"))
		view := &scriptView{paths: []string{src}, names: []string{"report"}}
		remote := newFakeRemote(nil)

		require.NoError(t, NewController(remote, view).Upload(ctx))
		assert.Equal(t, []putCall{{"report", src, protocol.ModeWrite}}, remote.puts)
		assert.Equal(t, []string{"File report uploaded"}, view.messages)
		assert.Equal(t, []string{"Uploading report"}, view.progress)
		assert.Empty(t, view.asked)
	})

	t.Run("RepromptsForMissingAndEmptyFiles", func(t *testing.T) {
		empty := writeTemp(t, "empty", nil)
		src := writeTemp(t, "src", []byte("data"))
		view := &scriptView{
			paths: []string{filepath.Join(t.TempDir(), "nope"), empty, src},
			names: []string{"report"},
		}
		remote := newFakeRemote(nil)

		require.NoError(t, NewController(remote, view).Upload(ctx))
		require.Len(t, view.errs, 2)
		assert.ErrorIs(t, view.errs[0], client.ErrLocalNotFound)
		assert.ErrorIs(t, view.errs[1], client.ErrLocalEmpty)
		assert.Len(t, remote.puts, 1)
	})

	t.Run("ConflictAppend", func(t *testing.T) {
		src := writeTemp(t, "src", []byte("-more"))
		view := &scriptView{paths: []string{src}, names: []string{"report"}, conflicts: []ConflictAction{ConflictAppend}}
		remote := newFakeRemote(map[string][]byte{"report": []byte("base")})

		require.NoError(t, NewController(remote, view).Upload(ctx))
		assert.Equal(t, []string{"report"}, view.asked)
		assert.Equal(t, "base-more", string(remote.files["report"]))
	})

	t.Run("ConflictReplace", func(t *testing.T) {
		src := writeTemp(t, "src", []byte("new"))
		view := &scriptView{paths: []string{src}, names: []string{"report"}, conflicts: []ConflictAction{ConflictReplace}}
		remote := newFakeRemote(map[string][]byte{"report": []byte("old")})

		require.NoError(t, NewController(remote, view).Upload(ctx))
		assert.Equal(t, "new", string(remote.files["report"]))
	})

	t.Run("ConflictCancel", func(t *testing.T) {
		src := writeTemp(t, "src", []byte("new"))
		view := &scriptView{paths: []string{src}, names: []string{"report"}, conflicts: []ConflictAction{ConflictCancel}}
		remote := newFakeRemote(map[string][]byte{"report": []byte("old")})

		require.NoError(t, NewController(remote, view).Upload(ctx))
		assert.Empty(t, remote.puts)
		assert.Equal(t, "old", string(remote.files["report"]))
		assert.Equal(t, []string{"Cancelled"}, view.messages)
	})

	t.Run("EmptyAnswersBackOut", func(t *testing.T) {
		src := writeTemp(t, "src", []byte("x"))
		for _, view := range []*scriptView{
			{paths: []string{""}},
			{paths: []string{src}, names: []string{""}},
		} {
			remote := newFakeRemote(nil)
			require.NoError(t, NewController(remote, view).Upload(ctx))
			assert.Empty(t, remote.puts)
			assert.Zero(t, remote.checks)
		}
	})
}

// ============================================================================
// Delete
// ============================================================================

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("Existing", func(t *testing.T) {
		view := &scriptView{names: []string{"report"}}
		remote := newFakeRemote(map[string][]byte{"report": []byte("x")})

		require.NoError(t, NewController(remote, view).Delete(ctx))
		assert.Equal(t, []string{"report"}, remote.deletes)
		assert.Equal(t, []string{"File report deleted"}, view.messages)
	})

	t.Run("MissingIsCheckedFirst", func(t *testing.T) {
		view := &scriptView{names: []string{"ghost"}}
		remote := newFakeRemote(nil)

		err := NewController(remote, view).Delete(ctx)
		assert.ErrorIs(t, err, client.ErrNotFound)
		assert.Equal(t, 1, remote.checks)
		assert.Empty(t, remote.deletes)
	})
}

// ============================================================================
// Download
// ============================================================================

func TestDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("NewLocalFile", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "out")
		view := &scriptView{names: []string{"report"}, paths: []string{dst}}
		remote := newFakeRemote(map[string][]byte{"report": []byte("AAAA")})

		require.NoError(t, NewController(remote, view).Download(ctx))
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "AAAA", string(data))
		assert.Empty(t, view.asked)
		assert.Equal(t, []string{fmt.Sprintf("File report saved to %s", dst)}, view.messages)
	})

	t.Run("MissingOnServer", func(t *testing.T) {
		view := &scriptView{names: []string{"ghost"}}
		remote := newFakeRemote(nil)

		err := NewController(remote, view).Download(ctx)
		assert.ErrorIs(t, err, client.ErrNotFound)
		assert.Empty(t, remote.gets)
	})

	t.Run("LocalConflictAppend", func(t *testing.T) {
		dst := writeTemp(t, "out", []byte("old-"))
		view := &scriptView{names: []string{"report"}, paths: []string{dst}, conflicts: []ConflictAction{ConflictAppend}}
		remote := newFakeRemote(map[string][]byte{"report": []byte("new")})

		require.NoError(t, NewController(remote, view).Download(ctx))
		assert.Equal(t, []string{dst}, view.asked)
		assert.Equal(t, []putCall{{"report", dst, protocol.ModeAdd}}, remote.gets)
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "old-new", string(data))
	})

	t.Run("LocalConflictCancel", func(t *testing.T) {
		dst := writeTemp(t, "out", []byte("keep"))
		view := &scriptView{names: []string{"report"}, paths: []string{dst}, conflicts: []ConflictAction{ConflictCancel}}
		remote := newFakeRemote(map[string][]byte{"report": []byte("new")})

		require.NoError(t, NewController(remote, view).Download(ctx))
		assert.Empty(t, remote.gets)
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "keep", string(data))
	})
}

// ============================================================================
// Helpers
// ============================================================================

func TestConflictActionMode(t *testing.T) {
	mode, ok := ConflictAppend.Mode()
	assert.True(t, ok)
	assert.Equal(t, protocol.ModeAdd, mode)

	mode, ok = ConflictReplace.Mode()
	assert.True(t, ok)
	assert.Equal(t, protocol.ModeWrite, mode)

	_, ok = ConflictCancel.Mode()
	assert.False(t, ok)
}

func TestNameProblem(t *testing.T) {
	assert.Empty(t, NameProblem("report.txt"))
	assert.Contains(t, NameProblem("a:b"), "forbidden characters")
	long := make([]byte, store.MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Contains(t, NameProblem(string(long)), "longer than")
	assert.Contains(t, NameProblem(".."), "not allowed")
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{5000, "4.9 KB"},
		{10 << 20, "10.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.size))
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 100, Percent(0, 0))
	assert.Equal(t, 0, Percent(0, 10))
	assert.Equal(t, 50, Percent(5, 10))
	assert.Equal(t, 100, Percent(10, 10))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "File not found on server",
		Describe(&client.ServerError{Op: "get", Status: protocol.StatusError, Message: protocol.MsgFileNotExists}))
	assert.Equal(t, "Server error: No data",
		Describe(&client.ServerError{Op: "put", Status: protocol.StatusError, Message: protocol.MsgNoData}))
	assert.Contains(t,
		Describe(&client.ConnectionError{Op: "list", Err: io.ErrUnexpectedEOF}),
		"reconnecting on the next command")
	assert.Equal(t, "plain", Describe(errors.New("plain")))
}
