package toolkit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/arbiter"
	"github.com/tessellate-ai/loom/journal"
	"github.com/tessellate-ai/loom/store"
)

type fakeCompleter struct {
	finished      bool
	summary       string
	changes       []string
	clarified     bool
	question      string
	suggestions   []string
	lastSessionID string
}

func (c *fakeCompleter) FinishWork(ctx context.Context, sessionID, summary string, changes []string, notes string) error {
	c.finished = true
	c.lastSessionID = sessionID
	c.summary = summary
	c.changes = changes
	return nil
}

func (c *fakeCompleter) RequireClarification(ctx context.Context, sessionID, question, background string, suggestions []string) error {
	c.clarified = true
	c.lastSessionID = sessionID
	c.question = question
	c.suggestions = suggestions
	return nil
}

type testEnv struct {
	kit       *Toolkit
	store     *store.Store
	arbiter   *arbiter.Arbiter
	journal   *journal.Journal
	completer *fakeCompleter
	project   string
	tc        *loom.ToolContext
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "toolkit.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	project, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	sess := &loom.Session{Name: "agent", ProjectPath: project}
	require.NoError(t, s.CreateSession(context.Background(), sess))

	arb := arbiter.New(arbiter.Options{Store: s})
	jrnl := journal.New(journal.Options{Store: s})
	completer := &fakeCompleter{}
	kit := New(Options{
		Store:     s,
		Arbiter:   arb,
		Journal:   jrnl,
		Completer: completer,
	})
	return &testEnv{
		kit:       kit,
		store:     s,
		arbiter:   arb,
		journal:   jrnl,
		completer: completer,
		project:   project,
		tc:        &loom.ToolContext{SessionID: sess.ID, ProjectPath: project, StepIndex: 1},
	}
}

func TestToolsCatalogue(t *testing.T) {
	env := newTestEnv(t)
	tools := env.kit.Tools()
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name()
	}
	assert.ElementsMatch(t, []string{
		"read_file", "write_file", "delete_file", "list_directory",
		"create_directory", "search_files", "get_project_info",
		"finish_work", "require_clarification",
	}, names)
}

func TestWriteThenReadFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	write := &WriteFileTool{toolkit: env.kit}
	result, err := write.Call(ctx, env.tc, WriteFileInput{Path: "src/a.txt", Content: "hi"})
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)

	data, err := os.ReadFile(filepath.Join(env.project, "src", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	snaps, err := env.journal.ListForSession(ctx, env.tc.SessionID, loom.SnapshotPending)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, loom.SnapshotCreate, snaps[0].Operation)
	require.NotNil(t, snaps[0].After)
	assert.Equal(t, "hi", *snaps[0].After)

	read := &ReadFileTool{toolkit: env.kit}
	result, err = read.Call(ctx, env.tc, ReadFileInput{Path: "src/a.txt"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "hi", result.Content)

	// Locks taken by the tools are released before they return.
	locks, err := env.store.ListLiveLocks(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestWriteFileUpdateCapturesBefore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := filepath.Join(env.project, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	write := &WriteFileTool{toolkit: env.kit}
	result, err := write.Call(ctx, env.tc, WriteFileInput{Path: "a.txt", Content: "new"})
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)

	snaps, err := env.journal.ListForSession(ctx, env.tc.SessionID, "")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, loom.SnapshotUpdate, snaps[0].Operation)
	require.NotNil(t, snaps[0].Before)
	assert.Equal(t, "old", *snaps[0].Before)
}

func TestOutOfBoundsPathRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	read := &ReadFileTool{toolkit: env.kit}
	result, err := read.Call(ctx, env.tc, ReadFileInput{Path: "/etc/passwd"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "outside project bounds")

	write := &WriteFileTool{toolkit: env.kit}
	result, err = write.Call(ctx, env.tc, WriteFileInput{Path: "../escape.txt", Content: "x"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "outside project bounds")

	// No lock and no snapshot for the refused calls.
	locks, err := env.store.ListLiveLocks(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, locks)
	snaps, err := env.journal.ListForSession(ctx, env.tc.SessionID, "")
	require.NoError(t, err)
	assert.Empty(t, snaps)

	_, err = os.Stat(filepath.Join(filepath.Dir(env.project), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileLockConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other := &loom.Session{Name: "other", ProjectPath: env.project}
	require.NoError(t, env.store.CreateSession(ctx, other))
	path := filepath.Join(env.project, "x.ts")
	_, err := env.arbiter.AcquireWrite(ctx, other.ID, path)
	require.NoError(t, err)

	write := &WriteFileTool{toolkit: env.kit}
	result, err := write.Call(ctx, env.tc, WriteFileInput{Path: "x.ts", Content: "mine"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	require.NotNil(t, result.LockConflict)
	assert.Equal(t, other.ID, result.LockConflict.ConflictingSession)

	// The losing call journalled nothing and wrote nothing.
	snaps, err := env.journal.ListForSession(ctx, env.tc.SessionID, "")
	require.NoError(t, err)
	assert.Empty(t, snaps)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := filepath.Join(env.project, "doomed.txt")
	require.NoError(t, os.WriteFile(path, []byte("bye"), 0644))

	del := &DeleteFileTool{toolkit: env.kit}
	result, err := del.Call(ctx, env.tc, DeleteFileInput{Path: "doomed.txt"})
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	snaps, err := env.journal.ListForSession(ctx, env.tc.SessionID, "")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, loom.SnapshotDelete, snaps[0].Operation)
	require.NotNil(t, snaps[0].Before)
	assert.Equal(t, "bye", *snaps[0].Before)

	result, err = del.Call(ctx, env.tc, DeleteFileInput{Path: "doomed.txt"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "not found")
}

func TestListAndCreateDirectory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mkdir := &CreateDirectoryTool{toolkit: env.kit}
	result, err := mkdir.Call(ctx, env.tc, CreateDirectoryInput{Path: "src/deep/nested"})
	require.NoError(t, err)
	require.False(t, result.IsError, result.Content)

	// Idempotent.
	result, err = mkdir.Call(ctx, env.tc, CreateDirectoryInput{Path: "src/deep/nested"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.NoError(t, os.WriteFile(filepath.Join(env.project, "src", "main.go"), []byte("package main"), 0644))

	list := &ListDirectoryTool{toolkit: env.kit}
	result, err = list.Call(ctx, env.tc, ListDirectoryInput{Path: "src"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, result.Content, "deep\tdirectory")
	assert.Contains(t, result.Content, "main.go\tfile")
}

func TestSearchFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(env.project, "src"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.project, "node_modules", "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.project, "src", "UserService.ts"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.project, "src", "order.ts"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.project, "node_modules", "pkg", "userservice.js"), nil, 0644))

	search := &SearchFilesTool{toolkit: env.kit}
	result, err := search.Call(ctx, env.tc, SearchFilesInput{Query: "userservice"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, result.Content, filepath.Join(env.project, "src", "UserService.ts"))
	assert.NotContains(t, result.Content, "node_modules")

	result, err = search.Call(ctx, env.tc, SearchFilesInput{Query: "zzz"})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "No files matching")
}

func TestSearchFilesHonoursIgnoreFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(env.project, "generated"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.project, ".gitignore"), []byte("generated/\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.project, "generated", "api.ts"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.project, "api.ts"), nil, 0644))

	search := &SearchFilesTool{toolkit: env.kit}
	result, err := search.Call(ctx, env.tc, SearchFilesInput{Query: "api"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, result.Content, filepath.Join(env.project, "api.ts"))
	assert.NotContains(t, result.Content, "generated")
}

func TestGetProjectInfo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(env.project, "go.mod"), []byte("module x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.project, "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.project, ".hidden"), nil, 0644))

	info := &GetProjectInfoTool{toolkit: env.kit}
	result, err := info.Call(ctx, env.tc, GetProjectInfoInput{IncludeStats: true})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, result.Content, filepath.Base(env.project))
	assert.Contains(t, result.Content, "go.mod")
	assert.Contains(t, result.Content, "Files: 2")
}

func TestFinishWork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	finish := &FinishWorkTool{toolkit: env.kit}
	result, err := finish.Call(ctx, env.tc, FinishWorkInput{
		Summary: "added the endpoint",
		Changes: []string{"src/a.ts"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.True(t, env.completer.finished)
	assert.Equal(t, env.tc.SessionID, env.completer.lastSessionID)
	assert.Equal(t, "added the endpoint", env.completer.summary)

	result, err = finish.Call(ctx, env.tc, FinishWorkInput{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRequireClarification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	clarify := &RequireClarificationTool{toolkit: env.kit}
	result, err := clarify.Call(ctx, env.tc, RequireClarificationInput{
		Question:    "which port?",
		Suggestions: []string{"3000", "8080"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.True(t, env.completer.clarified)
	assert.Equal(t, "which port?", env.completer.question)
	assert.Equal(t, []string{"3000", "8080"}, env.completer.suggestions)
}

func TestProgressEntriesRecorded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	write := &WriteFileTool{toolkit: env.kit}
	_, err := write.Call(ctx, env.tc, WriteFileInput{Path: "a.txt", Content: "x"})
	require.NoError(t, err)

	entries, err := env.store.GetProgress(ctx, env.tc.SessionID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, loom.ProgressRunning, entries[0].Status)
	assert.Equal(t, loom.ProgressCompleted, entries[1].Status)
}
