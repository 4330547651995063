package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/events"
	"github.com/tessellate-ai/loom/llm"
	"github.com/tessellate-ai/loom/store"
)

type managerEnv struct {
	manager *Manager
	store   *store.Store
	bus     *events.Bus
	project string
}

func newManagerEnv(t *testing.T, client llm.StreamingClient) *managerEnv {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "sessions.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	project, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	bus := events.NewBus()
	manager, err := New(Options{Store: s, Bus: bus, Client: client})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close(context.Background()) })

	return &managerEnv{manager: manager, store: s, bus: bus, project: project}
}

func (env *managerEnv) waitStatus(t *testing.T, id string, want loom.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		sess, err := env.manager.GetAgent(context.Background(), id)
		return err == nil && sess.Status == want && !env.manager.IsAgentRunning(id)
	}, 5*time.Second, 10*time.Millisecond, "expected session to reach %s", want)
}

func toolCall(name string, input any) *llm.ToolCall {
	data, err := json.Marshal(input)
	if err != nil {
		panic(err)
	}
	return &llm.ToolCall{ID: loom.NewID(), Name: name, Input: data}
}

func TestCreateAgent(t *testing.T) {
	env := newManagerEnv(t, llm.NewScriptedClient())
	ctx := context.Background()

	sess, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:        "add endpoint",
		ProjectPath: env.project,
	})
	require.NoError(t, err)
	assert.Equal(t, loom.StatusIdeas, sess.Status)

	got, err := env.manager.GetAgent(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.Name, got.Name)
	assert.Equal(t, env.project, got.ProjectPath)

	_, err = env.manager.CreateAgent(ctx, CreateAgentInput{Name: "x"})
	assert.Error(t, err)
	_, err = env.manager.CreateAgent(ctx, CreateAgentInput{ProjectPath: env.project})
	assert.Error(t, err)
}

func TestCreateAgentWithInitialPrompt(t *testing.T) {
	env := newManagerEnv(t, llm.NewScriptedClient())
	ctx := context.Background()

	sess, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:          "task",
		ProjectPath:   env.project,
		InitialPrompt: "touch a.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, loom.StatusTodo, sess.Status)

	msgs, err := env.manager.GetMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, loom.RoleUser, msgs[0].Role)
	assert.Equal(t, "touch a.txt", msgs[0].Content)
}

// Happy path: the model writes a file and finishes; accepting keeps the file.
func TestHappyPathAccept(t *testing.T) {
	client := llm.NewScriptedClient(
		&llm.ScriptedTurn{ToolCalls: []*llm.ToolCall{
			toolCall("write_file", map[string]string{"path": "a.txt", "content": "hi"}),
		}},
		&llm.ScriptedTurn{ToolCalls: []*llm.ToolCall{
			toolCall("finish_work", map[string]string{"summary": "done"}),
		}},
	)
	env := newManagerEnv(t, client)
	ctx := context.Background()

	var mu sync.Mutex
	var statuses []string
	env.bus.Subscribe(events.TopicStatusChanged, func(event events.Event) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, fmt.Sprintf("%v->%v", event.Payload["from"], event.Payload["to"]))
	})

	sess, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:          "toucher",
		ProjectPath:   env.project,
		InitialPrompt: "touch a.txt",
	})
	require.NoError(t, err)

	require.NoError(t, env.manager.StartAgent(ctx, sess.ID, StartAgentOptions{}))
	env.waitStatus(t, sess.ID, loom.StatusReview)

	path := filepath.Join(env.project, "a.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	got, err := env.manager.GetAgent(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.Metadata["summary"])
	require.NotNil(t, got.CompletedAt)

	snaps, err := env.store.ListSnapshots(ctx, sess.ID, loom.SnapshotPending)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, loom.SnapshotCreate, snaps[0].Operation)
	require.NotNil(t, snaps[0].After)
	assert.Equal(t, "hi", *snaps[0].After)

	require.NoError(t, env.manager.UpdateAgentStatus(ctx, sess.ID, loom.StatusAccepted))

	snaps, err = env.store.ListSnapshots(ctx, sess.ID, "")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, loom.SnapshotAccepted, snaps[0].Status)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, statuses, "todo->doing")
	assert.Contains(t, statuses, "doing->review")
	assert.Contains(t, statuses, "review->accepted")
}

// Reject path: same run, but rejecting reverts the file.
func TestRejectReverts(t *testing.T) {
	client := llm.NewScriptedClient(
		&llm.ScriptedTurn{ToolCalls: []*llm.ToolCall{
			toolCall("write_file", map[string]string{"path": "a.txt", "content": "hi"}),
		}},
		&llm.ScriptedTurn{ToolCalls: []*llm.ToolCall{
			toolCall("finish_work", map[string]string{"summary": "done"}),
		}},
	)
	env := newManagerEnv(t, client)
	ctx := context.Background()

	sess, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:          "toucher",
		ProjectPath:   env.project,
		InitialPrompt: "touch a.txt",
	})
	require.NoError(t, err)
	require.NoError(t, env.manager.StartAgent(ctx, sess.ID, StartAgentOptions{}))
	env.waitStatus(t, sess.ID, loom.StatusReview)

	require.NoError(t, env.manager.UpdateAgentStatus(ctx, sess.ID, loom.StatusRejected))

	_, err = os.Stat(filepath.Join(env.project, "a.txt"))
	assert.True(t, os.IsNotExist(err))
	snaps, err := env.store.ListSnapshots(ctx, sess.ID, "")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, loom.SnapshotReverted, snaps[0].Status)
}

// Clarification cycle: question pauses the agent, a user answer re-arms it.
func TestClarificationCycle(t *testing.T) {
	client := llm.NewScriptedClient(
		&llm.ScriptedTurn{ToolCalls: []*llm.ToolCall{
			toolCall("require_clarification", map[string]string{"question": "which port?"}),
		}},
		&llm.ScriptedTurn{ToolCalls: []*llm.ToolCall{
			toolCall("finish_work", map[string]string{"summary": "used port 3000"}),
		}},
	)
	env := newManagerEnv(t, client)
	ctx := context.Background()

	sess, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:          "server",
		ProjectPath:   env.project,
		InitialPrompt: "run a server",
	})
	require.NoError(t, err)

	require.NoError(t, env.manager.StartAgent(ctx, sess.ID, StartAgentOptions{}))
	env.waitStatus(t, sess.ID, loom.StatusNeedClarification)

	got, err := env.manager.GetAgent(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "which port?", got.Metadata["question"])

	_, err = env.manager.AddMessage(ctx, sess.ID, loom.RoleUser, "3000")
	require.NoError(t, err)
	got, err = env.manager.GetAgent(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, loom.StatusTodo, got.Status)

	require.NoError(t, env.manager.StartAgent(ctx, sess.ID, StartAgentOptions{}))
	env.waitStatus(t, sess.ID, loom.StatusReview)
}

// Write-write conflict: a live foreign lock sends the losing agent to
// need_clarification.
func TestWriteConflictInterrupts(t *testing.T) {
	client := llm.NewScriptedClient(
		&llm.ScriptedTurn{ToolCalls: []*llm.ToolCall{
			toolCall("write_file", map[string]string{"path": "x.ts", "content": "mine"}),
		}},
	)
	env := newManagerEnv(t, client)
	ctx := context.Background()

	holder, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:        "holder",
		ProjectPath: env.project,
	})
	require.NoError(t, err)
	_, _, err = env.store.AcquireLock(ctx, holder.ID, filepath.Join(env.project, "x.ts"), loom.LockWrite, time.Minute)
	require.NoError(t, err)

	var mu sync.Mutex
	var conflicts []events.Event
	env.bus.Subscribe(events.TopicLockConflict, func(event events.Event) {
		mu.Lock()
		defer mu.Unlock()
		conflicts = append(conflicts, event)
	})

	loser, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:          "loser",
		ProjectPath:   env.project,
		InitialPrompt: "edit x.ts",
	})
	require.NoError(t, err)
	require.NoError(t, env.manager.StartAgent(ctx, loser.ID, StartAgentOptions{}))
	env.waitStatus(t, loser.ID, loom.StatusNeedClarification)

	got, err := env.manager.GetAgent(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, holder.ID, got.Metadata["conflicting_session"])
	mu.Lock()
	require.NotEmpty(t, conflicts)
	assert.Equal(t, loser.ID, conflicts[0].SessionID)
	mu.Unlock()

	_, err = os.Stat(filepath.Join(env.project, "x.ts"))
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateAgentStatusIllegalTransition(t *testing.T) {
	env := newManagerEnv(t, llm.NewScriptedClient())
	ctx := context.Background()

	sess, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:        "x",
		ProjectPath: env.project,
	})
	require.NoError(t, err)

	err = env.manager.UpdateAgentStatus(ctx, sess.ID, loom.StatusAccepted)
	var illegal *loom.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, loom.StatusIdeas, illegal.From)

	// The refused transition mutated nothing.
	got, err := env.manager.GetAgent(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, loom.StatusIdeas, got.Status)
}

func TestAddMessageRules(t *testing.T) {
	env := newManagerEnv(t, llm.NewScriptedClient())
	ctx := context.Background()

	sess, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:        "x",
		ProjectPath: env.project,
	})
	require.NoError(t, err)

	_, err = env.manager.AddMessage(ctx, sess.ID, loom.RoleAssistant, "nope")
	assert.Error(t, err)

	// A user message while in ideas moves the session to todo.
	msg, err := env.manager.AddMessage(ctx, sess.ID, loom.RoleUser, "do it")
	require.NoError(t, err)
	got, err := env.manager.GetAgent(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, loom.StatusTodo, got.Status)

	msgs, err := env.manager.GetMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)

	// System messages never transition.
	_, err = env.manager.AddMessage(ctx, sess.ID, loom.RoleSystem, "context note")
	require.NoError(t, err)
	got, err = env.manager.GetAgent(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, loom.StatusTodo, got.Status)
}

func TestDeleteAgent(t *testing.T) {
	env := newManagerEnv(t, llm.NewScriptedClient())
	ctx := context.Background()

	sess, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:          "x",
		ProjectPath:   env.project,
		InitialPrompt: "task",
	})
	require.NoError(t, err)

	var deleted []string
	env.bus.Subscribe(events.TopicAgentDeleted, func(event events.Event) {
		deleted = append(deleted, event.SessionID)
	})

	require.NoError(t, env.manager.DeleteAgent(ctx, sess.ID))
	_, err = env.manager.GetAgent(ctx, sess.ID)
	assert.ErrorIs(t, err, loom.ErrNotFound)
	assert.Equal(t, []string{sess.ID}, deleted)
}

func TestListAgentsAndProjectSummary(t *testing.T) {
	env := newManagerEnv(t, llm.NewScriptedClient())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.manager.CreateAgent(ctx, CreateAgentInput{
			Name:        fmt.Sprintf("agent-%d", i),
			ProjectPath: env.project,
		})
		require.NoError(t, err)
	}

	list, err := env.manager.ListAgents(ctx, env.project, "")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	summary, err := env.manager.GetProjectAgentSummary(ctx, env.project)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.ByStatus[loom.StatusIdeas])
	assert.Empty(t, summary.Running)
	assert.Len(t, summary.RecentActivity, 3)

	projects, err := env.manager.GetAllProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, 3, projects[0].AgentCount)

	switched, err := env.manager.SwitchProject(ctx, env.project)
	require.NoError(t, err)
	assert.Len(t, switched, 3)
}

func TestCheckFileConflicts(t *testing.T) {
	env := newManagerEnv(t, llm.NewScriptedClient())
	ctx := context.Background()

	a, err := env.manager.CreateAgent(ctx, CreateAgentInput{Name: "a", ProjectPath: env.project})
	require.NoError(t, err)
	b, err := env.manager.CreateAgent(ctx, CreateAgentInput{Name: "b", ProjectPath: env.project})
	require.NoError(t, err)

	locked := filepath.Join(env.project, "x.ts")
	_, _, err = env.store.AcquireLock(ctx, a.ID, locked, loom.LockWrite, time.Minute)
	require.NoError(t, err)

	report, err := env.manager.CheckFileConflicts(ctx, b.ID, []string{locked, filepath.Join(env.project, "y.ts")})
	require.NoError(t, err)
	assert.False(t, report.CanProceed)
	assert.Equal(t, []string{locked}, report.Conflicts)
	assert.NotEmpty(t, report.Suggestions)

	// A project-relative path resolves to the same lock key the tools use.
	report, err = env.manager.CheckFileConflicts(ctx, b.ID, []string{"x.ts"})
	require.NoError(t, err)
	assert.False(t, report.CanProceed)
	assert.Equal(t, []string{locked}, report.Conflicts)

	report, err = env.manager.CheckFileConflicts(ctx, a.ID, []string{locked})
	require.NoError(t, err)
	assert.True(t, report.CanProceed)

	_, err = env.manager.CheckFileConflicts(ctx, b.ID, []string{"../outside.ts"})
	var oob *loom.OutOfBoundsError
	assert.ErrorAs(t, err, &oob)
}

func TestGetSessionDiff(t *testing.T) {
	client := llm.NewScriptedClient(
		&llm.ScriptedTurn{ToolCalls: []*llm.ToolCall{
			toolCall("write_file", map[string]string{"path": "a.txt", "content": "line\n"}),
		}},
		&llm.ScriptedTurn{ToolCalls: []*llm.ToolCall{
			toolCall("finish_work", map[string]string{"summary": "done"}),
		}},
	)
	env := newManagerEnv(t, client)
	ctx := context.Background()

	sess, err := env.manager.CreateAgent(ctx, CreateAgentInput{
		Name:          "differ",
		ProjectPath:   env.project,
		InitialPrompt: "write a.txt",
	})
	require.NoError(t, err)
	require.NoError(t, env.manager.StartAgent(ctx, sess.ID, StartAgentOptions{}))
	env.waitStatus(t, sess.ID, loom.StatusReview)

	diff, err := env.manager.GetSessionDiff(ctx, sess.ID)
	require.NoError(t, err)
	assert.Contains(t, diff, "+line")
}

func TestCleanupInactiveProjects(t *testing.T) {
	env := newManagerEnv(t, llm.NewScriptedClient())
	ctx := context.Background()

	_, err := env.manager.CreateAgent(ctx, CreateAgentInput{Name: "a", ProjectPath: env.project})
	require.NoError(t, err)

	removed, err := env.manager.CleanupInactiveProjects(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = env.manager.CleanupInactiveProjects(ctx, -1)
	require.NoError(t, err)
	assert.Zero(t, removed, "defaulted window keeps fresh projects")
}
