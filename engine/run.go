package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/events"
	"github.com/tessellate-ai/loom/llm"
)

// execute runs one agent to completion. It waits for a worker slot, replays
// the session's history into the model conversation, then alternates model
// turns and tool dispatch until a terminal tool transitions the session, the
// stream finishes, or something interrupts the run.
func (e *Engine) execute(ctx context.Context, sessionID string, maxSteps int) {
	defer e.releaseLocks(sessionID)

	if err := e.slots.Acquire(ctx, 1); err != nil {
		e.abort(sessionID, "aborted while queued")
		return
	}
	defer e.slots.Release(1)

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		e.interrupt(sessionID, fmt.Sprintf("failed to load session: %v", err), nil)
		return
	}
	msgs, step, err := e.loadHistory(ctx, sessionID)
	if err != nil {
		e.interrupt(sessionID, fmt.Sprintf("failed to load history: %v", err), nil)
		return
	}

	taken := 0
	for {
		if ctx.Err() != nil {
			e.abort(sessionID, "execution aborted")
			return
		}
		if taken >= maxSteps {
			stepErr := &loom.StepLimitError{Limit: maxSteps}
			e.recordStep(sessionID, step, loom.ProgressFailed, stepErr.Error())
			e.interrupt(sessionID, stepErr.Error(), nil)
			return
		}

		e.publish(events.TopicStepStarted, sessionID, map[string]any{"step": step})

		response, err := e.streamTurn(ctx, msgs)
		if err != nil {
			if ctx.Err() != nil {
				e.abort(sessionID, "execution aborted")
				return
			}
			e.recordStep(sessionID, step, loom.ProgressFailed, err.Error())
			e.publish(events.TopicStepFailed, sessionID, map[string]any{"step": step, "error": err.Error()})
			e.interrupt(sessionID, fmt.Sprintf("model stream failed: %v", err), nil)
			return
		}

		if text := response.Text(); text != "" {
			err := e.store.AddMessage(ctx, &loom.Message{
				SessionID: sessionID,
				Role:      loom.RoleAssistant,
				Content:   text,
				StepIndex: step,
			})
			if err != nil {
				e.interrupt(sessionID, fmt.Sprintf("failed to persist assistant message: %v", err), nil)
				return
			}
		}
		msgs = append(msgs, response.Message)

		outputs, conflict, toolErr := e.dispatchTools(ctx, session, step, response.ToolCalls)
		if toolErr != nil {
			e.recordStep(sessionID, step, loom.ProgressFailed, toolErr.Error())
			e.publish(events.TopicStepFailed, sessionID, map[string]any{"step": step, "error": toolErr.Error()})
			e.interrupt(sessionID, fmt.Sprintf("tool dispatch failed: %v", toolErr), nil)
			return
		}

		e.recordStep(sessionID, step, loom.ProgressCompleted, "")
		e.publish(events.TopicStepCompleted, sessionID, map[string]any{"step": step})
		step++
		taken++

		if conflict != nil {
			e.interrupt(sessionID, conflict.Error(), map[string]any{
				"path":                conflict.Path,
				"conflicting_session": conflict.ConflictingSession,
			})
			return
		}

		// A terminal tool transitions the session through the manager; the
		// engine just observes that the status left doing.
		current, err := e.store.GetSession(ctx, sessionID)
		if err != nil {
			e.interrupt(sessionID, fmt.Sprintf("failed to reload session: %v", err), nil)
			return
		}
		if current.Status != loom.StatusDoing {
			e.complete(sessionID)
			return
		}

		if len(outputs) > 0 {
			msgs = append(msgs, llm.NewToolOutputMessage(outputs...))
			continue
		}

		switch response.StopReason {
		case llm.StopReasonStop:
			// Deliberate: the model finished its turn without calling
			// finish_work, so the session stays in doing and the gap is
			// surfaced through the progress log.
			e.logger.Info("stream ended without finish_work",
				"session_id", sessionID, "step", step)
			e.recordStep(sessionID, step, loom.ProgressPending,
				"model stopped without calling finish_work")
			e.complete(sessionID)
			return
		case llm.StopReasonToolUse:
			continue
		default:
			e.interrupt(sessionID, fmt.Sprintf("stream ended with reason %q", response.StopReason), nil)
			return
		}
	}
}

// loadHistory replays the persisted conversation into model messages.
// Tool-role records are skipped: tool results are re-derived from the model's
// own tool-call state during the run. Returns the next step index.
func (e *Engine) loadHistory(ctx context.Context, sessionID string) ([]*llm.Message, int, error) {
	stored, err := e.store.GetMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, 0, err
	}
	var msgs []*llm.Message
	step := 0
	for _, msg := range stored {
		if msg.StepIndex >= step {
			step = msg.StepIndex + 1
		}
		switch msg.Role {
		case loom.RoleUser:
			msgs = append(msgs, llm.NewUserMessage(msg.Content))
		case loom.RoleSystem:
			msgs = append(msgs, llm.NewSystemMessage(msg.Content))
		case loom.RoleAssistant:
			msgs = append(msgs, llm.NewAssistantMessage(msg.Content))
		}
	}
	return msgs, step, nil
}

// streamTurn opens one streaming model call and accumulates it into a
// complete response.
func (e *Engine) streamTurn(ctx context.Context, msgs []*llm.Message) (*llm.Response, error) {
	stream, err := e.client.Stream(ctx, &llm.Request{
		SystemPrompt: e.systemPrompt,
		Messages:     msgs,
		Tools:        e.toolDefs,
		MaxTokens:    e.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	acc := llm.NewResponseAccumulator()
	for {
		event, ok := stream.Next(ctx)
		if !ok {
			break
		}
		acc.AddEvent(event)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if !acc.Complete() {
		return nil, fmt.Errorf("stream ended without a stop event")
	}
	return acc.Response(), nil
}

// dispatchTools persists and executes the turn's tool calls in order. Each
// call is recorded as a tool-role message before execution and updated in
// place with its result. In-band tool failures flow back to the model; a
// lock conflict additionally interrupts the run, and a hard error aborts
// dispatch.
func (e *Engine) dispatchTools(ctx context.Context, session *loom.Session, step int, calls []*llm.ToolCall) ([]*llm.ToolOutput, *loom.LockConflictError, error) {
	var outputs []*llm.ToolOutput
	var conflict *loom.LockConflictError
	for _, call := range calls {
		payload, err := json.Marshal(call)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal tool call: %w", err)
		}
		record := &loom.Message{
			SessionID:  session.ID,
			Role:       loom.RoleTool,
			ToolCallID: call.ID,
			ToolCall:   payload,
			StepIndex:  step,
		}
		if err := e.store.AddMessage(ctx, record); err != nil {
			return nil, nil, fmt.Errorf("failed to persist tool call: %w", err)
		}

		result := e.callTool(ctx, session, step, call)
		resultPayload, err := json.Marshal(result)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal tool result: %w", err)
		}
		if err := e.store.UpdateMessageResult(ctx, record.ID, resultPayload); err != nil {
			return nil, nil, fmt.Errorf("failed to persist tool result: %w", err)
		}

		outputs = append(outputs, &llm.ToolOutput{
			ToolUseID: call.ID,
			Content:   result.Content,
			IsError:   result.IsError,
		})
		if result.LockConflict != nil && conflict == nil {
			conflict = result.LockConflict
		}
	}
	return outputs, conflict, nil
}

func (e *Engine) callTool(ctx context.Context, session *loom.Session, step int, call *llm.ToolCall) *loom.ToolResult {
	tool, ok := e.tools[call.Name]
	if !ok {
		return loom.NewToolResultError(fmt.Sprintf("unknown tool: %s", call.Name))
	}
	tc := &loom.ToolContext{
		SessionID:   session.ID,
		ProjectPath: session.ProjectPath,
		StepIndex:   step,
	}
	result, err := tool.Call(ctx, tc, call.Input)
	if err != nil {
		return loom.NewToolResultError(fmt.Sprintf("tool %s failed: %v", call.Name, err))
	}
	if result == nil {
		return loom.NewToolResultError(fmt.Sprintf("tool %s returned no result", call.Name))
	}
	return result
}

// interrupt moves the session to need_clarification with the failure reason
// recorded in its metadata.
func (e *Engine) interrupt(sessionID, reason string, extra map[string]any) {
	ctx := context.Background()
	meta := map[string]any{"interruption_reason": reason}
	for k, v := range extra {
		meta[k] = v
	}
	if err := e.transitioner.Transition(ctx, sessionID, loom.StatusNeedClarification, meta); err != nil {
		e.logger.Error("failed to transition session after interruption",
			"session_id", sessionID, "reason", reason, "error", err)
	}
	e.publish(events.TopicNeedsClarification, sessionID, map[string]any{"reason": reason})
	e.publish(events.TopicExecutionComplete, sessionID, nil)
}

// abort handles cancellation: the session moves to need_clarification and an
// aborted event is published instead of a completion.
func (e *Engine) abort(sessionID, reason string) {
	ctx := context.Background()
	meta := map[string]any{"interruption_reason": reason}
	if err := e.transitioner.Transition(ctx, sessionID, loom.StatusNeedClarification, meta); err != nil {
		e.logger.Error("failed to transition session after abort",
			"session_id", sessionID, "error", err)
	}
	e.publish(events.TopicExecutionAborted, sessionID, map[string]any{"reason": reason})
}

func (e *Engine) complete(sessionID string) {
	e.publish(events.TopicExecutionComplete, sessionID, nil)
}

// releaseLocks is the teardown backstop: whatever the run left behind is
// dropped here.
func (e *Engine) releaseLocks(sessionID string) {
	if err := e.arbiter.ReleaseAllForSession(context.Background(), sessionID); err != nil {
		e.logger.Warn("failed to release session locks on teardown",
			"session_id", sessionID, "error", err)
	}
}

func (e *Engine) recordStep(sessionID string, step int, status loom.ProgressStatus, details string) {
	err := e.store.AddProgress(context.Background(), &loom.ProgressEntry{
		SessionID: sessionID,
		Step:      fmt.Sprintf("step %d", step),
		Status:    status,
		Details:   details,
	})
	if err != nil {
		e.logger.Warn("failed to record step progress", "session_id", sessionID, "error", err)
	}
}

func (e *Engine) publish(topic events.Topic, sessionID string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{Topic: topic, SessionID: sessionID, Payload: payload})
}
