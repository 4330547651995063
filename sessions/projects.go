package sessions

import (
	"context"
	"fmt"

	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/toolkit"
)

// DefaultCleanupDays is the inactivity window for project cleanup.
const DefaultCleanupDays = 30

// ProjectAgentSummary aggregates the agents of one project.
type ProjectAgentSummary struct {
	ProjectPath    string              `json:"project_path"`
	Total          int                 `json:"total"`
	ByStatus       map[loom.Status]int `json:"by_status"`
	Running        []string            `json:"running"`
	RecentActivity []*loom.Session     `json:"recent_activity"`
}

// ConflictReport is the result of a file conflict preflight.
type ConflictReport struct {
	Conflicts   []string `json:"conflicts"`
	CanProceed  bool     `json:"can_proceed"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// GetProjectAgentSummary aggregates the sessions of one project: totals per
// status, currently running ids and the most recently active sessions.
func (m *Manager) GetProjectAgentSummary(ctx context.Context, projectPath string) (*ProjectAgentSummary, error) {
	canonical, err := canonicalPath(projectPath)
	if err != nil {
		return nil, fmt.Errorf("invalid project path: %w", err)
	}
	list, err := m.ListAgents(ctx, canonical, "")
	if err != nil {
		return nil, err
	}
	summary := &ProjectAgentSummary{
		ProjectPath: canonical,
		Total:       len(list),
		ByStatus:    make(map[loom.Status]int),
	}
	for _, item := range list {
		summary.ByStatus[item.Status]++
		if item.Status == loom.StatusDoing {
			summary.Running = append(summary.Running, item.ID)
		}
		if len(summary.RecentActivity) < 5 {
			sess := item.Session
			summary.RecentActivity = append(summary.RecentActivity, &sess)
		}
	}
	return summary, nil
}

// GetAllProjects returns per-project aggregates, newest activity first.
func (m *Manager) GetAllProjects(ctx context.Context) ([]*loom.ProjectSummary, error) {
	return m.store.ListProjectSummaries(ctx)
}

// SwitchProject returns the agents of the target project so the caller can
// render it as current. The core keeps no notion of an active project; the
// switch is purely a query.
func (m *Manager) SwitchProject(ctx context.Context, projectPath string) ([]*loom.SessionSummary, error) {
	canonical, err := canonicalPath(projectPath)
	if err != nil {
		return nil, fmt.Errorf("invalid project path: %w", err)
	}
	return m.ListAgents(ctx, canonical, "")
}

// CleanupInactiveProjects removes projects whose latest activity is older
// than the given number of days, skipping any with running sessions. Returns
// the number of projects removed.
func (m *Manager) CleanupInactiveProjects(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		days = DefaultCleanupDays
	}
	return m.store.DeleteInactiveProjects(ctx, days)
}

// CheckFileConflicts runs a read-only lock preflight for the given paths.
// Paths are resolved against the session's project root exactly as the tools
// resolve them, so the preflight answers for the same lock keys the tools
// will contend on.
func (m *Manager) CheckFileConflicts(ctx context.Context, id string, paths []string) (*ConflictReport, error) {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	resolved := make([]string, 0, len(paths))
	for _, path := range paths {
		p, err := toolkit.ResolveWithin(sess.ProjectPath, path)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, p)
	}
	conflicts, err := m.arbiter.Conflicts(ctx, id, resolved)
	if err != nil {
		return nil, err
	}
	report := &ConflictReport{
		Conflicts:  conflicts,
		CanProceed: len(conflicts) == 0,
	}
	if len(conflicts) > 0 {
		report.Suggestions = []string{
			"wait for the conflicting sessions to finish or for their locks to expire",
			"scope this agent to different files",
		}
	}
	return report, nil
}
