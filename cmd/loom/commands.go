package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/sessions"
)

func newCreateCmd() *cobra.Command {
	var name, description, project, projectName, prompt string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new agent session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			sess, err := app.manager.CreateAgent(cmd.Context(), sessions.CreateAgentInput{
				Name:          name,
				Description:   description,
				ProjectPath:   project,
				ProjectName:   projectName,
				InitialPrompt: prompt,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created agent %s (%s) in %s\n", sess.ID, sess.Name, statusColor(sess.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "agent name")
	cmd.Flags().StringVar(&description, "description", "", "what this agent should do")
	cmd.Flags().StringVar(&project, "project", "", "project directory the agent works in")
	cmd.Flags().StringVar(&projectName, "project-name", "", "display name for the project")
	cmd.Flags().StringVar(&prompt, "prompt", "", "initial task prompt; moves the agent straight to todo")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newListCmd() *cobra.Command {
	var project, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			list, err := app.manager.ListAgents(cmd.Context(), project, loom.Status(status))
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No agents found.")
				return nil
			}
			for _, item := range list {
				fmt.Printf("%s  %-20s  %-18s  %d/%d steps  %s\n",
					item.ID,
					truncate(item.Name, 20),
					statusColor(item.Status),
					item.Progress.CompletedSteps,
					item.Progress.TotalSteps,
					item.UpdatedAt.Local().Format(time.DateTime),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "only agents of this project")
	cmd.Flags().StringVar(&status, "status", "", "only agents with this status")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			sess, err := app.manager.GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("ID:          %s\n", sess.ID)
			fmt.Printf("Name:        %s\n", sess.Name)
			fmt.Printf("Status:      %s\n", statusColor(sess.Status))
			fmt.Printf("Project:     %s\n", sess.ProjectPath)
			if sess.Description != "" {
				fmt.Printf("Description: %s\n", sess.Description)
			}
			fmt.Printf("Created:     %s\n", sess.CreatedAt.Local().Format(time.DateTime))
			if sess.StartedAt != nil {
				fmt.Printf("Started:     %s\n", sess.StartedAt.Local().Format(time.DateTime))
			}
			if sess.CompletedAt != nil {
				fmt.Printf("Completed:   %s\n", sess.CompletedAt.Local().Format(time.DateTime))
			}
			for key, value := range sess.Metadata {
				fmt.Printf("%s: %v\n", key, value)
			}
			return nil
		},
	}
}

func newMessagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <id>",
		Short: "Show an agent's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			msgs, err := app.manager.GetMessages(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, msg := range msgs {
				header := fmt.Sprintf("[%d] %s", msg.StepIndex, msg.Role)
				fmt.Println(color.New(color.Bold).Sprint(header))
				if msg.Content != "" {
					fmt.Println(msg.Content)
				}
				if len(msg.ToolCall) > 0 {
					fmt.Printf("tool call: %s\n", msg.ToolCall)
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "only the most recent N messages")
	return cmd
}

func newProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <id>",
		Short: "Show an agent's progress log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			entries, err := app.manager.GetProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, entry := range entries {
				line := fmt.Sprintf("%s  %-10s  %s",
					entry.CreatedAt.Local().Format(time.TimeOnly), entry.Status, entry.Step)
				if entry.Details != "" {
					line += "  (" + entry.Details + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newSayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <id> <message>",
		Short: "Send a user message to an agent",
		Long:  "Sends a user message. An agent waiting in ideas or need_clarification moves back to todo.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			content := strings.Join(args[1:], " ")
			if _, err := app.manager.AddMessage(cmd.Context(), args[0], loom.RoleUser, content); err != nil {
				return err
			}
			sess, err := app.manager.GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Message added; agent is now %s\n", statusColor(sess.Status))
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	var maxSteps int
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start an agent's autonomous execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			err = app.manager.StartAgent(cmd.Context(), args[0], sessions.StartAgentOptions{MaxSteps: maxSteps})
			if errors.Is(err, loom.ErrNoClient) {
				return fmt.Errorf("this build has no model client; embed the library with a streaming client to run agents")
			}
			if err != nil {
				return err
			}
			fmt.Printf("Agent %s started\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "override the step cap for this run")
	return cmd
}

func newStopCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Abort an agent's running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.manager.StopAgent(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			fmt.Printf("Agent %s stopped\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the run is being aborted")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an agent session and all its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := app.manager.DeleteAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Agent %s deleted\n", args[0])
			return nil
		},
	}
}

func newAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept an agent's reviewed changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decide(cmd, args[0], loom.StatusAccepted)
		},
	}
}

func newRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject an agent's reviewed changes and revert them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decide(cmd, args[0], loom.StatusRejected)
		},
	}
}

func decide(cmd *cobra.Command, id string, status loom.Status) error {
	app, cleanup, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	if err := app.manager.UpdateAgentStatus(cmd.Context(), id, status); err != nil {
		return err
	}
	fmt.Printf("Agent %s is now %s\n", id, statusColor(status))
	return nil
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <id>",
		Short: "Show an agent's pending changes as a unified diff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			diff, err := app.manager.GetSessionDiff(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(diff) == "" {
				fmt.Println("No pending changes.")
				return nil
			}
			fmt.Println(diff)
			return nil
		},
	}
}

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects with agent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			projects, err := app.manager.GetAllProjects(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("No projects found.")
				return nil
			}
			for _, project := range projects {
				running := ""
				if len(project.RunningAgents) > 0 {
					running = color.CyanString("  %d running", len(project.RunningAgents))
				}
				fmt.Printf("%-40s  %d agents  last active %s%s\n",
					truncate(project.ProjectPath, 40),
					project.AgentCount,
					project.LastActivity.Local().Format(time.DateTime),
					running,
				)
			}
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove projects with no recent agent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			removed, err := app.manager.CleanupInactiveProjects(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d inactive projects\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", sessions.DefaultCleanupDays, "inactivity threshold in days")
	return cmd
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max-1] + "…"
}
