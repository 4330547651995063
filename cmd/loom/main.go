// Command loom inspects and drives agent sessions from the terminal. It
// operates directly on the session database; model-driven execution requires
// an embedding application that supplies a streaming model client.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/config"
	"github.com/tessellate-ai/loom/events"
	"github.com/tessellate-ai/loom/log"
	"github.com/tessellate-ai/loom/sessions"
	"github.com/tessellate-ai/loom/store"
)

var (
	flagConfig   string
	flagDatabase string
	flagLogLevel string
)

func main() {
	root := &cobra.Command{
		Use:          "loom",
		Short:        "Manage autonomous coding agent sessions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&flagDatabase, "db", "", "path to the session database")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newShowCmd(),
		newMessagesCmd(),
		newProgressCmd(),
		newSayCmd(),
		newStartCmd(),
		newStopCmd(),
		newDeleteCmd(),
		newAcceptCmd(),
		newRejectCmd(),
		newDiffCmd(),
		newProjectsCmd(),
		newCleanupCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

// app bundles the wired components for one command invocation.
type app struct {
	manager *sessions.Manager
	store   *store.Store
}

func openApp(ctx context.Context) (*app, func(), error) {
	configPath := flagConfig
	if configPath == "" {
		if path, err := config.DefaultConfigPath(); err == nil {
			configPath = path
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	logger := log.New(log.LevelFromString(cfg.LogLevel))

	dbPath := flagDatabase
	if dbPath == "" {
		dbPath, err = cfg.DatabaseFile()
		if err != nil {
			return nil, nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	st, err := store.New(dbPath, store.DefaultOptions())
	if err != nil {
		return nil, nil, err
	}
	manager, err := sessions.New(sessions.Options{
		Store:          st,
		Bus:            events.NewBus(),
		Logger:         logger,
		MaxWorkers:     cfg.MaxConcurrent,
		MaxSteps:       cfg.MaxSteps,
		LockTTL:        cfg.LockTTL,
		CommonLockTTL:  cfg.CommonLockTTL,
		CommonPaths:    cfg.CommonPaths,
		IgnorePatterns: cfg.IgnorePatterns,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	cleanup := func() {
		manager.Close(ctx)
		st.Close()
	}
	return &app{manager: manager, store: st}, cleanup, nil
}

func statusColor(status loom.Status) string {
	switch status {
	case loom.StatusDoing:
		return color.CyanString(string(status))
	case loom.StatusReview:
		return color.YellowString(string(status))
	case loom.StatusAccepted:
		return color.GreenString(string(status))
	case loom.StatusRejected, loom.StatusNeedClarification:
		return color.RedString(string(status))
	default:
		return string(status)
	}
}
