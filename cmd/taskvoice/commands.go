package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/taskvoice/pkg/journal"
)

func newRootCmd(deps appDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "taskvoice",
		Short:         "Voice and text task agent over WebSocket",
		Long:          "taskvoice serves /connect sessions that turn spoken or typed requests into scripts run against a Todoist account.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := newServeCmd(deps)
	root.RunE = serve.RunE

	root.AddCommand(
		serve,
		newContextCmd(deps),
		newTurnsCmd(deps),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(deps appDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := deps.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)
			return runServe(cmd.Context(), cfg, logger, deps)
		},
	}
}

func newContextCmd(deps appDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Sync once and print the task overview sent to the model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := deps.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)
			client, err := deps.newTaskClient(cfg, logger, nil)
			if err != nil {
				return err
			}
			text, err := client.FetchContext(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch context: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
}

func newTurnsCmd(deps appDeps) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "turns",
		Short: "List recent journaled turns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := deps.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("TASKVOICE_DATABASE_URL is not set")
			}
			j, err := deps.openJournal(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list turns: %w", err)
			}
			for _, e := range entries {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), formatTurn(e)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of turns to show")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

func formatTurn(e journal.Entry) string {
	return fmt.Sprintf("%s  %s #%d  %q -> %q",
		e.FinishedAt.UTC().Format(time.RFC3339), e.SessionID, e.Turn, e.Transcript, e.Summary)
}
