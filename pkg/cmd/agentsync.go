package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/askui/askui-runner/pkg/config"
	"github.com/askui/askui-runner/pkg/filesync"
	"github.com/askui/askui-runner/pkg/logger"
)

func newAgentCommand(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Commands that operate on the user's local agents directory",
	}
	cmd.AddCommand(newAgentSyncCommand(cfgFile))
	return cmd
}

// newAgentSyncCommand implements `agent sync <down|up> [--dry] [--delete]`
// (spec.md §6), grounded on the original's FileService.sync
// (modules/agents/file_service.py): local dir is
// `<local_storage_base_dir>/Workspaces/<workspace_id>/Agents`, remote dir is
// `workspaces/<workspace_id>/agents`. "down" treats remote as the source of
// truth (pull), "up" treats local as the source of truth (push).
func newAgentSyncCommand(cfgFile *string) *cobra.Command {
	var dry bool
	var delete bool

	cmd := &cobra.Command{
		Use:       "sync <down|up>",
		Short:     "Sync the local agents directory against the remote agents store",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"down", "up"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := args[0]
			if direction != "down" && direction != "up" {
				return fmt.Errorf("direction must be %q or %q, got %q", "down", "up", direction)
			}

			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Agents == nil {
				return fmt.Errorf("agents config is required for agent sync")
			}

			log, err := logger.New(logger.Config{Level: cfg.LogLevel})
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}

			baseURL := cfg.Agents.Sync.BaseURL
			if baseURL == "" {
				baseURL = config.DefaultAgentsFilesBaseURL
			}
			localBaseDir := cfg.Agents.Sync.LocalStorageBaseDir
			if localBaseDir == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("resolving home directory: %w", err)
				}
				localBaseDir = filepath.Join(home, ".askui")
			}

			workspaceID := cfg.Agents.Credentials.WorkspaceID
			localDir := filepath.Join(localBaseDir, "Workspaces", workspaceID, "Agents")
			remoteDir := fmt.Sprintf("workspaces/%s/agents", workspaceID)

			client, err := filesync.New(log, baseURL, cfg.Agents.Credentials.AuthHeader(), nil)
			if err != nil {
				return fmt.Errorf("building file-sync client: %w", err)
			}

			sourceOfTruth := filesync.SourceOfTruthRemote
			if direction == "up" {
				sourceOfTruth = filesync.SourceOfTruthLocal
			}

			syncer := filesync.NewSyncer(log, client)
			return syncer.Sync(cmd.Context(), localDir, remoteDir, filesync.SyncOptions{
				SourceOfTruth: sourceOfTruth,
				Dry:           dry,
				Delete:        delete,
			})
		},
	}

	cmd.Flags().BoolVar(&dry, "dry", false, "report what would change without mutating anything")
	cmd.Flags().BoolVar(&delete, "delete", false, "remove files missing from the source-of-truth side")
	return cmd
}
