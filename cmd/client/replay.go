package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bluff-sync/internal/config"
	"github.com/DoyleJ11/bluff-sync/internal/journal"
	"github.com/DoyleJ11/bluff-sync/internal/router"
)

// newReplayCmd rebuilds the mirror from a journaled session and prints the
// resulting snapshot. Nothing is sent to a game server.
func newReplayCmd(cfg *config.Config) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild game state offline from journaled frames.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if cfg.JournalDSN == "" {
				return errors.New("--journal-dsn is required")
			}
			if session == "" {
				return errors.New("--session is required")
			}
			log, err := newLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			j, err := journal.OpenPostgres(cfg.JournalDSN, log)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, j.Close()) }()

			frames, err := j.SessionFrames(cmd.Context(), session)
			if err != nil {
				return err
			}
			log.Info("replaying", zap.String("session", session), zap.Int("frames", len(frames)))

			snap := router.Replay(frames, cfg.SelfRefresh, log)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "journal session id to replay")
	return cmd
}
