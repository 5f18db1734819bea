package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bluff-sync/internal/commands"
	"github.com/DoyleJ11/bluff-sync/internal/config"
	"github.com/DoyleJ11/bluff-sync/internal/conn"
	"github.com/DoyleJ11/bluff-sync/internal/httpapi"
	"github.com/DoyleJ11/bluff-sync/internal/journal"
	"github.com/DoyleJ11/bluff-sync/internal/mirror"
	"github.com/DoyleJ11/bluff-sync/internal/notify"
	"github.com/DoyleJ11/bluff-sync/internal/pending"
	"github.com/DoyleJ11/bluff-sync/internal/router"
)

func newCmd() *cobra.Command {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:   "bluff-client",
		Short: "Connects to a bluff game server and keeps a live copy of the game.",
		Args:  cobra.ExactArgs(0),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return run(cmd.Context(), cfg, log)
		},
		Version: releaseVersion,
	}

	config.Register(cmd.PersistentFlags(), cfg)
	cmd.AddCommand(newReplayCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// run wires the sync layer, connects, and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) (err error) {
	notifier := notify.NewLog(log)
	m := mirror.New(log)
	table := pending.NewTable(ctx, log)

	opts := []router.Option{router.WithSelfRefresh(cfg.SelfRefresh)}
	if cfg.JournalDSN != "" {
		j, jerr := journal.OpenPostgres(cfg.JournalDSN, log)
		if jerr != nil {
			return jerr
		}
		defer func() { err = multierr.Append(err, j.Close()) }()
		log.Info("journaling inbound frames", zap.String("session", j.Session()))
		opts = append(opts, router.WithJournal(j))
	}
	r := router.New(ctx, m, table, notifier, log, opts...)

	mgr := conn.NewManager(ctx, conn.Options{
		Server:       cfg.Server,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, r, notifier, log)
	mgr.SetServerOverride(cfg.ServerOverride)
	sender := commands.NewSender(mgr, table, notifier, cfg.RequestTimeout, log)

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.SetupRoutes(httpapi.Deps{Mirror: m, Conn: mgr, Sender: sender, Log: log}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("listening", zap.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server stopped", zap.Error(err))
			}
		}()
	}

	if err := mgr.Connect(ctx); err != nil {
		// The inspection API can still trigger a reconnect.
		log.Warn("initial connect failed", zap.Error(err))
	} else {
		login(ctx, cfg, sender, log)
		if call, err := sender.GetGameState(commands.Quiet()); err == nil {
			_ = call.Wait(ctx)
		}
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if srv != nil {
		err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	}
	err = multierr.Append(err, mgr.Close())
	r.Shutdown()
	table.Shutdown()
	return err
}

func login(ctx context.Context, cfg *config.Config, s *commands.Sender, log *zap.Logger) {
	var (
		call *pending.Call
		err  error
	)
	switch {
	case cfg.PlayerName != "":
		call, err = commands.NewPlayer(s).Login(cfg.PlayerName)
	case cfg.OrganizerPassword != "":
		call, err = commands.NewOrganizer(s).Login(cfg.OrganizerPassword)
	default:
		return
	}
	if err == nil {
		err = call.Wait(ctx)
	}
	if err != nil {
		log.Warn("automatic login failed", zap.Error(err))
	}
}
