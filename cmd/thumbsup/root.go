package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/emilythestrangee/thumbsup/internal/config"
	"github.com/emilythestrangee/thumbsup/internal/database"
	"github.com/emilythestrangee/thumbsup/internal/logger"
	"github.com/emilythestrangee/thumbsup/internal/metrics"
	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

var Version string

const (
	configF   = "config"
	logLevelF = "log-level"
	portF     = "port"
	dbDSNF    = "db-dsn"

	configFlagUsage   = "The yaml configuration file."
	logLevelFlagUsage = "Log level: debug, info, warn or error."
	portFlagUsage     = "The port the HTTP API listens on."
	dbDSNFlagUsage    = "Postgres connection string. Overrides the DB_* settings."
)

var cfgFile string

// NewCmd builds the command tree. releaseSignals, when set, undoes the
// caller's signal handling and is called as the server begins shutting down.
func NewCmd(releaseSignals func()) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "thumbsup [command]",
		Short:         "Vote ledger and aggregation service.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, configF, "", configFlagUsage)
	rootCmd.PersistentFlags().String(logLevelF, "info", logLevelFlagUsage)
	rootCmd.PersistentFlags().String(dbDSNF, "", dbDSNFlagUsage)

	rootCmd.AddCommand(serveCmd(releaseSignals), migrateCmd(), reconcileCmd())
	return rootCmd
}

// app holds everything a subcommand needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      database.Service
	store   *database.Store
	service *votes.Service
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
	_ = a.log.Sync()
}

// counterRegistry lists the voteable kinds that keep a counter cache.
func counterRegistry() (*votes.Registry, error) {
	return votes.NewRegistry(
		votes.CounterColumn{Kind: models.PostKind, Column: "vote_count", Mode: votes.CounterSum},
		votes.CounterColumn{Kind: models.CommentKind, Column: "votes_count", Mode: votes.CounterCount},
	)
}

// bootstrap loads configuration and opens the database. m may be nil.
func bootstrap(flags *pflag.FlagSet, m *metrics.Votes) (*app, error) {
	cfg, err := config.Load(cfgFile, flags)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := database.New(cfg.DB, log)
	if err != nil {
		return nil, err
	}
	store, err := database.NewStore(db.GetDB(), log.Named("ledger"), database.DefaultKinds()...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	registry, err := counterRegistry()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		store:   store,
		service: votes.NewService(store, registry, log.Named("votes"), m),
	}, nil
}
