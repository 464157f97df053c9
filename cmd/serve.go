package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/abhisek/ascend/internal/assessment"
	"github.com/abhisek/ascend/internal/config"
	"github.com/abhisek/ascend/internal/content"
	"github.com/abhisek/ascend/internal/identity"
	"github.com/abhisek/ascend/internal/keylock"
	"github.com/abhisek/ascend/internal/llm"
	"github.com/abhisek/ascend/internal/logger"
	"github.com/abhisek/ascend/internal/server"
	"github.com/abhisek/ascend/internal/session"
	"github.com/abhisek/ascend/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assessment API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
}

// serve wires the service from cfg and runs it until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.Log.Options())
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	provider, err := llm.NewProvider(ctx, cfg.LLM, st.EventRepo(), log)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}

	locks, closeLocks, err := newLocker(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer closeLocks()

	verifier, err := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	tracker := session.NewTracker(st, cfg.Assessment.RecentQuestions, log)
	orch := assessment.New(st, content.NewLLMProvider(provider, cfg.Content), tracker, locks, cfg.Assessment, log)

	if !strings.EqualFold(cfg.Log.Mode, "dev") {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(server.Deps{Store: st, Assessment: orch, Verifier: verifier, Log: log})

	log.Info("starting", "version", version, "db", cfg.DBPath, "llm_provider", cfg.LLM.Provider,
		"distributed_locks", cfg.Redis.URL != "")
	return srv.Run(ctx, cfg.HTTP)
}

// newLocker returns a Redis-backed lock when a URL is configured, so
// several instances can share one database, and an in-process lock
// otherwise.
func newLocker(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (keylock.Locker, func(), error) {
	if cfg.URL == "" {
		return keylock.NewLocal(), func() {}, nil
	}
	rdb, err := keylock.Dial(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	locks := keylock.NewRedis(rdb, keylock.RedisOptions{TTL: cfg.LockTTL}, log)
	return locks, func() { _ = rdb.Close() }, nil
}
