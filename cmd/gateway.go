package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/bus"
	"github.com/nextlevelbuilder/pairlink/internal/config"
	"github.com/nextlevelbuilder/pairlink/internal/cron"
	"github.com/nextlevelbuilder/pairlink/internal/gateway"
	"github.com/nextlevelbuilder/pairlink/internal/gateway/methods"
	"github.com/nextlevelbuilder/pairlink/internal/pairing"
	"github.com/nextlevelbuilder/pairlink/internal/store"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the pairing gateway (websocket server)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway()
		},
	}
}

func runGateway() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer stores.Close()

	reg := pairing.NewRegistry(pairingConfig(cfg))
	reg.SetHistory(stores.History)

	if exp := initOTelExporter(ctx, cfg, reg); exp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := exp.Shutdown(shutdownCtx); err != nil {
				slog.Warn("OTel exporter shutdown failed", "error", err)
			}
		}()
	}

	if cfg.Redis.Addr != "" {
		mirror, err := bus.NewRedisMirror(ctx, bus.RedisMirrorConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			slog.Warn("redis status mirror disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer mirror.Close()
			reg.SetMirror(pairing.MirrorFunc(func(v pairing.View) {
				mirror.Publish(v.ID.String(), v)
			}))
		}
	}

	decision := pairing.NewDecisionGateway(reg, stores.Libraries)
	feed := pairing.NewSyncProgressFeed(reg, stores.Libraries)
	inbox := pairing.NewPeerInbox(reg, feed, cfg.Pairing.DedupeTTL.Std(), cfg.Pairing.DedupeMax)

	srv := gateway.NewServer(cfg.Gateway, Version)
	pm := methods.NewPairingMethods(reg, decision, feed, inbox)
	pm.SetHistory(stores.History)
	pm.Register(srv.Router())
	methods.NewLibrariesMethods(decision, stores.Libraries).Register(srv.Router())

	if pruner := startPruner(ctx, cfg, stores.History); pruner != nil {
		defer pruner.Stop()
	}

	if _, err := os.Stat(config.ExpandHome(cfgPath)); err == nil {
		if w, err := config.NewWatcher(cfgPath); err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			w.OnChange(func(c *config.Config) {
				reg.SetTimeouts(pairingTimeouts(c))
			})
			if err := w.Start(); err != nil {
				slog.Warn("config hot reload disabled", "error", err)
			} else {
				defer w.Stop()
			}
		}
	}

	serveErr := srv.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := reg.Shutdown(shutdownCtx); err != nil {
		slog.Warn("pairing registry shutdown", "error", err)
	}
	slog.Info("gateway stopped")
	return serveErr
}

func pairingTimeouts(cfg *config.Config) pairing.Timeouts {
	return pairing.Timeouts{
		Connect: cfg.Pairing.ConnectTimeout.Std(),
		Request: cfg.Pairing.RequestTimeout.Std(),
	}
}

func pairingConfig(cfg *config.Config) pairing.Config {
	pc := pairing.DefaultConfig()
	pc.Timeouts = pairingTimeouts(cfg)
	if cfg.Pairing.SubscriberQueue > 0 {
		pc.SubscriberQueue = cfg.Pairing.SubscriberQueue
	}
	if cfg.Pairing.RetiredTTL > 0 {
		pc.RetiredTTL = cfg.Pairing.RetiredTTL.Std()
	}
	if cfg.Pairing.RetiredMax > 0 {
		pc.RetiredMax = cfg.Pairing.RetiredMax
	}
	return pc
}

func startPruner(ctx context.Context, cfg *config.Config, history store.HistoryStore) *cron.Pruner {
	if cfg.History.RetentionDays <= 0 {
		return nil
	}
	retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
	p, err := cron.NewPruner(cfg.History.PruneSchedule, retention, history.PruneBefore)
	if err != nil {
		slog.Warn("history pruning disabled", "error", err)
		return nil
	}
	p.Start(ctx)
	return p
}
