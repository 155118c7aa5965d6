// Command hedgebot routes new orders and hedges route fills by running
// the order and route rule sets against a trading gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/hedgerules/api"
	"github.com/liamcoop/hedgerules/automation"
	"github.com/liamcoop/hedgerules/gateway"
	"github.com/liamcoop/hedgerules/internal/logger"
	"github.com/liamcoop/hedgerules/internal/metrics"
	"github.com/liamcoop/hedgerules/journal"
	"github.com/liamcoop/hedgerules/refdata"
	"github.com/liamcoop/hedgerules/rules"
)

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := logger.Shutdown(ctx); shutdownErr != nil {
		fmt.Fprintln(os.Stderr, "logger shutdown:", shutdownErr)
	}

	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "hedgebot",
		Short:        "Route new orders and hedge fills with reactive rule sets",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := bindConfig(cmd)
			if err != nil {
				return err
			}
			s, err := loadSettings(v)
			if err != nil {
				logger.Error("invalid configuration", "error", err)
				return err
			}
			if s.LogLevel != "" {
				level, err := logger.ParseLevel(s.LogLevel)
				if err != nil {
					return err
				}
				logger.SetLevel(level)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, s)
		},
	}
	addFlags(cmd)
	return cmd
}

func loadRefData(s settings) (refdata.Lookup, error) {
	static, err := refdata.LoadStatic(s.RefDataFile)
	if err != nil {
		return nil, err
	}
	logger.Info("reference data loaded", "file", s.RefDataFile, "instruments", len(static.Instruments()))

	if s.RefDataTTL > 0 {
		return refdata.NewCached(refdata.NewFile(s.RefDataFile), refdata.CacheConfig{TTL: s.RefDataTTL}), nil
	}
	return static, nil
}

func openJournal(ctx context.Context, databaseURL string) (journal.Store, func(), error) {
	if databaseURL == "" {
		logger.Info("execution journal kept in memory")
		return journal.NewMemoryStore(10000), func() {}, nil
	}

	db, err := journal.Open(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("execution journal stored in postgres")
	return journal.NewPostgresStore(db), func() { db.Close() }, nil
}

// run wires the engine to the paper venue and serves the operator API
// until ctx is cancelled, then stops in order: HTTP, workers, engine.
func run(ctx context.Context, s settings) error {
	refs, err := loadRefData(s)
	if err != nil {
		return err
	}
	store, closeStore, err := openJournal(ctx, s.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	venue := gateway.NewSimulator()
	defer venue.Close()

	engine := rules.NewEngine()
	orch, err := automation.New(s.Automation, automation.Deps{
		Engine:    engine,
		Submitter: venue,
		Orders:    venue,
		RefData:   refs,
		Journal:   store,
		Metrics:   metrics.New(reg),
	})
	if err != nil {
		return err
	}

	venue.Subscribe(func(n gateway.Notification) {
		if err := orch.Enqueue(n); err != nil {
			logger.ForEntity(n.Entity.Key()).Warn("notification not queued", "type", n.Type, "error", err)
		}
	})

	httpServer := &http.Server{
		Addr:         s.Listen,
		Handler:      api.NewServer(engine, store, reg, api.WithPaperVenue(venue)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("hedgebot starting",
		"threshold", s.Automation.Threshold.String(),
		"hedge", s.Automation.HedgeTicker,
		"hedge_ratio", s.Automation.HedgeRatio.String(),
		"listen", s.Listen,
		"paper", s.Paper)

	g, gctx := errgroup.WithContext(ctx)

	// Workers drain on Stop rather than on cancellation.
	g.Go(func() error {
		return orch.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", "error", err)
		}
		orch.Stop()
		return nil
	})

	err = g.Wait()
	logger.Info("hedgebot stopped")
	return err
}
