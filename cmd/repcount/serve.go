package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ayusman/repcount/internal/app"
	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/feed"
	"github.com/ayusman/repcount/internal/plugin"
	"github.com/ayusman/repcount/internal/server"
	"github.com/ayusman/repcount/internal/store"
	"github.com/ayusman/repcount/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the event stream and the optional pose feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Stop everything on Ctrl-C or SIGTERM
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Initialize the store; an empty path runs without persistence
		var st *store.Store
		if cfg.Database.Path != "" {
			st, err = store.New(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer st.Close()
			log.WithField("path", st.Path()).Info("store opened")
		}

		// Build the session with the remembered or configured exercise
		sess, err := app.New(app.Config{
			Catalog:     exercise.NewCatalog(),
			Store:       st,
			Telemetry:   telemetry.NewManager("repcount", "", prometheus.DefaultRegisterer),
			ExerciseDir: cfg.Exercises.Dir,
			Exercise:    cfg.Exercises.Default,
			MaxFPS:      cfg.Feed.MaxFPS,
		})
		if err != nil {
			return err
		}

		// Hook plugins up to the session events
		if cfg.Plugins.Dir != "" {
			plugins := plugin.NewManager(cfg.Plugins.Dir)
			if err := plugins.Discover(); err != nil {
				return err
			}
			if len(plugins.List()) > 0 {
				events, unsubscribe := sess.Subscribe()
				defer unsubscribe()
				timeout := time.Duration(cfg.Plugins.TimeoutMs) * time.Millisecond
				go plugin.NewDispatcher(plugins, plugin.NewExecutor(timeout)).Run(ctx, events)
			}
		}

		// Start the pose estimator when one is configured. Without it frames
		// arrive through POST /api/frames only.
		if cfg.Feed.Command != "" {
			src := feed.NewProcess(cfg.Feed.Command, cfg.Feed.Args...)
			defer src.Close()
			go func() {
				if err := sess.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, feed.ErrClosed) {
					log.WithError(err).Error("pose feed stopped")
				}
			}()
		}

		// Find web directory
		staticDir := cfg.Server.StaticDir
		if staticDir == "" {
			staticDir = findWebDir()
		}
		if staticDir != "" {
			log.WithField("dir", staticDir).Info("serving static files")
		}

		// Configure and start server
		srv := server.New(server.Config{
			StaticDir: staticDir,
			Session:   sess,
			Gatherer:  prometheus.DefaultGatherer,
		})
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
