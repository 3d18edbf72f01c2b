package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/yanachan-dev/homepage/internal/config"
	"github.com/yanachan-dev/homepage/internal/errors"
	"github.com/yanachan-dev/homepage/internal/server"
	"github.com/yanachan-dev/homepage/internal/watch"
	"github.com/yanachan-dev/homepage/pkg/middleware"
	"github.com/yanachan-dev/homepage/pkg/swcache"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		origin     string
		watchFiles bool
		permission string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the caching dev server",
		Long: `Start the dev server in front of the site's origin.

Requests are answered from the active cache generation first and
fetched from the origin on a miss. When the origin is unreachable,
page requests fall back to the cached offline page.

Features:
  • Precache on start (install, then activate)
  • Control endpoints under /_sw and /_state
  • Live page connections on /_events
  • Asset watching with --watch

Examples:
  homepage serve
  homepage serve --origin=https://yanchan.example
  homepage serve --addr=:8080 --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Apply command-line overrides
			if addr != "" {
				cfg.Addr = addr
			}
			if origin != "" {
				cfg.Origin = origin
			}
			if watchFiles {
				cfg.Cache.Watch = true
			}
			return runServe(cfg, swcache.Permission(permission))
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default from config)")
	cmd.Flags().StringVarP(&origin, "origin", "o", "", "Origin to proxy (default from config)")
	cmd.Flags().BoolVarP(&watchFiles, "watch", "w", false, "Reinstall the cache when assets change")
	cmd.Flags().StringVar(&permission, "permission", string(swcache.PermissionDefault), "Notification permission assumed until a page reports one")

	return cmd
}

func runServe(cfg *config.Config, permission swcache.Permission) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	originURL, err := cfg.OriginURL()
	if err != nil {
		return err
	}
	manifest, err := cfg.Manifest()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpMetrics := middleware.NewMetrics(middleware.WithRegistry(registry))
	hub := server.NewHub(
		server.WithPermission(permission),
		server.WithHubLogger(logger),
		server.WithHubMetrics(httpMetrics),
	)
	derived := manifest.Version == ""
	if derived {
		// Install needs a version; the reinstaller replaces it below.
		manifest.Version = watch.DefaultPrefix + "-pending"
	}
	ctrl := swcache.New(originURL,
		swcache.WithStorage(a.caches),
		swcache.WithManifest(manifest),
		swcache.WithNotifier(hub),
		swcache.WithClients(hub),
		swcache.WithLogger(logger),
		swcache.WithMetrics(swcache.NewMetrics(swcache.WithRegistry(registry))),
		swcache.WithOfflinePage(cfg.Cache.OfflinePage),
	)

	var re *watch.Reinstaller
	if fi, err := os.Stat(cfg.AssetsPath()); err == nil && fi.IsDir() {
		re = watch.NewReinstaller(ctrl, os.DirFS(cfg.AssetsPath()), "", manifest)
		re.SetLogger(logger)
	} else if derived || cfg.Cache.Watch {
		warn("Asset directory %s not found; using version %s", cfg.AssetsPath(), manifest.Version)
	}

	printBanner()
	fmt.Println("  serve")
	fmt.Println()
	precache(ctx, ctrl, re, derived, logger)

	srv := server.New(server.Config{
		Controller:  ctrl,
		Store:       a.store,
		Hub:         hub,
		Reinstaller: re,
		Gatherer:    registry,
		Metrics:     httpMetrics,
		Logger:      logger,
	})

	if cfg.Cache.Watch && re != nil {
		w, err := watch.New(watch.Config{
			Paths:    []string{cfg.AssetsPath()},
			Debounce: cfg.DebounceDuration(),
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		w.OnChange(func(changes []watch.Change) {
			logger.Debug("assets changed", "files", len(changes))
			changed, err := re.Reinstall(ctx)
			if err != nil {
				logger.Warn("cache reinstall failed", "error", err)
				return
			}
			if changed {
				srv.NotifyReload(ctrl.ActiveVersion())
			}
		})
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher stopped", "error", err)
			}
		}()
		info("Watching %s", cfg.AssetsPath())
	}

	success("Serving %s on http://%s", originURL, cfg.Addr)
	info("Cache %s (%s)", ctrl.ActiveVersion(), ctrl.State())
	info("Press Ctrl+C to stop")
	fmt.Println()

	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
		return err
	}
	fmt.Println()
	success("Server stopped")
	return nil
}

// precache brings the controller to the active state. A failure is only
// reported: the server still proxies, and the install can be retried from
// /_sw/install.
func precache(ctx context.Context, ctrl *swcache.Controller, re *watch.Reinstaller, derived bool, logger *slog.Logger) {
	if re != nil && derived {
		if _, err := re.Reinstall(ctx); err != nil {
			warn("Precache failed: %v", err)
		}
		return
	}
	if err := ctrl.Install(ctx); err != nil {
		warn("Precache failed: %v", errors.New("E142").Wrap(err).FormatCompact())
		return
	}
	if err := ctrl.Activate(ctx); err != nil {
		logger.Warn("activate failed", "error", err)
	}
}
