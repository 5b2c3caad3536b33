package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vowser/controlhub/internal/config"
	"github.com/vowser/controlhub/internal/control"
	"github.com/vowser/controlhub/internal/lifecycle"
	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/mcp"
	"github.com/vowser/controlhub/internal/scheduler"
	"github.com/vowser/controlhub/internal/server"
	"github.com/vowser/controlhub/internal/tools"
	"github.com/vowser/controlhub/internal/upstream"
)

// ServeCmd creates the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the control hub",
		Long:  `Start the HTTP and WebSocket server, the upstream link, and the maintenance scheduler.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func linkOptions(c config.Config) upstream.Options {
	return upstream.Options{
		URL:            c.Upstream.URL,
		ReconnectDelay: c.Upstream.ReconnectDelay.Std(),
		RequestTimeout: c.Upstream.RequestTimeout.Std(),
		ConnectTimeout: c.Upstream.ConnectTimeout.Std(),
		WriteTimeout:   c.Upstream.WriteTimeout.Std(),
		ShutdownGrace:  c.Upstream.ShutdownGrace.Std(),
		SearchLimit:    c.Upstream.SearchLimit,
	}
}

// runServe runs until SIGINT/SIGTERM, then stops the HTTP server, the
// scheduler and the upstream link in that order.
func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := *ServerConfig

	svc := control.NewService()
	defer svc.Close()
	registry := tools.NewRegistry(tools.BrowserTools(svc)...)
	link := upstream.NewLink(linkOptions(c), svc)

	opts := server.Options{
		Config:   c,
		Control:  svc,
		Tools:    registry,
		Upstream: link,
		Quiet:    !verbose,
	}
	if c.MCP.Enabled {
		opts.MCP = mcp.NewServer(registry, AppVersion).Handler()
	}

	var sched *scheduler.Scheduler
	if c.Maintenance.CleanupSchedule != "" {
		s, err := scheduler.New(link, c.Maintenance.CleanupSchedule, c.Upstream.RequestTimeout.Std())
		if err != nil {
			return err
		}
		sched = s
	}

	lifecycle.OnShutdown(svc.Close)
	lifecycle.OnUpstreamDisconnected(func(url string) {
		logging.Warnf("[Server] upstream %s unavailable, path requests will fail until it reconnects", url)
	})

	logging.Infof("[Server] controlhub %s starting: control=%s upstream=%s", AppVersion, c.Control.Path, c.Upstream.URL)
	link.Connect()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Run(gctx, opts); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lifecycle.Emit(lifecycle.EventShutdownStarted, nil)
		return nil
	})
	if cfgFile != "" {
		g.Go(func() error {
			return config.Watch(gctx, baseConfig, cfgFile, func(next config.Config) {
				if verbose {
					return
				}
				if err := logging.SetLevel(next.Log.Level); err != nil {
					logging.Warnf("[Config] %v", err)
				}
			})
		})
	}

	schedCtx, stopSched := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	if sched != nil {
		go func() {
			defer close(schedDone)
			sched.Run(schedCtx)
		}()
	} else {
		close(schedDone)
	}

	err := g.Wait()

	logging.Info("[Shutdown] stopping scheduler")
	stopSched()
	<-schedDone

	logging.Info("[Shutdown] disconnecting upstream")
	link.Disconnect()

	lifecycle.Emit(lifecycle.EventShutdownComplete, nil)
	logging.Info("[Shutdown] controlhub stopped")
	return err
}
