package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/keshon/ccview/internal/cache"
	"github.com/keshon/ccview/internal/cli"
	"github.com/keshon/ccview/internal/policy"
)

// CleanCommand applies the retention policy to the cache.
type CleanCommand struct{}

func (c *CleanCommand) Name() string               { return "clean" }
func (c *CleanCommand) Aliases() []string          { return nil }
func (c *CleanCommand) Usage() string              { return "clean" }
func (c *CleanCommand) Brief() string              { return "Remove cache entries that are no longer needed" }
func (c *CleanCommand) Subcommands() []cli.Command { return nil }

func (c *CleanCommand) Help() string {
	return `Remove leftover temp files and old cache entries.

With cache.keep_latest set (the default) the newest entry of every path is
kept. --all removes every generation of every root.`
}

func (c *CleanCommand) Flags(fs *pflag.FlagSet) {
	fs.Bool("all", false, "remove everything")
}

func (c *CleanCommand) Run(ctx *cli.Context) error {
	all, _ := ctx.Flags.GetBool("all")
	store := ctx.Cache()

	if !all {
		n, err := store.Cleanup()
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.Out, "removed %d entries\n", n)
		return nil
	}

	gens, err := store.Generations()
	if err != nil {
		return err
	}
	n, err := store.Clear()
	if err != nil {
		return err
	}
	for _, g := range gens {
		fmt.Fprintf(ctx.Out, "removed generation %s %s\n", describe(g), g.Dir)
	}
	fmt.Fprintf(ctx.Out, "removed %d entries\n", n)
	return nil
}

// ListCommand prints the generations in the cache.
type ListCommand struct{}

func (c *ListCommand) Name() string               { return "list" }
func (c *ListCommand) Aliases() []string          { return []string{"ls"} }
func (c *ListCommand) Usage() string              { return "list" }
func (c *ListCommand) Brief() string              { return "List cache generations" }
func (c *ListCommand) Help() string               { return "List the generation directories of the cache with their root and policy fingerprint." }
func (c *ListCommand) Subcommands() []cli.Command { return nil }
func (c *ListCommand) Flags(fs *pflag.FlagSet)    {}

func (c *ListCommand) Run(ctx *cli.Context) error {
	gens, err := ctx.Cache().Generations()
	if err != nil {
		return err
	}
	if len(gens) == 0 {
		fmt.Fprintln(ctx.Out, "(cache is empty)")
		return nil
	}
	for _, g := range gens {
		fmt.Fprintf(ctx.Out, "%s %s\n", describe(g), g.Dir)
	}
	return nil
}

func describe(g cache.Generation) string {
	if g.Root == "" {
		return "(unknown)"
	}
	return fmt.Sprintf("%s@%s (%s)", g.Root, g.Fingerprint, g.Created.Format(time.RFC3339))
}

// WatchCommand keeps the cache in step with the policy file.
type WatchCommand struct{}

func (c *WatchCommand) Name() string               { return "watch" }
func (c *WatchCommand) Aliases() []string          { return nil }
func (c *WatchCommand) Usage() string              { return "watch" }
func (c *WatchCommand) Brief() string              { return "Invalidate cached snapshots when the policy file changes" }
func (c *WatchCommand) Subcommands() []cli.Command { return nil }

func (c *WatchCommand) Help() string {
	return `Watch the policy file until interrupted.

Every time the file compiles to different rules, older cache generations of
the root are removed. With --metrics-addr (or metrics.addr) the cache metrics
are served at /metrics.`
}

func (c *WatchCommand) Flags(fs *pflag.FlagSet) {
	fs.String("metrics-addr", "", "listen address for /metrics")
}

func (c *WatchCommand) Run(ctx *cli.Context) error {
	if ctx.Settings.PolicyFile == "" {
		return cli.ErrNoPolicy
	}
	store, err := ctx.Environment()
	if err != nil {
		return err
	}
	addr, _ := ctx.Flags.GetString("metrics-addr")
	if addr == "" {
		addr = ctx.Settings.MetricsAddr
	}

	w, err := cache.NewWatcher(ctx.Cache(), ctx.Settings.PolicyFile, ctx.RootID(store), func(p *policy.Policy) {
		ctx.Logger.Info("policy reloaded", "fingerprint", p.Fingerprint(), "rules", len(p.Rules))
	}, ctx.PolicyOptions()...)
	if err != nil {
		return err
	}
	defer w.Close()

	if addr != "" {
		srv := metricsServer(addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				ctx.Logger.Error("metrics server stopped", "addr", addr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		ctx.Logger.Info("serving metrics", "addr", addr)
	}

	ctx.Logger.Info("watching policy", "file", ctx.Settings.PolicyFile, "root", w.Root().ID, "fingerprint", w.Root().Fingerprint)
	w.Run(ctx.Ctx)
	return nil
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(cli.Registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func init() {
	cli.RegisterCommand(cli.NewGroup("cache", "Manage the snapshot cache", "Inspect, clean and watch the snapshot cache.",
		cli.ApplyMiddlewares(&CleanCommand{}, cli.WithDebugArgs()),
		&ListCommand{},
		cli.ApplyMiddlewares(&WatchCommand{}, cli.WithDebugArgs()),
	))
}
