package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vango-dev/devserve/internal/config"
	"github.com/vango-dev/devserve/internal/dev"
	"github.com/vango-dev/devserve/internal/mount"
)

type serveFlags struct {
	skipWatch  bool
	silent     bool
	configFile string
	root       string
	fallback   string
	debounce   time.Duration
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "devserve [port] [prefix:target ...]",
		Short: "Serve static files with live reload",
		Long: `devserve serves the current directory over HTTP for local development.

Extra directories or single files can be mounted at URL prefixes. Unknown
paths under the root fall back to index.html so client-side routers work.
While watching, browsers reload whenever a file under the root changes.

Environment:
  SKIP_WATCH=1|true   disable the watcher and live reload
  SILENT=1|true       suppress the banner and informational logs

Examples:
  devserve
  devserve 3000
  devserve 3000 /assets:../shared/assets /app.html:build/app.html`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags, args, os.Getenv)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	flags.register(cmd)

	return cmd
}

func (f *serveFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.skipWatch, "skip-watch", false, "Disable file watching and live reload")
	cmd.Flags().BoolVar(&f.silent, "silent", false, "Suppress the banner and informational logs")
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Config file (default ./"+config.ConfigFileName+" if present)")
	cmd.Flags().StringVarP(&f.root, "root", "r", "", "Directory served at / and watched (default .)")
	cmd.Flags().StringVar(&f.fallback, "fallback", "", "SPA fallback document under the root (default "+mount.DefaultFallback+")")
	cmd.Flags().DurationVar(&f.debounce, "debounce", 0, "Window in which file changes are merged into one reload")
}

// loadConfig resolves the configuration. Flags set on the command line
// override the environment, which overrides args and the config file.
func loadConfig(cmd *cobra.Command, flags serveFlags, args []string, getenv func(string) string) (*config.Config, error) {
	if err := config.LoadDotEnv(config.DotEnvFileName); err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.Options{
		Args:       args,
		Getenv:     getenv,
		ConfigFile: flags.configFile,
	})
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("skip-watch") {
		cfg.Watch = !flags.skipWatch
	}
	if changed("silent") {
		cfg.Silent = flags.silent
	}
	if changed("root") {
		cfg.Root = flags.root
	}
	if changed("fallback") {
		cfg.Fallback = flags.fallback
	}
	if changed("debounce") {
		cfg.Debounce = flags.debounce
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cfg *config.Config) error {
	level := slog.LevelInfo
	if cfg.Silent {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if !cfg.Silent {
		printStartup(cfg)
	}

	server := dev.NewServer(dev.ServerOptions{
		Config: cfg,
		Logger: logger,
		OnReload: func(clients int) {
			if !cfg.Silent {
				success("Reloaded %d browsers", clients)
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		if !cfg.Silent {
			fmt.Println("\n  Shutting down...")
		}
	}()

	return server.Start(ctx)
}

// printStartup prints the banner followed by the route table.
func printStartup(cfg *config.Config) {
	printBanner()
	fmt.Println()

	for _, m := range cfg.Table().Mounts() {
		line := fmt.Sprintf("%-16s → %s", m.Prefix, m.Target)
		if m.Kind == mount.File {
			line += color.HiBlackString(" (file)")
		}
		if m.Fallback != "" {
			line += color.HiBlackString(" (fallback %s)", m.Fallback)
		}
		info("%s", line)
	}
	fmt.Println()

	success("Serving at %s", color.CyanString(cfg.URL()))
	if cfg.Watch {
		info("Watching %s for changes", cfg.Root)
	} else {
		warn("Live reload disabled")
	}
	if cfg.File != "" {
		info("Loaded %s", cfg.File)
	}
	fmt.Println()
}
