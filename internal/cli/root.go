package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keshon/ccview/internal/config"
	"github.com/keshon/ccview/internal/fs"
	"github.com/keshon/ccview/internal/logging"
)

// state is filled by the root command before any subcommand runs.
type state struct {
	settings config.Settings
	logger   *slog.Logger
}

// NewRootCommand builds the command tree of every registered command. Flags
// and CCVIEW_* variables are read through v.
func NewRootCommand(v *viper.Viper, out, errOut io.Writer) *cobra.Command {
	st := &state{}
	var cfgFile string

	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Resolve config-spec views and cache their snapshots",
		Long: `ccview applies a ClearCase-style selection policy to a branching version
history, resolves single elements or whole trees at a point in time, and keeps
a cache of resolved snapshots that is updated incrementally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			used, err := config.ReadConfig(v, fs.NewOSFS(), cfgFile)
			if err != nil {
				return err
			}
			st.settings, err = config.Load(v)
			if err != nil {
				return err
			}
			st.logger = logging.Setup(st.settings.LogLevel, st.settings.LogFormat, errOut)
			if used != "" {
				st.logger.Debug("using config file", "file", used)
			}
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is the nearest "+config.ConfigFileName+")")
	pf.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	pf.String("log-format", config.DefaultLogFormat, "log format: text or json")
	pf.String("fixture", "", "YAML description of the version store")
	pf.String("cache-dir", "", "snapshot cache directory")
	pf.String("policy", "", "policy file")
	pf.String("stream", "", "stream whose baselines bound the view")
	pf.StringSlice("baseline", nil, "baseline labels of the stream")
	bind := map[string]string{
		config.KeyLogLevel:      "log-level",
		config.KeyLogFormat:     "log-format",
		config.KeyFixturePath:   "fixture",
		config.KeyCacheDir:      "cache-dir",
		config.KeyViewPolicy:    "policy",
		config.KeyViewStream:    "stream",
		config.KeyViewBaselines: "baseline",
	}
	for key, flag := range bind {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	for _, cmd := range AllCommands() {
		root.AddCommand(toCobra(cmd, st))
	}
	return root
}

func toCobra(cmd Command, st *state) *cobra.Command {
	c := &cobra.Command{
		Use:     cmd.Usage(),
		Aliases: cmd.Aliases(),
		Short:   cmd.Brief(),
		Long:    cmd.Help(),
	}
	cmd.Flags(c.Flags())
	for _, sub := range cmd.Subcommands() {
		c.AddCommand(toCobra(sub, st))
	}
	if _, ok := cmd.(*Group); ok {
		return c
	}
	c.RunE = func(cc *cobra.Command, args []string) error {
		return cmd.Run(&Context{
			Ctx:      cc.Context(),
			Args:     args,
			Flags:    cc.Flags(),
			Settings: st.settings,
			Logger:   st.logger,
			Out:      cc.OutOrStdout(),
			Err:      cc.ErrOrStderr(),
		})
	}
	return c
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(config.New(), os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
