// Package cmd implements the notes command line: fetch the posts of a nostr
// user from their relays and search them.
package cmd

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/SnowCait/user-notes-search/internal/config"
	"github.com/SnowCait/user-notes-search/internal/discovery"
	"github.com/SnowCait/user-notes-search/internal/feed"
	"github.com/SnowCait/user-notes-search/internal/relay"
	"github.com/SnowCait/user-notes-search/internal/session"
)

type options struct {
	configPath string
	logLevel   string
	timeout    time.Duration
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd(nil).Execute()
}

// NewRootCmd builds the command tree. factory opens relay connections; nil
// dials real relays.
func NewRootCmd(factory relay.Factory) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "notes",
		Short: "fetch and search the posts of a nostr user",
		Long: `notes - fetch and search the posts of a nostr user

The user's relay list is looked up on the discovery relays, then their
posts are fetched from the relays they write to and merged newest first.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $NOTES_CONFIG or "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default from config)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "give up after this long, 0 for no limit")

	root.AddCommand(newFetchCmd(opts, factory))
	root.AddCommand(newResolveCmd(opts, factory))
	return root
}

// env carries what every subcommand builds from its flags
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	factory relay.Factory
}

func (o *options) setup(cmd *cobra.Command, factory relay.Factory) (*env, error) {
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger := newLogger(cmd.ErrOrStderr(), level)
	if factory == nil {
		factory = relay.NewFactory(relay.PoolOptions{ConnectTimeout: cfg.ConnectTimeout.Std()}, logger)
	}
	return &env{cfg: cfg, logger: logger, factory: factory}, nil
}

func (o *options) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

func (e *env) newSession(ctx context.Context) *session.Session {
	resolver := discovery.NewResolver(e.factory, discovery.Options{
		Limit:       e.cfg.DiscoveryLimit,
		EOSETimeout: e.cfg.EOSETimeout.Std(),
	}, e.logger)
	engine := feed.NewEngine(e.factory, feed.Options{
		BatchLimit:  e.cfg.BatchLimit,
		MaxPages:    e.cfg.MaxPages,
		EOSETimeout: e.cfg.EOSETimeout.Std(),
	}, e.logger, nil)
	return session.New(ctx, resolver, engine, session.Relays{
		Discovery: e.cfg.DiscoveryRelays,
		Content:   e.cfg.ContentRelays,
	}, e.logger)
}

// newLogger writes text logs to w; an unknown level means info
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
