package main

import (
	"context"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bandsite/service/internal/bootstrap"
	"github.com/bandsite/service/internal/config"
)

type commandContext struct {
	verbose *bool

	open     func(ctx context.Context, verbose bool, logOut io.Writer) (*bootstrap.App, error)
	closeApp func(*bootstrap.App)

	once   sync.Once
	app    *bootstrap.App
	appErr error
}

func openApp(ctx context.Context, verbose bool, logOut io.Writer) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !verbose {
		cfg.LogLevel = "warn"
	}
	return bootstrap.New(ctx, cfg, bootstrap.NewLogger(cfg, logOut))
}

func (c *commandContext) withApp(ctx context.Context, logOut io.Writer, fn func(app *bootstrap.App) error) error {
	c.once.Do(func() {
		c.app, c.appErr = c.open(ctx, *c.verbose, logOut)
	})
	if c.appErr != nil {
		return c.appErr
	}
	return fn(c.app)
}

// close releases the app if a command opened one. It runs whether or not the
// command failed.
func (c *commandContext) close() {
	if c.app != nil {
		c.closeApp(c.app)
		c.app = nil
	}
}

func newRootCommand() (*cobra.Command, *commandContext) {
	var verbose bool
	ctx := &commandContext{
		verbose:  &verbose,
		open:     openApp,
		closeApp: (*bootstrap.App).Close,
	}

	rootCmd := &cobra.Command{
		Use:           "mediactl",
		Short:         "Media pipeline administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warn")

	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newSweepCommand(ctx))
	return rootCmd, ctx
}

// execute runs args against root and always closes the app afterwards.
func execute(ctx context.Context, root *cobra.Command, cc *commandContext, args []string) error {
	defer cc.close()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
