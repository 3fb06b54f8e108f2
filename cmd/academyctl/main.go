// Command academyctl runs maintenance tasks against the academy backends.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"academy/internal/app"
	"academy/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(func(ctx context.Context) (*app.App, error) {
		return app.Build(ctx, config.Load())
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type cli struct {
	build func(context.Context) (*app.App, error)
	app   *app.App
}

// services builds the app once per process.
func (c *cli) services(cmd *cobra.Command) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := c.build(cmd.Context())
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func newRootCmd(build func(context.Context) (*app.App, error)) *cobra.Command {
	c := &cli{build: build}
	root := &cobra.Command{
		Use:           "academyctl",
		Short:         "Maintenance commands for the academy service",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	root.AddCommand(
		migrateCmd(),
		createAdminCmd(c),
		issueTokenCmd(c),
		instrumentsCmd(c),
		migrateInstrumentsCmd(c),
		checkIndexCmd(c),
		testNotifyCmd(c),
	)
	return root
}
