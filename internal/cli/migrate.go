package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"walrus/internal/app"
	"walrus/internal/storage"
	logx "walrus/pkg/logx"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the storage schema",
		Long: `Open the configured store, apply its migrations and exit.

Example:
  walrus migrate --config ./config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd, rootOpts.ConfigPath)
		},
	}
}

func migrate(cmd *cobra.Command, cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	sc, err := app.StorageConfig(cfg, nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := storage.Open(ctx, sc, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	if st == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "storage disabled; nothing to migrate")
		return nil
	}
	defer st.Close()
	n, err := st.PendingTimers(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "storage %s ready (%d pending timers)\n", sc.Driver, n)
	return nil
}
