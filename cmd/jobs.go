package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one inactivity sweep over open tickets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		report, err := rt.inactivity.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		rt.logger.Info("sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Strings("prompted", report.Prompted),
			zap.Strings("closed", report.Closed),
		)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete tickets closed longer than the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		deleted, err := rt.inactivity.PurgeClosed(cmd.Context())
		if err != nil {
			return err
		}
		rt.logger.Info("purge finished", zap.Int64("deleted", deleted))
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the catalog now and rewrite the mirror",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := rt.coordinator.PeriodicRefresh(cmd.Context()); err != nil {
			return fmt.Errorf("refresh catalog: %w", err)
		}
		doc, _, ok := rt.coordinator.Cache().Snapshot()
		if !ok {
			return fmt.Errorf("refresh catalog: no snapshot")
		}
		rt.logger.Info("catalog refreshed", zap.Int("groups", doc.Len()), zap.String("mirror", rt.cfg.Catalog.MirrorPath))
		return nil
	},
}
