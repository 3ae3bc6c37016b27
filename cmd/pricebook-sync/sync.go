package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/service"

	"github.com/spf13/cobra"
)

var (
	syncEntities  []string
	syncDryRun    bool
	syncStrategy  string
	syncDirection string
	syncCategory  int64
)

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Run a full sync of every requested kind",
	Long: `Fetch every upstream record of the requested kinds, reconcile them with
the local store and soft-delete local rows that disappeared upstream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, model.RunTypeFull)
	},
}

var incrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Sync records changed since the last successful run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, model.RunTypeIncremental)
	},
}

func init() {
	for _, c := range []*cobra.Command{fullCmd, incrementalCmd} {
		c.Flags().StringSliceVar(&syncEntities, "entity", nil, "entity types to sync (category, material, service, equipment)")
		c.Flags().BoolVar(&syncDryRun, "dry-run", false, "report what would change without writing")
		c.Flags().StringVar(&syncStrategy, "strategy", "", "conflict strategy: keep_upstream, keep_local or manual")
		c.Flags().StringVar(&syncDirection, "direction", "", "from_upstream, to_upstream or bidirectional")
		c.Flags().Int64Var(&syncCategory, "category", 0, "only pull catalog items filed under this upstream category")
		rootCmd.AddCommand(c)
	}
}

func runSync(cmd *cobra.Command, runType model.RunType) error {
	opts := service.SyncOptions{
		Type:        runType,
		Direction:   model.SyncDirection(syncDirection),
		Strategy:    model.ResolutionStrategy(syncStrategy),
		DryRun:      syncDryRun,
		TriggeredBy: model.TriggerCLI,
		ResolvedBy:  model.TriggerCLI,
	}
	if syncCategory != 0 {
		opts.CategoryID = &syncCategory
	}
	for _, name := range syncEntities {
		kind, err := model.ParseEntityType(name)
		if err != nil {
			return err
		}
		opts.EntityTypes = append(opts.EntityTypes, kind)
	}

	_, components := openEngine()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := components.Sync.Run(ctx, opts)
	if err != nil {
		return err
	}
	printJSON(result)

	if result.Status == model.RunStatusFailed {
		return fmt.Errorf("sync %s failed: %s", result.RunID, result.Error)
	}
	return nil
}
