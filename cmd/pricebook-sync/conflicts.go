package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"go-pricebook-sync/internal/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/datatypes"
)

var (
	conflictEntity  string
	resolveStrategy string
	resolveBy       string
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List unresolved conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		var kind model.EntityType
		if conflictEntity != "" {
			k, err := model.ParseEntityType(conflictEntity)
			if err != nil {
				return err
			}
			kind = k
		}

		_, components := openEngine()
		list, err := components.Pricebook.ListConflicts(context.Background(), kind)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No unresolved conflicts")
			return nil
		}
		for _, c := range list {
			fmt.Printf("%s  %-9s upstream=%d fields=%s detected=%s\n",
				c.ID, c.EntityType, c.UpstreamID, diffFields(c.FieldDiff), c.DetectedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(os.Stderr, "%d unresolved\n", len(list))
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve one conflict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid conflict id %q", args[0])
		}

		_, components := openEngine()
		conflict, err := components.Pricebook.ResolveConflict(context.Background(), id,
			model.ResolutionStrategy(resolveStrategy), resolveBy)
		if err != nil {
			return err
		}
		printJSON(conflict)
		return nil
	},
}

// diffFields lists the conflicting field names, sorted.
func diffFields(raw datatypes.JSON) string {
	var diff map[string]json.RawMessage
	if err := json.Unmarshal(raw, &diff); err != nil || len(diff) == 0 {
		return "-"
	}
	names := make([]string, 0, len(diff))
	for name := range diff {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func init() {
	conflictsCmd.Flags().StringVar(&conflictEntity, "entity", "", "only list conflicts of this entity type")

	resolveCmd.Flags().StringVar(&resolveStrategy, "strategy", "", "keep_upstream, keep_local or manual")
	resolveCmd.Flags().StringVar(&resolveBy, "by", model.TriggerCLI, "name recorded as the resolver")
	_ = resolveCmd.MarkFlagRequired("strategy")

	rootCmd.AddCommand(conflictsCmd, resolveCmd)
}
