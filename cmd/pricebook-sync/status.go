package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/pkg/config"
	"go-pricebook-sync/pkg/jwt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last run, item totals and open conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, components := openEngine()
		report, err := components.Pricebook.Status(context.Background())
		if err != nil {
			return err
		}
		// The CLI never runs the scheduler, so its state is not meaningful here.
		report.Scheduler = nil
		printJSON(report)
		return nil
	},
}

var (
	tokenName       string
	tokenRole       string
	tokenPrivileges []string
	tokenTTL        time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the API",
	Long: `Sign a token with JWT_SECRET for an operator or a service account.
--privilege overrides the privileges of --role.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		jwt.SetSecret(cfg.JWTSecret)

		privileges := tokenPrivileges
		if len(privileges) == 0 {
			role, err := model.FindRole(tokenRole)
			if err != nil {
				return err
			}
			privileges = role.Privileges
		}
		token, err := jwt.GenerateToken(tokenName, privileges, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "privileges: %s\n", strings.Join(privileges, ", "))
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "operator", "name carried in the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", model.RoleSyncAdmin, "role whose privileges the token carries")
	tokenCmd.Flags().StringSliceVar(&tokenPrivileges, "privilege", nil, "privilege codes to grant")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(statusCmd, tokenCmd)
}
