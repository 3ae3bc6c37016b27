package main

import (
	"encoding/json"
	"fmt"
	"os"

	"go-pricebook-sync/internal/app"
	"go-pricebook-sync/internal/service"
	"go-pricebook-sync/pkg/config"
	"go-pricebook-sync/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pricebook-sync",
	Short: "Reconcile the local pricebook with the upstream catalog",
	Long: `pricebook-sync runs one-shot sync jobs and administers conflicts
against the same database the API server uses.

Configuration is read from the environment (and .env when present).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openEngine loads config and wires the engine. Events go nowhere; the CLI
// prints results instead.
func openEngine() (*config.Config, *service.Components) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(logger.Options{File: cfg.Log.File, MaxSizeMB: cfg.Log.MaxSizeMB})

	_, components, err := app.Open(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening engine: %v\n", err)
		os.Exit(1)
	}
	return cfg, components
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
