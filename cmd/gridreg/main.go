// Package main is the entry point for the gridreg maintenance CLI.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/database"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/importexport"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/registry"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "gridreg",
	Short: "Maintenance CLI for the gridreg group registry",
	Long: `Offline maintenance for a gridreg database: run the consistency
repair passes after out-of-band element table edits, or dump a network's
group table as JSON.`,
	SilenceUsage: true,
}

var auditCmd = &cobra.Command{
	Use:   "audit <network-id>",
	Short: "Normalize and prune a network's group table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		networkID, err := parseNetworkID(args[0])
		if err != nil {
			return err
		}
		db := database.GetDB()
		auditor := registry.NewAuditor(db, store.New(db, networkID), networkID)

		normalized, err := auditor.Normalize()
		if err != nil {
			return fmt.Errorf("normalize: %w", err)
		}
		notices, err := auditor.PruneDangling()
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "normalized %d entr%s\n", normalized, plural(normalized, "y", "ies"))
		for _, n := range notices {
			fmt.Fprintln(cmd.OutOrStdout(), n.String())
		}
		if len(notices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "group table is consistent")
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <network-id>",
	Short: "Dump a network's group table as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		networkID, err := parseNetworkID(args[0])
		if err != nil {
			return err
		}
		db := database.GetDB()
		snapshot, err := importexport.BuildSnapshot(db, networkID)
		if err != nil {
			return err
		}
		return importexport.WriteSnapshot(cmd.OutOrStdout(), snapshot)
	},
}

func parseNetworkID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid network id %q", arg)
	}
	return uint(id), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the gridreg database (default: $GRIDREG_DB_PATH or gridreg.db)")
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(exportCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		path := dbPath
		if path == "" {
			path = os.Getenv("GRIDREG_DB_PATH")
		}
		if path == "" {
			path = "gridreg.db"
		}
		if err := database.Connect(path); err != nil {
			return fmt.Errorf("open database %s: %w", path, err)
		}
		return models.AutoMigrate(database.GetDB())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
