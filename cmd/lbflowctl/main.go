package main

import (
	"log"

	"github.com/spf13/cobra"

	dbcmd "github.com/faciam-dev/lbflow/cmd/lbflowctl/db"
)

func newRootCmd() *cobra.Command {
	var flags dbcmd.DBFlags
	rootCmd := &cobra.Command{
		Use:           "lbflowctl",
		Short:         "Store and query load balancer flow logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.AddFlags(rootCmd)

	rootCmd.AddCommand(newConfigCmd(&flags))
	rootCmd.AddCommand(dbcmd.NewMigrateCmd(&flags))
	rootCmd.AddCommand(dbcmd.NewSchemaCmd(&flags))
	rootCmd.AddCommand(newIngestCmd(&flags))
	rootCmd.AddCommand(newQueryCmd(&flags))
	rootCmd.AddCommand(newCountCmd(&flags))
	rootCmd.AddCommand(newStatsCmd(&flags))
	rootCmd.AddCommand(newIndexCmd(&flags))
	rootCmd.AddCommand(newTypesCmd(&flags))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
