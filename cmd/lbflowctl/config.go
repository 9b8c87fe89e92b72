package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	dbcmd "github.com/faciam-dev/lbflow/cmd/lbflowctl/db"
	"github.com/faciam-dev/lbflow/pkg/config"
)

func newConfigCmd(f *dbcmd.DBFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect the effective configuration"}
	cmd.AddCommand(newConfigValidateCmd(f))
	cmd.AddCommand(newConfigShowCmd(f))
	return cmd
}

func newConfigValidateCmd(f *dbcmd.DBFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the database configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.Resolve()
			if err != nil {
				return err
			}
			if err := config.Check(res.Database); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", res.Database.Redacted())
			return nil
		},
	}
}

func newConfigShowCmd(f *dbcmd.DBFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.Resolve()
			if err != nil {
				return err
			}
			out := config.File{Database: res.Database.Masked(), Logging: res.Logging}
			p := f.NewPrinter(cmd.OutOrStdout())
			if p.JSON() {
				return p.Print(out, nil, nil)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
