package dbcmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/lbflow/internal/schema"
)

// ErrSchemaInvalid is returned by "schema validate" when the log table or one
// of its base indexes is missing.
var ErrSchemaInvalid = errors.New("log schema is incomplete")

// NewSchemaCmd creates the schema inspection commands.
func NewSchemaCmd(f *DBFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "schema", Short: "Inspect the log schema"}
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the latest applied migration",
		Args:  cobra.NoArgs,
		RunE: managerRun(f, func(cmd *cobra.Command, m *schema.Manager) error {
			v, ok, err := m.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check that the log table and its base indexes exist",
		Args:  cobra.NoArgs,
		RunE: managerRun(f, func(cmd *cobra.Command, m *schema.Manager) error {
			ok, err := m.ValidateSchema(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return ErrSchemaInvalid
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is valid")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "tables",
		Short: "List the columns of the log table",
		Args:  cobra.NoArgs,
		RunE: managerRun(f, func(cmd *cobra.Command, m *schema.Manager) error {
			cols, err := m.TableInfo(cmd.Context())
			if err != nil {
				return err
			}
			return f.NewPrinter(cmd.OutOrStdout()).Print(cols, []string{"Column", "Type", "Not Null", "Primary Key"}, func() [][]string {
				rows := make([][]string, 0, len(cols))
				for _, c := range cols {
					rows = append(rows, []string{c.Name, c.Type, strconv.FormatBool(c.NotNull), strconv.FormatBool(c.PrimaryKey)})
				}
				return rows
			})
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "indexes",
		Short: "List the indexes of the log table",
		Args:  cobra.NoArgs,
		RunE: managerRun(f, func(cmd *cobra.Command, m *schema.Manager) error {
			names, err := m.IndexInfo(cmd.Context())
			if err != nil {
				return err
			}
			return PrintNames(f.NewPrinter(cmd.OutOrStdout()), "Index", names)
		}),
	})
	return cmd
}

func managerRun(f *DBFlags, fn func(cmd *cobra.Command, m *schema.Manager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := Open(cmd.Context(), f)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.WithManager(cmd.Context(), func(m *schema.Manager) error {
			return fn(cmd, m)
		})
	}
}

// PrintNames prints a single column listing.
func PrintNames(p Printer, header string, names []string) error {
	return p.Print(names, []string{header}, func() [][]string {
		rows := make([][]string, 0, len(names))
		for _, n := range names {
			rows = append(rows, []string{n})
		}
		return rows
	})
}
