package dbcmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/lbflow/internal/schema"
)

// NewMigrateCmd creates the migrate command. Without a subcommand it applies
// every pending migration.
func NewMigrateCmd(f *DBFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run schema migrations",
		Args:  cobra.NoArgs,
		RunE:  managerRun(f, migrateUp),
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE:  managerRun(f, migrateUp),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: managerRun(f, func(cmd *cobra.Command, m *schema.Manager) error {
			st, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			return f.NewPrinter(cmd.OutOrStdout()).Print(st, []string{"ID", "Name", "Applied", "Executed"}, func() [][]string {
				rows := make([][]string, 0, len(st))
				for _, r := range st {
					rows = append(rows, []string{r.ID, r.Name, strconv.FormatBool(r.Applied), FormatTime(r.ExecutedAt)})
				}
				return rows
			})
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rollback <id>",
		Short: "Revert one applied migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return managerRun(f, func(cmd *cobra.Command, m *schema.Manager) error {
				if err := m.RollbackMigration(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", args[0])
				return nil
			})(cmd, args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "drift",
		Short: "Report applied migrations whose definition changed",
		Args:  cobra.NoArgs,
		RunE:  managerRun(f, migrateDrift(f)),
	})
	return cmd
}

func migrateUp(cmd *cobra.Command, m *schema.Manager) error {
	applied, err := m.InitializeSchema(cmd.Context())
	for _, id := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", id)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
	}
	return nil
}

func migrateDrift(f *DBFlags) func(*cobra.Command, *schema.Manager) error {
	return func(cmd *cobra.Command, m *schema.Manager) error {
		drift, err := m.Drift(cmd.Context())
		if err != nil {
			return err
		}
		p := f.NewPrinter(cmd.OutOrStdout())
		if len(drift) == 0 && !p.JSON() {
			fmt.Fprintln(cmd.OutOrStdout(), "no drift detected")
			return nil
		}
		return p.Print(drift, []string{"ID", "Name", "Recorded", "Current"}, func() [][]string {
			rows := make([][]string, 0, len(drift))
			for _, d := range drift {
				cur := d.Current
				if cur == "" {
					cur = "(unregistered)"
				}
				rows = append(rows, []string{d.ID, d.Name, short(d.Recorded), short(cur)})
			}
			return rows
		})
	}
}

func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
