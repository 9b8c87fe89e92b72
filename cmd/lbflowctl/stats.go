package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	dbcmd "github.com/faciam-dev/lbflow/cmd/lbflowctl/db"
	"github.com/faciam-dev/lbflow/internal/datastore"
	"github.com/faciam-dev/lbflow/internal/pool"
)

func newStatsCmd(f *dbcmd.DBFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stored entry counts, time span and database size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := dbcmd.Open(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.Close()
			st, err := s.Store().Stats(cmd.Context())
			if err != nil {
				return err
			}
			ps := s.Pool.Stats()
			out := struct {
				Storage datastore.Stats `json:"storage"`
				Pool    pool.Stats      `json:"pool"`
			}{st, ps}
			return f.NewPrinter(cmd.OutOrStdout()).Print(out, []string{"Metric", "Value"}, func() [][]string {
				return [][]string{
					{"Backend", s.Config.Database.Redacted()},
					{"Entries", humanize.Comma(st.TotalEntries)},
					{"Oldest", dbcmd.FormatTime(st.OldestEntry)},
					{"Newest", dbcmd.FormatTime(st.NewestEntry)},
					{"Database size", humanize.Bytes(uint64(max(st.DatabaseSize, 0)))},
					{"Indexes", strconv.Itoa(st.IndexCount)},
					{"Pool", fmt.Sprintf("%d total, %d idle, %d in use", ps.Total, ps.Idle, ps.InUse)},
				}
			})
		},
	}
}

func newIndexCmd(f *dbcmd.DBFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "index", Short: "Manage log table indexes"}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <column>",
		Short: "Create a single column index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := dbcmd.Open(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.Close()
			name, err := s.Store().CreateIndex(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the indexes of the log table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := dbcmd.Open(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.Close()
			names, err := s.Store().ListIndexes(cmd.Context())
			if err != nil {
				return err
			}
			return dbcmd.PrintNames(f.NewPrinter(cmd.OutOrStdout()), "Index", names)
		},
	})
	return cmd
}

func newTypesCmd(f *dbcmd.DBFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the supported database types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			types := pool.NewRegistry().SupportedTypes()
			names := make([]string, len(types))
			for i, t := range types {
				names[i] = string(t)
			}
			return dbcmd.PrintNames(f.NewPrinter(cmd.OutOrStdout()), "Type", names)
		},
	}
}
