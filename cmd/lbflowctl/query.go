package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	dbcmd "github.com/faciam-dev/lbflow/cmd/lbflowctl/db"
	"github.com/faciam-dev/lbflow/internal/datastore"
)

// filterFlags maps command line flags onto a datastore.Filter.
type filterFlags struct {
	statuses   []int
	clientIPs  []string
	endpoints  []string
	userAgents []string
	since      string
	until      string
	limit      int
	offset     int
	desc       bool
}

func (ff *filterFlags) addFlags(cmd *cobra.Command, paging bool) {
	fs := cmd.Flags()
	fs.IntSliceVar(&ff.statuses, "status", nil, "ELB status codes")
	fs.StringSliceVar(&ff.clientIPs, "client-ip", nil, "client addresses")
	fs.StringSliceVar(&ff.endpoints, "endpoint", nil, "substrings of the request URL")
	fs.StringSliceVar(&ff.userAgents, "user-agent", nil, "substrings of the user agent")
	fs.StringVar(&ff.since, "since", "", "start of the time range (RFC3339 or a duration before now)")
	fs.StringVar(&ff.until, "until", "", "end of the time range (RFC3339 or a duration before now)")
	if paging {
		fs.IntVar(&ff.limit, "limit", 100, fmt.Sprintf("maximum rows (capped at %d)", datastore.MaxQueryLimit))
		fs.IntVar(&ff.offset, "offset", 0, "rows to skip")
		fs.BoolVar(&ff.desc, "desc", false, "newest first")
	}
}

func (ff *filterFlags) filter(now time.Time) (*datastore.Filter, error) {
	f := &datastore.Filter{
		StatusCodes:       ff.statuses,
		ClientIPs:         ff.clientIPs,
		Endpoints:         ff.endpoints,
		UserAgentPatterns: ff.userAgents,
		Limit:             ff.limit,
		Offset:            ff.offset,
		SortDesc:          ff.desc,
	}
	if ff.since != "" || ff.until != "" {
		var tr datastore.TimeRange
		var err error
		if tr.Start, err = parseInstant(ff.since, now); err != nil {
			return nil, fmt.Errorf("--since: %w", err)
		}
		if tr.End, err = parseInstant(ff.until, now); err != nil {
			return nil, fmt.Errorf("--until: %w", err)
		}
		f.TimeRange = &tr
	}
	return f, nil
}

// parseInstant accepts an RFC3339 time or a duration counted back from now.
func parseInstant(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor a duration", s)
	}
	return now.Add(-d), nil
}

func newQueryCmd(f *dbcmd.DBFlags) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List stored log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter(time.Now())
			if err != nil {
				return err
			}
			s, err := dbcmd.Open(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.Close()
			entries, err := s.Store().Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			header := []string{"Timestamp", "Client", "Status", "Verb", "URL", "User Agent"}
			return f.NewPrinter(cmd.OutOrStdout()).Print(entries, header, func() [][]string {
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.Timestamp.UTC().Format(time.RFC3339Nano),
						e.ClientIP,
						strconv.Itoa(e.ELBStatusCode),
						e.RequestVerb,
						e.RequestURL,
						e.UserAgent,
					})
				}
				return rows
			})
		},
	}
	ff.addFlags(cmd, true)
	return cmd
}

func newCountCmd(f *dbcmd.DBFlags) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count stored log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter(time.Now())
			if err != nil {
				return err
			}
			s, err := dbcmd.Open(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.Store().Count(cmd.Context(), filter)
			if err != nil {
				return err
			}
			p := f.NewPrinter(cmd.OutOrStdout())
			if p.JSON() {
				return p.Print(map[string]int64{"count": n}, nil, nil)
			}
			fmt.Fprintln(cmd.OutOrStdout(), humanize.Comma(n))
			return nil
		},
	}
	ff.addFlags(cmd, false)
	return cmd
}
