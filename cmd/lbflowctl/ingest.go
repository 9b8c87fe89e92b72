package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dbcmd "github.com/faciam-dev/lbflow/cmd/lbflowctl/db"
	"github.com/faciam-dev/lbflow/internal/datastore"
	"github.com/faciam-dev/lbflow/internal/logentry"
	"github.com/faciam-dev/lbflow/internal/schema"
	"github.com/faciam-dev/lbflow/pkg/metrics"
)

const maxLineSize = 4 << 20

type ingestSummary struct {
	Lines     int `json:"lines"`
	Inserted  int `json:"inserted"`
	Failed    int `json:"failed"`
	Malformed int `json:"malformed"`
}

type batchWriter interface {
	Store(ctx context.Context, entries []*logentry.Entry) (datastore.StoreResult, error)
}

func newIngestCmd(f *dbcmd.DBFlags) *cobra.Command {
	var batch int
	var migrate bool
	var metricsFile string
	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl>",
		Short: "Store parsed log entries read as JSON lines (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch <= 0 {
				return fmt.Errorf("--batch must be positive")
			}
			in := cmd.InOrStdin()
			if args[0] != "-" {
				fh, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer fh.Close()
				in = fh
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			s, err := dbcmd.Open(ctx, f)
			if err != nil {
				return err
			}
			defer s.Close()
			if migrate {
				err := s.WithManager(ctx, func(m *schema.Manager) error {
					_, err := m.InitializeSchema(ctx)
					return err
				})
				if err != nil {
					return err
				}
			}
			metrics.StartPoolGauge(ctx, s.Registry)

			store := s.Store()
			defer store.Close()
			sum, err := ingest(ctx, store, in, batch, s.Log)
			metrics.UpdatePoolGauge(s.Registry)
			if metricsFile != "" {
				if werr := prometheus.WriteToTextfile(metricsFile, prometheus.DefaultGatherer); werr != nil {
					err = errors.Join(err, fmt.Errorf("write metrics: %w", werr))
				}
			}
			p := f.NewPrinter(cmd.OutOrStdout())
			if p.JSON() {
				if perr := p.Print(sum, nil, nil); perr != nil {
					return errors.Join(err, perr)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "read %s lines: %s stored, %s rejected, %s malformed\n",
				humanize.Comma(int64(sum.Lines)), humanize.Comma(int64(sum.Inserted)),
				humanize.Comma(int64(sum.Failed)), humanize.Comma(int64(sum.Malformed)))
			return err
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 1000, "entries stored per connection checkout")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before ingesting")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus text metrics to this file when done")
	return cmd
}

// ingest decodes one entry per line and stores them in batches. Lines that
// are not valid JSON are counted and skipped.
func ingest(ctx context.Context, w batchWriter, r io.Reader, batch int, log *zap.Logger) (ingestSummary, error) {
	var sum ingestSummary
	entries := make([]*logentry.Entry, 0, batch)
	lines := make([]int, 0, batch)

	flush := func() error {
		if len(entries) == 0 {
			return nil
		}
		res, err := w.Store(ctx, entries)
		sum.Inserted += res.Inserted
		sum.Failed += res.Failed
		for _, e := range res.Errors {
			var werr *datastore.StorageWriteError
			if errors.As(e, &werr) {
				log.Warn("entry rejected", zap.Int("line", lines[werr.Index]), zap.Error(werr.Err))
			}
		}
		entries, lines = entries[:0], lines[:0]
		return err
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		sum.Lines++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e logentry.Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			sum.Malformed++
			log.Warn("malformed line", zap.Int("line", sum.Lines), zap.Error(err))
			continue
		}
		entries = append(entries, &e)
		lines = append(lines, sum.Lines)
		if len(entries) == batch {
			if err := flush(); err != nil {
				return sum, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return sum, err
	}
	return sum, flush()
}
