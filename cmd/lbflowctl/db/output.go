package dbcmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Printer writes command results as a table or as indented JSON.
type Printer struct {
	W      io.Writer
	Format string
}

// NewPrinter returns a printer honouring the --output flag.
func (f *DBFlags) NewPrinter(w io.Writer) Printer {
	return Printer{W: w, Format: f.Output}
}

// JSON reports whether JSON output was requested.
func (p Printer) JSON() bool { return p.Format == "json" }

// Print writes v as JSON, or calls table to build the tabular form.
func (p Printer) Print(v any, header []string, rows func() [][]string) error {
	if p.JSON() {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.W, string(b))
		return err
	}
	tw := tablewriter.NewWriter(p.W)
	tw.SetHeader(header)
	tw.SetAutoWrapText(false)
	tw.AppendBulk(rows())
	tw.Render()
	return nil
}

// FormatTime renders t for tables; the zero time renders as "-".
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
