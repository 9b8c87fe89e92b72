package datastore

import (
	"fmt"
	"strings"
	"time"

	"github.com/faciam-dev/lbflow/pkg/backend"
)

// MaxQueryLimit caps the rows a single Query returns.
const MaxQueryLimit = 10000

// TimeRange bounds timestamps inclusively. A zero bound is open.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Filter selects log entries. Set fields are combined with AND; values
// within one field are combined with OR. A nil Filter matches everything.
type Filter struct {
	StatusCodes       []int      `json:"statusCodes,omitempty"`
	ClientIPs         []string   `json:"clientIps,omitempty"`
	TimeRange         *TimeRange `json:"timeRange,omitempty"`
	Endpoints         []string   `json:"endpoints,omitempty"`
	UserAgentPatterns []string   `json:"userAgentPatterns,omitempty"`
	Limit             int        `json:"limit,omitempty"`
	Offset            int        `json:"offset,omitempty"`
	SortDesc          bool       `json:"sortDesc,omitempty"`
}

// limit returns the effective row limit.
func (f *Filter) limit() int {
	if f == nil || f.Limit <= 0 || f.Limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return f.Limit
}

func (f *Filter) offset() int {
	if f == nil || f.Offset < 0 {
		return 0
	}
	return f.Offset
}

type whereBuilder struct {
	d     backend.Dialect
	conds []string
	args  []any
}

func (w *whereBuilder) bind(v any) string {
	w.args = append(w.args, v)
	return w.d.Placeholder(len(w.args))
}

func (w *whereBuilder) in(column string, n int, value func(i int) any) {
	if n == 0 {
		return
	}
	marks := make([]string, n)
	for i := range marks {
		marks[i] = w.bind(value(i))
	}
	w.conds = append(w.conds, fmt.Sprintf("%s IN (%s)", column, strings.Join(marks, ", ")))
}

func (w *whereBuilder) contains(column string, patterns []string) {
	if len(patterns) == 0 {
		return
	}
	ors := make([]string, len(patterns))
	for i, p := range patterns {
		ors[i] = w.d.Like(column, w.bind("%"+escapeLike(p)+"%"))
	}
	w.conds = append(w.conds, "("+strings.Join(ors, " OR ")+")")
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// where renders the predicate of f for d.
func where(d backend.Dialect, f *Filter) (string, []any) {
	w := &whereBuilder{d: d}
	if f == nil {
		return "", nil
	}
	w.in("elb_status_code", len(f.StatusCodes), func(i int) any { return f.StatusCodes[i] })
	w.in("client_ip", len(f.ClientIPs), func(i int) any { return f.ClientIPs[i] })
	if tr := f.TimeRange; tr != nil {
		if !tr.Start.IsZero() {
			w.conds = append(w.conds, "timestamp >= "+w.bind(tr.Start.UTC()))
		}
		if !tr.End.IsZero() {
			w.conds = append(w.conds, "timestamp <= "+w.bind(tr.End.UTC()))
		}
	}
	w.contains("request_url", f.Endpoints)
	w.contains("user_agent", f.UserAgentPatterns)
	return w.String(), w.args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
