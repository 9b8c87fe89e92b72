// Package logentry defines the parsed load balancer log record and how it
// maps onto the log_entries table.
package logentry

import (
	"errors"
	"fmt"
	"time"

	"github.com/faciam-dev/lbflow/pkg/backend"
)

// Table is the primary log table.
const Table = "log_entries"

// ErrMissingTimestamp marks an entry that cannot be stored.
var ErrMissingTimestamp = errors.New("entry has no timestamp")

// Entry is one parsed access log line. Empty strings are stored as NULL and
// NULL numbers read back as zero.
type Entry struct {
	ID                     int64     `json:"id,omitempty"`
	Type                   string    `json:"type"`
	Timestamp              time.Time `json:"timestamp"`
	ELB                    string    `json:"elb"`
	ClientIP               string    `json:"clientIp"`
	ClientPort             int       `json:"clientPort"`
	TargetIP               string    `json:"targetIp"`
	TargetPort             int       `json:"targetPort"`
	RequestProcessingTime  float64   `json:"requestProcessingTime"`
	TargetProcessingTime   float64   `json:"targetProcessingTime"`
	ResponseProcessingTime float64   `json:"responseProcessingTime"`
	ELBStatusCode          int       `json:"elbStatusCode"`
	TargetStatusCode       int       `json:"targetStatusCode"`
	ReceivedBytes          int64     `json:"receivedBytes"`
	SentBytes              int64     `json:"sentBytes"`
	RequestVerb            string    `json:"requestVerb"`
	RequestURL             string    `json:"requestUrl"`
	RequestProtocol        string    `json:"requestProtocol"`
	UserAgent              string    `json:"userAgent"`
	SSLCipher              string    `json:"sslCipher"`
	SSLProtocol            string    `json:"sslProtocol"`
	TargetGroupARN         string    `json:"targetGroupArn"`
	TraceID                string    `json:"traceId"`
	DomainName             string    `json:"domainName"`
	ChosenCertARN          string    `json:"chosenCertArn"`
	MatchedRulePriority    int       `json:"matchedRulePriority"`
	RequestCreationTime    time.Time `json:"requestCreationTime"`
	ActionsExecuted        string    `json:"actionsExecuted"`
	RedirectURL            string    `json:"redirectUrl"`
	ErrorReason            string    `json:"errorReason"`
	Classification         string    `json:"classification"`
	ConnTraceID            string    `json:"connTraceId,omitempty"`
}

// Parser turns one raw log line into an Entry.
type Parser interface {
	Parse(line string) (*Entry, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(line string) (*Entry, error)

func (f ParserFunc) Parse(line string) (*Entry, error) { return f(line) }

// Validate reports whether e can be stored.
func Validate(e *Entry) error {
	if e == nil {
		return errors.New("nil entry")
	}
	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

type field struct {
	col backend.ColumnDef
	get func(e *Entry) any
	set func(e *Entry, v any) error
}

func str(name string, t backend.ColumnType, p func(*Entry) *string) field {
	return field{
		col: backend.ColumnDef{Name: name, Type: t},
		get: func(e *Entry) any { return nullString(*p(e)) },
		set: func(e *Entry, v any) error {
			*p(e) = backend.AsString(v)
			return nil
		},
	}
}

func integer(name string, t backend.ColumnType, p func(*Entry) *int) field {
	return field{
		col: backend.ColumnDef{Name: name, Type: t},
		get: func(e *Entry) any { return int64(*p(e)) },
		set: func(e *Entry, v any) error {
			n, err := backend.AsInt64(v)
			*p(e) = int(n)
			return err
		},
	}
}

func bigint(name string, p func(*Entry) *int64) field {
	return field{
		col: backend.ColumnDef{Name: name, Type: backend.TypeBigInt},
		get: func(e *Entry) any { return *p(e) },
		set: func(e *Entry, v any) error {
			n, err := backend.AsInt64(v)
			*p(e) = n
			return err
		},
	}
}

func float(name string, p func(*Entry) *float64) field {
	return field{
		col: backend.ColumnDef{Name: name, Type: backend.TypeFloat},
		get: func(e *Entry) any { return *p(e) },
		set: func(e *Entry, v any) error {
			f, err := backend.AsFloat64(v)
			*p(e) = f
			return err
		},
	}
}

func timestamp(name string, notNull bool, p func(*Entry) *time.Time) field {
	return field{
		col: backend.ColumnDef{Name: name, Type: backend.TypeTimestamp, NotNull: notNull},
		get: func(e *Entry) any {
			if t := *p(e); !t.IsZero() {
				return t.UTC()
			}
			return nil
		},
		set: func(e *Entry, v any) error {
			t, err := backend.AsTime(v)
			if !t.IsZero() {
				t = t.UTC()
			}
			*p(e) = t
			return err
		},
	}
}

// fields lists the data columns of log_entries in declaration order.
var fields = []field{
	str("type", backend.TypeString, func(e *Entry) *string { return &e.Type }),
	timestamp("timestamp", true, func(e *Entry) *time.Time { return &e.Timestamp }),
	str("elb", backend.TypeString, func(e *Entry) *string { return &e.ELB }),
	str("client_ip", backend.TypeString, func(e *Entry) *string { return &e.ClientIP }),
	integer("client_port", backend.TypeInt, func(e *Entry) *int { return &e.ClientPort }),
	str("target_ip", backend.TypeString, func(e *Entry) *string { return &e.TargetIP }),
	integer("target_port", backend.TypeInt, func(e *Entry) *int { return &e.TargetPort }),
	float("request_processing_time", func(e *Entry) *float64 { return &e.RequestProcessingTime }),
	float("target_processing_time", func(e *Entry) *float64 { return &e.TargetProcessingTime }),
	float("response_processing_time", func(e *Entry) *float64 { return &e.ResponseProcessingTime }),
	integer("elb_status_code", backend.TypeInt, func(e *Entry) *int { return &e.ELBStatusCode }),
	integer("target_status_code", backend.TypeInt, func(e *Entry) *int { return &e.TargetStatusCode }),
	bigint("received_bytes", func(e *Entry) *int64 { return &e.ReceivedBytes }),
	bigint("sent_bytes", func(e *Entry) *int64 { return &e.SentBytes }),
	str("request_verb", backend.TypeString, func(e *Entry) *string { return &e.RequestVerb }),
	str("request_url", backend.TypeText, func(e *Entry) *string { return &e.RequestURL }),
	str("request_protocol", backend.TypeString, func(e *Entry) *string { return &e.RequestProtocol }),
	str("user_agent", backend.TypeText, func(e *Entry) *string { return &e.UserAgent }),
	str("ssl_cipher", backend.TypeString, func(e *Entry) *string { return &e.SSLCipher }),
	str("ssl_protocol", backend.TypeString, func(e *Entry) *string { return &e.SSLProtocol }),
	str("target_group_arn", backend.TypeText, func(e *Entry) *string { return &e.TargetGroupARN }),
	str("trace_id", backend.TypeString, func(e *Entry) *string { return &e.TraceID }),
	str("domain_name", backend.TypeString, func(e *Entry) *string { return &e.DomainName }),
	str("chosen_cert_arn", backend.TypeText, func(e *Entry) *string { return &e.ChosenCertARN }),
	integer("matched_rule_priority", backend.TypeInt, func(e *Entry) *int { return &e.MatchedRulePriority }),
	timestamp("request_creation_time", false, func(e *Entry) *time.Time { return &e.RequestCreationTime }),
	str("actions_executed", backend.TypeText, func(e *Entry) *string { return &e.ActionsExecuted }),
	str("redirect_url", backend.TypeText, func(e *Entry) *string { return &e.RedirectURL }),
	str("error_reason", backend.TypeString, func(e *Entry) *string { return &e.ErrorReason }),
	str("classification", backend.TypeString, func(e *Entry) *string { return &e.Classification }),
}

// connTraceID is added by a later migration.
var connTraceID = str("conn_trace_id", backend.TypeString, func(e *Entry) *string { return &e.ConnTraceID })

// IDColumn is the auto incrementing primary key.
var IDColumn = backend.ColumnDef{Name: "id", Type: backend.TypeAutoID}

// ConnTraceIDColumn is the connection identifier column.
var ConnTraceIDColumn = connTraceID.col

// BaseColumns returns the columns log_entries is created with: the id
// followed by every data field.
func BaseColumns() []backend.ColumnDef {
	cols := make([]backend.ColumnDef, 0, len(fields)+1)
	cols = append(cols, IDColumn)
	for _, f := range fields {
		cols = append(cols, f.col)
	}
	return cols
}

func storedFields() []field {
	return append(append([]field(nil), fields...), connTraceID)
}

// InsertColumns names the columns written for each entry, in Values order.
func InsertColumns() []string {
	fs := storedFields()
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.col.Name
	}
	return names
}

// SelectColumns names the columns read back by FromRow.
func SelectColumns() []string {
	return append([]string{IDColumn.Name}, InsertColumns()...)
}

// IsColumn reports whether name is a column of log_entries.
func IsColumn(name string) bool {
	for _, c := range SelectColumns() {
		if c == name {
			return true
		}
	}
	return false
}

// Values returns the bind values for e in InsertColumns order.
func Values(e *Entry) []any {
	fs := storedFields()
	vals := make([]any, len(fs))
	for i, f := range fs {
		vals[i] = f.get(e)
	}
	return vals
}

// FromRow builds an Entry from a result row. Unknown columns are ignored.
func FromRow(columns []string, row []any) (Entry, error) {
	var e Entry
	if len(columns) != len(row) {
		return e, fmt.Errorf("row has %d values for %d columns", len(row), len(columns))
	}
	byName := make(map[string]field, len(fields)+1)
	for _, f := range storedFields() {
		byName[f.col.Name] = f
	}
	for i, name := range columns {
		if name == IDColumn.Name {
			id, err := backend.AsInt64(row[i])
			if err != nil {
				return e, fmt.Errorf("column id: %w", err)
			}
			e.ID = id
			continue
		}
		f, ok := byName[name]
		if !ok {
			continue
		}
		if err := f.set(&e, row[i]); err != nil {
			return e, fmt.Errorf("column %s: %w", name, err)
		}
	}
	return e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
