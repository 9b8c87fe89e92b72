package logentry

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/faciam-dev/lbflow/pkg/backend"
)

func sample() Entry {
	return Entry{
		Type:                   "https",
		Timestamp:              time.Date(2024, 3, 1, 12, 0, 0, 250_000_000, time.UTC),
		ELB:                    "app/my-lb/50dc6c495c0c9188",
		ClientIP:               "192.0.2.10",
		ClientPort:             46532,
		TargetIP:               "10.0.0.5",
		TargetPort:             8080,
		RequestProcessingTime:  0.001,
		TargetProcessingTime:   0.25,
		ResponseProcessingTime: 0,
		ELBStatusCode:          200,
		TargetStatusCode:       200,
		ReceivedBytes:          512,
		SentBytes:              2048,
		RequestVerb:            "GET",
		RequestURL:             "https://example.com:443/api/items?id=1",
		RequestProtocol:        "HTTP/1.1",
		UserAgent:              "curl/8.4.0",
		SSLCipher:              "ECDHE-RSA-AES128-GCM-SHA256",
		SSLProtocol:            "TLSv1.2",
		TargetGroupARN:         "arn:aws:elasticloadbalancing:us-east-1:123456789012:targetgroup/web/73e2d6bc24d8a067",
		TraceID:                "Root=1-58337262-36d228ad5d99923122bbe354",
		DomainName:             "example.com",
		ChosenCertARN:          "arn:aws:acm:us-east-1:123456789012:certificate/12345678",
		MatchedRulePriority:    1,
		RequestCreationTime:    time.Date(2024, 3, 1, 11, 59, 59, 0, time.UTC),
		ActionsExecuted:        "forward",
		Classification:         "Acceptable",
	}
}

func TestBaseColumns(t *testing.T) {
	cols := BaseColumns()
	if len(cols) != 31 {
		t.Fatalf("columns = %d, want 31", len(cols))
	}
	if cols[0].Name != "id" || cols[0].Type != backend.TypeAutoID {
		t.Fatalf("first column = %+v", cols[0])
	}
	if cols[2].Name != "timestamp" || !cols[2].NotNull {
		t.Fatalf("timestamp column = %+v", cols[2])
	}
	for _, c := range cols {
		if c.Name == ConnTraceIDColumn.Name {
			t.Fatalf("conn_trace_id belongs to a later migration")
		}
	}
	if got := len(InsertColumns()); got != 31 {
		t.Fatalf("insert columns = %d", got)
	}
	if !IsColumn("elb_status_code") || !IsColumn("conn_trace_id") || IsColumn("status") {
		t.Fatalf("IsColumn mismatch")
	}
}

func TestValuesNullsEmptyStrings(t *testing.T) {
	e := sample()
	vals := Values(&e)
	cols := InsertColumns()
	byName := make(map[string]any, len(cols))
	for i, c := range cols {
		byName[c] = vals[i]
	}
	if byName["redirect_url"] != nil || byName["error_reason"] != nil || byName["conn_trace_id"] != nil {
		t.Fatalf("empty strings should bind as NULL: %v", byName)
	}
	if byName["client_ip"] != "192.0.2.10" || byName["elb_status_code"] != int64(200) {
		t.Fatalf("values = %v", byName)
	}
	e.RequestCreationTime = time.Time{}
	vals = Values(&e)
	for i, c := range cols {
		if c == "request_creation_time" && vals[i] != nil {
			t.Fatalf("zero time should bind as NULL")
		}
	}
}

func TestFromRowRoundTrip(t *testing.T) {
	want := sample()
	want.ID = 7
	want.ConnTraceID = "conn-1"
	row := append([]any{int64(7)}, Values(&want)...)

	got, err := FromRow(SelectColumns(), row)
	if err != nil {
		t.Fatalf("from row: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entry diff (-want +got)\n%s", diff)
	}
}

func TestFromRowDriverTypes(t *testing.T) {
	got, err := FromRow(
		[]string{"id", "timestamp", "elb_status_code", "sent_bytes", "target_processing_time", "user_agent", "extra"},
		[]any{[]byte("3"), "2024-03-01 12:00:00", []byte("404"), nil, "0.5", []byte("Mozilla"), "ignored"},
	)
	if err != nil {
		t.Fatalf("from row: %v", err)
	}
	want := Entry{
		ID:                   3,
		Timestamp:            time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ELBStatusCode:        404,
		TargetProcessingTime: 0.5,
		UserAgent:            "Mozilla",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entry diff (-want +got)\n%s", diff)
	}
	if _, err := FromRow([]string{"id"}, nil); err == nil {
		t.Fatalf("expected error for short row")
	}
	if _, err := FromRow([]string{"elb_status_code"}, []any{"abc"}); err == nil {
		t.Fatalf("expected error for non numeric status")
	}
}

func TestValidate(t *testing.T) {
	e := sample()
	if err := Validate(&e); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := Validate(nil); err == nil {
		t.Fatalf("expected error for nil entry")
	}
	e.Timestamp = time.Time{}
	if err := Validate(&e); err != ErrMissingTimestamp {
		t.Fatalf("expected ErrMissingTimestamp, got %v", err)
	}
}
