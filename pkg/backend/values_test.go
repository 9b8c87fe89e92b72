package backend

import (
	"testing"
	"time"
)

func TestAsTime(t *testing.T) {
	want := time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC)
	for _, v := range []any{
		want,
		"2024-05-06T07:08:09.123Z",
		"2024-05-06 07:08:09.123+00:00",
		[]byte("2024-05-06 07:08:09.123"),
	} {
		got, err := AsTime(v)
		if err != nil {
			t.Fatalf("%v: %v", v, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%v: got %v", v, got)
		}
	}
	if z, err := AsTime(nil); err != nil || !z.IsZero() {
		t.Fatalf("nil: %v %v", z, err)
	}
	if _, err := AsTime("yesterday"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAsNumbers(t *testing.T) {
	if n, err := AsInt64([]byte("42")); err != nil || n != 42 {
		t.Fatalf("bytes: %d %v", n, err)
	}
	if n, err := AsInt64(uint64(7)); err != nil || n != 7 {
		t.Fatalf("uint64: %d %v", n, err)
	}
	if f, err := AsFloat64(int64(3)); err != nil || f != 3 {
		t.Fatalf("float from int: %v %v", f, err)
	}
	if f, err := AsFloat64("0.25"); err != nil || f != 0.25 {
		t.Fatalf("float from string: %v %v", f, err)
	}
	if !AsBool(int64(1)) || AsBool(int64(0)) || !AsBool(true) || !AsBool([]byte("1")) {
		t.Fatalf("bool conversion")
	}
}
