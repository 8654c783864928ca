package indexer

import (
	"math"
	"reflect"
	"testing"
)

func TestWindow(t *testing.T) {
	got, ok := Window(100, 2, 105)
	if !ok {
		t.Fatalf("expected window")
	}
	want := BlockRange{From: 100, To: 102}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("window mismatch: %+v != %+v", got, want)
	}
	if got.Len() != 3 {
		t.Fatalf("expected len 3, got %d", got.Len())
	}
}

func TestWindowClampedToHead(t *testing.T) {
	got, ok := Window(5, 100_000, 7)
	if !ok {
		t.Fatalf("expected window")
	}
	want := BlockRange{From: 5, To: 7}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("window mismatch: %+v != %+v", got, want)
	}

	got, _ = Window(5, 0, 5)
	if got.Len() != 1 {
		t.Fatalf("expected single block window, got %+v", got)
	}
}

func TestWindowPastHead(t *testing.T) {
	if _, ok := Window(10, 1, 9); ok {
		t.Fatalf("expected no window past head")
	}
}

func TestWindowOverflow(t *testing.T) {
	got, ok := Window(math.MaxUint64-1, math.MaxUint64, math.MaxUint64)
	if !ok || got.To != math.MaxUint64 {
		t.Fatalf("unexpected window: %+v %v", got, ok)
	}
}
