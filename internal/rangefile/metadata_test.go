package rangefile

import (
	"bytes"
	"testing"

	"github.com/NamanBalaji/rangedl/internal/interval"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := &Metadata{
		BlockHint:  1 << 20,
		BytesTotal: 5_000_000,
		Processed:  1234,
		Available:  []interval.TrackedInterval{interval.Tracked(0, 999999)},
		Allocated:  []interval.TrackedInterval{interval.Tracked(1000000, 1999999).AdvancedBy(500)},
		Finished:   []interval.TrackedInterval{interval.Tracked(2000000, 2999999).AdvancedBy(1000000)},
	}

	var buf bytes.Buffer
	if err := EncodeMetadata(&buf, m); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeMetadata(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.BlockHint != m.BlockHint || got.BytesTotal != m.BytesTotal || got.Processed != m.Processed {
		t.Fatalf("scalar mismatch: got %+v, want %+v", got, m)
	}

	if len(got.Available) != 1 || got.Available[0] != m.Available[0] {
		t.Errorf("available mismatch: got %+v, want %+v", got.Available, m.Available)
	}

	if len(got.Allocated) != 1 || got.Allocated[0] != m.Allocated[0] {
		t.Errorf("allocated mismatch: got %+v, want %+v", got.Allocated, m.Allocated)
	}

	if len(got.Finished) != 1 || got.Finished[0] != m.Finished[0] {
		t.Errorf("finished mismatch: got %+v, want %+v", got.Finished, m.Finished)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("nope")

	if _, err := DecodeMetadata(buf); err != ErrBadMetadata {
		t.Fatalf("err = %v, want ErrBadMetadata", err)
	}
}

func TestDecodeRejectsEmptyStream(t *testing.T) {
	if _, err := DecodeMetadata(bytes.NewReader(nil)); err != ErrBadMetadata {
		t.Fatalf("err = %v, want ErrBadMetadata", err)
	}
}

func TestEncodeEmptySets(t *testing.T) {
	m := &Metadata{BlockHint: 4096, BytesTotal: 0, Processed: 0}

	var buf bytes.Buffer
	if err := EncodeMetadata(&buf, m); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeMetadata(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got.Available) != 0 || len(got.Allocated) != 0 || len(got.Finished) != 0 {
		t.Errorf("expected empty sets, got %+v", got)
	}
}
