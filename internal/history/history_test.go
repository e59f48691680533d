package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/NamanBalaji/rangedl/internal/classify"
)

func TestRecordFindAll(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	first := &Entry{URL: "https://example.com/a", BytesTotal: 10, Kind: classify.Success, Succeeded: true, StartedAt: time.Unix(1000, 0)}
	second := &Entry{URL: "https://example.com/b", BytesTotal: 20, Kind: classify.FileNotFound, Succeeded: false, StartedAt: time.Unix(2000, 0)}

	if err := store.Record(first); err != nil {
		t.Fatalf("record first: %v", err)
	}

	if err := store.Record(second); err != nil {
		t.Fatalf("record second: %v", err)
	}

	got, err := store.Find(first.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	if got.URL != first.URL {
		t.Errorf("URL = %q, want %q", got.URL, first.URL)
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}

	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	if all[0].URL != second.URL {
		t.Errorf("most recent entry = %q, want %q", all[0].URL, second.URL)
	}
}

func TestFindMissingReturnsErrNotFound(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.Find([16]byte{1}); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
