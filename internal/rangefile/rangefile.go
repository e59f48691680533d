// Package rangefile implements the thread-safe range allocator and
// partial-file writer (spec.md §4.3, component C4): a RangeFile owns a
// sparse temp file, three disjoint sets of interval.TrackedInterval
// (available / allocated / finished) and the metadata side-file that lets
// a later invocation resume.
package rangefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/NamanBalaji/rangedl/internal/interval"
)

// DefaultBlockHint is used when a RangeFile is constructed with a
// non-positive block hint (spec.md §6 Preferences.blockSize default).
const DefaultBlockHint int64 = 1 << 20 // 1 MiB

var (
	ErrNotOpened            = errors.New("rangefile: not opened")
	ErrAlreadyOpened        = errors.New("rangefile: already opened")
	ErrAlreadyPopulated     = errors.New("rangefile: reserve called after allocation or open")
	ErrInvalidBytesTotal    = errors.New("rangefile: bytesTotal must be positive for this operation")
	ErrAllocatedNotEmpty    = errors.New("rangefile: close called with allocated ranges outstanding")
	ErrIntervalNotAllocated = errors.New("rangefile: interval is not currently allocated")
	ErrInvariantViolation   = errors.New("rangefile: finished=true but the file is not fully covered")
)

// RangeFile is the thread-safe range allocator and partial-file writer
// described in spec.md §4.3. The zero value is not usable; construct with
// New.
type RangeFile struct {
	// stateMu guards bytesTotal, blockHint, available, allocated, finished
	// and opened. allocate/deallocate/fill/dump/is_full/processed may be
	// called concurrently by any number of workers plus the coordinator;
	// open/close/reserve are coordinator-only and only while no worker is
	// active (spec.md §4.3.7).
	stateMu sync.Mutex
	// fileMu serializes the seek-then-write pair so two workers' writes to
	// disjoint offsets can never interleave mid-syscall.
	fileMu sync.Mutex
	// metaMu serializes dump()'s unlink+rename pair.
	metaMu sync.Mutex

	bytesTotal int64
	blockHint  int64
	processed  atomic.Int64

	available []interval.TrackedInterval
	allocated []interval.TrackedInterval
	finished  []interval.TrackedInterval

	path   string
	file   *os.File
	opened bool
}

// New constructs a RangeFile for a download of bytesTotal bytes (-1 if
// unknown) tiled into blockHint-sized allocation units. A non-positive
// blockHint is replaced with DefaultBlockHint.
func New(bytesTotal, blockHint int64) *RangeFile {
	if blockHint <= 0 {
		blockHint = DefaultBlockHint
	}

	return &RangeFile{
		bytesTotal: bytesTotal,
		blockHint:  blockHint,
	}
}

// Reserve updates bytesTotal/blockHint. It must be called before Open and
// before any Allocate, per spec.md §3 "Lifecycle".
func (rf *RangeFile) Reserve(bytesTotal, blockHint int64) error {
	rf.stateMu.Lock()
	defer rf.stateMu.Unlock()

	if rf.opened {
		return ErrAlreadyOpened
	}

	if len(rf.available) != 0 || len(rf.allocated) != 0 || len(rf.finished) != 0 {
		return ErrAlreadyPopulated
	}

	rf.bytesTotal = bytesTotal
	if blockHint > 0 {
		rf.blockHint = blockHint
	}

	return nil
}

// TempPath and MetaPath return the on-disk artifact paths for destination
// P, as laid out in spec.md §3.
func TempPath(dest string) string { return dest + ".temp" }
func MetaPath(dest string) string { return dest + ".meta" }

// Open creates (or reopens) the temp file for destination path and
// restores any resumable metadata, following spec.md §4.3.1.
func (rf *RangeFile) Open(dest string) error {
	rf.stateMu.Lock()
	defer rf.stateMu.Unlock()

	if rf.opened {
		return ErrAlreadyOpened
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("rangefile: create parent directory: %w", err)
		}
	}

	tempPath := TempPath(dest)
	metaPath := MetaPath(dest)

	f, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("rangefile: open temp file: %w", err)
	}

	if rf.bytesTotal > 0 {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return fmt.Errorf("rangefile: stat temp file: %w", err)
		}

		if info.Size() != rf.bytesTotal {
			// Resize the sparse file to bytesTotal (the seek-to-end +
			// set-end-of-file dance from spec.md §4.3.1 is just ftruncate
			// in Go). A size change invalidates any prior progress.
			if err := f.Truncate(rf.bytesTotal); err != nil {
				f.Close()
				return fmt.Errorf("rangefile: resize temp file: %w", err)
			}

			if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
				f.Close()
				return fmt.Errorf("rangefile: remove stale metadata: %w", err)
			}
		} else if meta, ok := rf.tryRestore(metaPath); ok {
			rf.available = meta.Available
			rf.allocated = nil
			rf.finished = meta.Finished
			rf.processed.Store(meta.Processed)
		}
	}

	rf.file = f
	rf.path = dest
	rf.opened = true

	return nil
}

// tryRestore loads metaPath and, if it matches the current configuration,
// folds any in-flight allocated ranges back into available (their reserved
// prefixes are discarded, since a crashed worker's write position cannot
// be trusted). It returns ok=false when there is nothing usable to
// restore, in which case the caller starts fresh.
func (rf *RangeFile) tryRestore(metaPath string) (Metadata, bool) {
	f, err := os.Open(metaPath)
	if err != nil {
		return Metadata{}, false
	}
	defer f.Close()

	meta, err := DecodeMetadata(f)
	if err != nil {
		return Metadata{}, false
	}

	if meta.BlockHint != rf.blockHint || meta.BytesTotal != rf.bytesTotal {
		return Metadata{}, false
	}

	processed := meta.Processed
	available := append([]interval.TrackedInterval{}, meta.Available...)

	for _, a := range meta.Allocated {
		reserved := a.Position - a.Start
		processed -= reserved

		restored := interval.Tracked(a.Start, a.End)
		available = insertSorted(available, restored)
	}

	total := sumSizes(available) + sumSizes(meta.Finished)
	if total != rf.bytesTotal {
		// Restored state doesn't add up to the configured size: discard
		// and start fresh rather than serve an inconsistent range set.
		return Metadata{}, false
	}

	return Metadata{
		BlockHint:  meta.BlockHint,
		BytesTotal: meta.BytesTotal,
		Processed:  processed,
		Available:  available,
		Finished:   append([]interval.TrackedInterval{}, meta.Finished...),
	}, true
}

// Allocate claims the lowest-addressed available interval, marking it
// Pending and moving it into the allocated set. It returns false when
// nothing is available.
func (rf *RangeFile) Allocate() (interval.TrackedInterval, bool) {
	rf.stateMu.Lock()
	defer rf.stateMu.Unlock()

	if !rf.opened || rf.bytesTotal <= 0 {
		return interval.TrackedInterval{}, false
	}

	if len(rf.available) == 0 && len(rf.allocated) == 0 && len(rf.finished) == 0 {
		rf.available = tile(rf.bytesTotal, rf.blockHint)
	}

	if len(rf.available) == 0 {
		return interval.TrackedInterval{}, false
	}

	claimed := rf.available[0]
	rf.available = rf.available[1:]

	claimed.State = interval.Pending
	claimed.Position = claimed.Start

	rf.allocated = insertSorted(rf.allocated, claimed)

	return claimed, true
}

// Fill writes n bytes from data at iv.Position (as returned by Allocate or
// a previous Fill) and mirrors the new position/state into the canonical
// allocated entry. It returns the caller's updated local copy.
func (rf *RangeFile) Fill(iv interval.TrackedInterval, data []byte, n int) (interval.TrackedInterval, error) {
	if !iv.Valid() {
		return iv, fmt.Errorf("rangefile: fill: %w", ErrIntervalNotAllocated)
	}

	if n <= 0 {
		return iv, nil
	}

	if err := rf.writeAt(iv.Position, data[:n]); err != nil {
		return iv, err
	}

	updated := iv.AdvancedBy(int64(n))

	rf.stateMu.Lock()
	idx := indexOfBounds(rf.allocated, updated.Key())
	if idx < 0 {
		rf.stateMu.Unlock()
		return updated, fmt.Errorf("rangefile: fill: %w", ErrIntervalNotAllocated)
	}

	rf.allocated[idx].Position = updated.Position
	rf.allocated[idx].State = updated.State
	rf.stateMu.Unlock()

	rf.processed.Add(int64(n))

	return updated, nil
}

// FillSequential writes n bytes from data at the file's current write
// position, for the single-connection streaming fallback (spec.md §4.3.3,
// "a second overload without an interval"). When bytesTotal is known and
// the write position reaches it, [0, bytesTotal-1] is recorded as finished
// so that Close(true) can promote the file.
func (rf *RangeFile) FillSequential(data []byte, n int) error {
	if n <= 0 {
		return nil
	}

	rf.fileMu.Lock()
	_, err := rf.file.Write(data[:n])
	var end int64
	if err == nil {
		end, err = rf.file.Seek(0, 1)
	}
	rf.fileMu.Unlock()

	if err != nil {
		return fmt.Errorf("rangefile: sequential write: %w", err)
	}

	rf.processed.Add(int64(n))

	rf.stateMu.Lock()
	if rf.bytesTotal > 0 && end >= rf.bytesTotal && len(rf.allocated) == 0 {
		whole := interval.Tracked(0, rf.bytesTotal-1).AdvancedBy(rf.bytesTotal)
		rf.available = nil
		rf.finished = []interval.TrackedInterval{whole}
	}
	rf.stateMu.Unlock()

	return nil
}

func (rf *RangeFile) writeAt(offset int64, data []byte) error {
	rf.fileMu.Lock()
	defer rf.fileMu.Unlock()

	if _, err := rf.file.Seek(offset, 0); err != nil {
		return fmt.Errorf("rangefile: seek: %w", err)
	}

	if _, err := rf.file.Write(data); err != nil {
		return fmt.Errorf("rangefile: write: %w", err)
	}

	return nil
}

// Deallocate releases iv back to available or finished depending on its
// final state, per spec.md §4.3.4.
func (rf *RangeFile) Deallocate(iv interval.TrackedInterval) bool {
	rf.stateMu.Lock()
	defer rf.stateMu.Unlock()

	idx := indexOfBounds(rf.allocated, iv.Key())
	if idx < 0 {
		return false
	}

	current := rf.allocated[idx]
	rf.allocated = append(rf.allocated[:idx], rf.allocated[idx+1:]...)

	switch current.State {
	case interval.Pending:
		current.State = interval.Unfilled
		current.Position = current.Start
		rf.available = insertSorted(rf.available, current)

	case interval.Filled:
		rf.finished = insertSorted(rf.finished, current)
		rf.finished = coalesce(rf.finished)

	case interval.Partial:
		if current.Position > current.Start {
			done := interval.Tracked(current.Start, current.Position-1)
			done.State = interval.Filled
			done.Position = done.End + 1
			rf.finished = insertSorted(rf.finished, done)
			rf.finished = coalesce(rf.finished)
		}

		if current.Position <= current.End {
			rest := interval.Tracked(current.Position, current.End)
			rf.available = insertSorted(rf.available, rest)
		}

	default:
		// Unfilled should never reach allocated; treat defensively as a
		// no-op reinsertion.
		current.State = interval.Unfilled
		current.Position = current.Start
		rf.available = insertSorted(rf.available, current)
	}

	return true
}

// Dump snapshots the current metadata and persists it to the meta side
// file via a crash-atomic unlink+rename, per spec.md §4.3.5.
func (rf *RangeFile) Dump() error {
	rf.stateMu.Lock()
	snapshot := Metadata{
		BlockHint:  rf.blockHint,
		BytesTotal: rf.bytesTotal,
		Processed:  rf.processed.Load(),
		Available:  append([]interval.TrackedInterval{}, rf.available...),
		Allocated:  append([]interval.TrackedInterval{}, rf.allocated...),
		Finished:   append([]interval.TrackedInterval{}, rf.finished...),
	}
	path := rf.path
	rf.stateMu.Unlock()

	if path == "" {
		return ErrNotOpened
	}

	rf.metaMu.Lock()
	defer rf.metaMu.Unlock()

	metaPath := MetaPath(path)
	tmpPath := metaPath + ".temp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("rangefile: create meta temp: %w", err)
	}

	if err := EncodeMetadata(f, &snapshot); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("rangefile: encode metadata: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rangefile: close meta temp: %w", err)
	}

	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		os.Remove(tmpPath)
		return fmt.Errorf("rangefile: remove old metadata: %w", err)
	}

	if err := os.Rename(tmpPath, metaPath); err != nil {
		return fmt.Errorf("rangefile: rename metadata: %w", err)
	}

	return nil
}

// IsFull reports whether finished is exactly [0, bytesTotal-1].
func (rf *RangeFile) IsFull() bool {
	rf.stateMu.Lock()
	defer rf.stateMu.Unlock()

	return rf.isFullLocked()
}

func (rf *RangeFile) isFullLocked() bool {
	if rf.bytesTotal <= 0 {
		return false
	}

	return len(rf.finished) == 1 && rf.finished[0].Start == 0 && rf.finished[0].End == rf.bytesTotal-1
}

// Processed returns the number of bytes written since Open.
func (rf *RangeFile) Processed() int64 {
	return rf.processed.Load()
}

// BytesTotal returns the configured total size, or -1 if unknown.
func (rf *RangeFile) BytesTotal() int64 {
	rf.stateMu.Lock()
	defer rf.stateMu.Unlock()

	return rf.bytesTotal
}

// Close closes the file handle and, when finished is true, promotes the
// temp file to its final name and removes the metadata side file. It
// requires that no ranges remain allocated.
func (rf *RangeFile) Close(finished bool) error {
	rf.stateMu.Lock()

	if !rf.opened {
		rf.stateMu.Unlock()
		return ErrNotOpened
	}

	if len(rf.allocated) != 0 {
		rf.stateMu.Unlock()
		return ErrAllocatedNotEmpty
	}

	full := rf.isFullLocked()
	path := rf.path
	rf.stateMu.Unlock()

	rf.fileMu.Lock()
	closeErr := rf.file.Close()
	rf.fileMu.Unlock()

	var retErr error
	if closeErr != nil {
		retErr = fmt.Errorf("rangefile: close file: %w", closeErr)
	}

	rf.stateMu.Lock()
	bytesTotal := rf.bytesTotal
	rf.stateMu.Unlock()

	if finished && bytesTotal > 0 && !full {
		retErr = ErrInvariantViolation
	} else if finished {
		if err := os.Rename(TempPath(path), path); err != nil && retErr == nil {
			retErr = fmt.Errorf("rangefile: promote temp file: %w", err)
		}

		if err := os.Remove(MetaPath(path)); err != nil && !os.IsNotExist(err) && retErr == nil {
			retErr = fmt.Errorf("rangefile: remove metadata: %w", err)
		}
	}

	rf.stateMu.Lock()
	rf.available = nil
	rf.allocated = nil
	rf.finished = nil
	rf.bytesTotal = -1
	rf.processed.Store(0)
	rf.blockHint = DefaultBlockHint
	rf.opened = false
	rf.file = nil
	rf.path = ""
	rf.stateMu.Unlock()

	return retErr
}

// tile splits [0, bytesTotal-1] into contiguous Unfilled chunks no larger
// than blockHint bytes each.
func tile(bytesTotal, blockHint int64) []interval.TrackedInterval {
	if bytesTotal <= 0 {
		return nil
	}

	var chunks []interval.TrackedInterval

	var start int64
	for start < bytesTotal {
		end := start + blockHint - 1
		if end > bytesTotal-1 {
			end = bytesTotal - 1
		}

		chunks = append(chunks, interval.Tracked(start, end))
		start = end + 1
	}

	return chunks
}

// insertSorted inserts t into set, keeping the set ordered by Start.
func insertSorted(set []interval.TrackedInterval, t interval.TrackedInterval) []interval.TrackedInterval {
	i := sort.Search(len(set), func(i int) bool { return set[i].Start > t.Start })
	set = append(set, interval.TrackedInterval{})
	copy(set[i+1:], set[i:])
	set[i] = t

	return set
}

// indexOfBounds finds the index of the entry whose Start/End match key.
func indexOfBounds(set []interval.TrackedInterval, key interval.Interval) int {
	for i, t := range set {
		if t.Start == key.Start && t.End == key.End {
			return i
		}
	}

	return -1
}

// coalesce scans an ordered set once, folding any mergeable neighbors into
// a single Filled entry whose Position is the max of the two, per spec.md
// §4.3.4.
func coalesce(set []interval.TrackedInterval) []interval.TrackedInterval {
	if len(set) < 2 {
		return set
	}

	sort.Slice(set, func(i, j int) bool { return set[i].Start < set[j].Start })

	out := make([]interval.TrackedInterval, 0, len(set))
	running := set[0]

	for _, next := range set[1:] {
		if running.Mergeable(next.Interval) {
			pos := running.Position
			if next.Position > pos {
				pos = next.Position
			}

			running.Interval = running.Union(next.Interval)
			running.Position = pos
			running.State = interval.Filled
		} else {
			out = append(out, running)
			running = next
		}
	}

	out = append(out, running)

	return out
}

func sumSizes(set []interval.TrackedInterval) int64 {
	var total int64
	for _, t := range set {
		total += t.Size()
	}

	return total
}
