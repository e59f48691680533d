package rangefile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/NamanBalaji/rangedl/internal/interval"
)

// metadataVersion is bumped whenever the on-disk layout changes. The format
// is not a compatibility surface across versions: a mismatch causes the
// stored metadata to be discarded rather than rejected outright (spec.md
// §6, "Wire behavior").
const metadataVersion uint8 = 1

var metadataMagic = [4]byte{'R', 'G', 'F', '1'}

// ErrBadMetadata is returned by DecodeMetadata when the stream does not
// start with the expected magic/version header.
var ErrBadMetadata = errors.New("rangefile: unrecognized metadata format")

// Metadata is the serializable snapshot of a RangeFile: the block hint,
// total size, processed-byte count, and the three interval sets.
type Metadata struct {
	BlockHint  int64
	BytesTotal int64
	Processed  int64
	Available  []interval.TrackedInterval
	Allocated  []interval.TrackedInterval
	Finished   []interval.TrackedInterval
}

// EncodeMetadata writes m to w using a small varint-based binary format,
// the same style the corpus uses for partial-download side files (a magic,
// a version byte, then a flat sequence of binary.PutVarint fields) rather
// than a general-purpose serialization library.
func EncodeMetadata(w io.Writer, m *Metadata) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(metadataMagic[:]); err != nil {
		return err
	}

	if err := bw.WriteByte(metadataVersion); err != nil {
		return err
	}

	buf := make([]byte, binary.MaxVarintLen64)

	putVarint := func(v int64) error {
		n := binary.PutVarint(buf, v)
		_, err := bw.Write(buf[:n])
		return err
	}

	if err := putVarint(m.BlockHint); err != nil {
		return err
	}

	if err := putVarint(m.BytesTotal); err != nil {
		return err
	}

	if err := putVarint(m.Processed); err != nil {
		return err
	}

	sets := [][]interval.TrackedInterval{m.Available, m.Allocated, m.Finished}
	for _, set := range sets {
		if err := putVarint(int64(len(set))); err != nil {
			return err
		}

		for _, t := range set {
			if err := putVarint(t.Start); err != nil {
				return err
			}

			if err := putVarint(t.End); err != nil {
				return err
			}

			if err := putVarint(t.Position); err != nil {
				return err
			}

			if err := bw.WriteByte(byte(t.State)); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// DecodeMetadata reads a Metadata snapshot previously written by
// EncodeMetadata. It returns ErrBadMetadata when the header does not match,
// so callers can treat that as "discard and start fresh" rather than a hard
// failure.
func DecodeMetadata(r io.Reader) (*Metadata, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMetadata
		}

		return nil, err
	}

	if magic != metadataMagic {
		return nil, ErrBadMetadata
	}

	version, err := br.ReadByte()
	if err != nil {
		return nil, ErrBadMetadata
	}

	if version != metadataVersion {
		return nil, ErrBadMetadata
	}

	getVarint := func() (int64, error) {
		v, err := binary.ReadVarint(br)
		if err != nil {
			return 0, fmt.Errorf("rangefile: corrupt metadata: %w", err)
		}

		return v, nil
	}

	m := &Metadata{}

	if m.BlockHint, err = getVarint(); err != nil {
		return nil, err
	}

	if m.BytesTotal, err = getVarint(); err != nil {
		return nil, err
	}

	if m.Processed, err = getVarint(); err != nil {
		return nil, err
	}

	dests := []*[]interval.TrackedInterval{&m.Available, &m.Allocated, &m.Finished}
	for _, dest := range dests {
		count, err := getVarint()
		if err != nil {
			return nil, err
		}

		if count < 0 || count > 1<<20 {
			return nil, fmt.Errorf("rangefile: corrupt metadata: implausible set size %d", count)
		}

		set := make([]interval.TrackedInterval, 0, count)

		for i := int64(0); i < count; i++ {
			start, err := getVarint()
			if err != nil {
				return nil, err
			}

			end, err := getVarint()
			if err != nil {
				return nil, err
			}

			pos, err := getVarint()
			if err != nil {
				return nil, err
			}

			stateByte, err := br.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("rangefile: corrupt metadata: %w", err)
			}

			set = append(set, interval.TrackedInterval{
				Interval: interval.New(start, end),
				Position: pos,
				State:    interval.State(stateByte),
			})
		}

		*dest = set
	}

	return m, nil
}
