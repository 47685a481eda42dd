package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	Tick    int64  `json:"tick"`
	Digest  string `json:"digest"`
}

// SnapshotV1 is the on-disk form of one published tick.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed          int64  `json:"seed"`
	MillisPerTick int64  `json:"millis_per_tick"`
	PaletteDigest string `json:"palette_digest"`

	Cuboids   []CuboidV1   `json:"cuboids"`
	Entities  []EntityV1   `json:"entities"`
	Creatures []CreatureV1 `json:"creatures"`
	Commits   []CommitV1   `json:"commits"`
}

type CuboidV1 struct {
	Addr   [3]int     `json:"addr"`
	RLE    string     `json:"rle"`
	Damage []DamageV1 `json:"damage,omitempty"`
}

type DamageV1 struct {
	Index  int    `json:"index"`
	Damage uint16 `json:"damage"`
}

type EntityV1 struct {
	ID        int32          `json:"id"`
	Pos       [3]int32       `json:"pos"`
	Health    int            `json:"health"`
	Inventory map[string]int `json:"inventory,omitempty"`
	Weight    int            `json:"weight"`
	Selected  string         `json:"selected,omitempty"`
}

type CreatureV1 struct {
	ID     int32    `json:"id"`
	Type   string   `json:"type"`
	Pos    [3]int32 `json:"pos"`
	Health int      `json:"health"`
}

type CommitV1 struct {
	Entity int32 `json:"entity"`
	Level  int64 `json:"level"`
}

// Path is where the snapshot of tick lives under dir.
func Path(dir string, tick int64) string {
	return filepath.Join(dir, fmt.Sprintf("%012d.snap.zst", tick))
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Write to a temp file and rename so readers never see a torn snapshot.
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d, want %d", snap.Header.Version, Version)
	}
	return snap, nil
}
