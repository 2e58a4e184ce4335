package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// ArenaSnapshot is the restorable state of an arena at a tick boundary.
type ArenaSnapshot struct {
	Header Header `json:"header"`

	Seed     int64 `json:"seed"`
	TickRate int   `json:"tick_rate_hz"`

	// PowerUpDigest guards against restoring held ids under another palette.
	PowerUpDigest string `json:"powerup_digest"`

	NextCharacter uint64        `json:"next_character"`
	Characters    []CharacterV1 `json:"characters"`
	Pickups       []PickupV1    `json:"pickups"`
}

type CharacterV1 struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ResumeToken string     `json:"resume_token"`
	Pos         [2]float64 `json:"pos"`
	Vel         [2]float64 `json:"vel"`
	Facing      [2]float64 `json:"facing"`
	Health      float64    `json:"health"`
	Alive       bool       `json:"alive"`
	RespawnIn   float64    `json:"respawn_in"`
	HeldPowerUp uint16     `json:"held_powerup"`
	Effects     []EffectV1 `json:"effects,omitempty"`
	Kills       int        `json:"kills"`
	Deaths      int        `json:"deaths"`
	Dealt       float64    `json:"dealt"`
	Taken       float64    `json:"taken"`
}

type EffectV1 struct {
	Kind      uint8   `json:"kind"`
	Magnitude float64 `json:"magnitude"`
	Duration  float64 `json:"duration"`
}

type PickupV1 struct {
	Name     string  `json:"name"`
	Cooldown float64 `json:"cooldown"`
}

func WriteSnapshot(path string, snap ArenaSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (ArenaSnapshot, error) {
	var snap ArenaSnapshot
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

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is for tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// FileName is the on-disk name for a snapshot taken at tick.
func FileName(tick uint64) string {
	return fmt.Sprintf("%012d.snap.zst", tick)
}

// Latest returns the path of the newest snapshot in dir, or "" if there is
// none.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var ticks []uint64
	names := map[uint64]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, t)
		names[t] = name
	}
	if len(ticks) == 0 {
		return "", nil
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	return filepath.Join(dir, names[ticks[len(ticks)-1]]), nil
}
