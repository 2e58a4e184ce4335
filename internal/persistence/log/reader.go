package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"skirmish.gg/internal/sim/world"
)

// Files lists the journal files for prefix under dir, oldest first. The hour
// stamp in the name sorts lexically.
func Files(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadJSONL calls fn for every line of a zstd compressed JSONL file.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), n, err)
		}
	}
	return sc.Err()
}

// ReadDeliveries replays every delivery in the journal under worldDir.
func ReadDeliveries(worldDir string, fn func(world.DeliveryRecord) error) error {
	return readStream(worldDir, DeliveryStream, fn)
}

// ReadTicks replays every tick entry in the journal under worldDir. It
// returns ErrNoJournal when nothing was ever written.
func ReadTicks(worldDir string, fn func(world.TickLogEntry) error) error {
	return readStream(worldDir, TickStream, fn)
}

var ErrNoJournal = errors.New("log: no journal files")

func readStream[T any](worldDir, name string, fn func(T) error) error {
	files, err := Files(filepath.Join(worldDir, name), name)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoJournal
		}
		return err
	}
	if len(files) == 0 {
		return ErrNoJournal
	}
	for _, path := range files {
		err := ReadJSONL(path, func(line []byte) error {
			var v T
			if err := json.Unmarshal(line, &v); err != nil {
				return err
			}
			return fn(v)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
