package itempack

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"skirmish.gg/internal/sim/world/feature/powerups"
	"skirmish.gg/internal/sim/world/logic/mathx"
)

//go:embed pack.schema.json
var schemaJSON string

var packSchema = jsonschema.MustCompileString("itempack.schema.json", schemaJSON)

const defaultRadius = 1

type Pickup struct {
	Name           string     `json:"name"`
	PowerUp        string     `json:"powerup"`
	Pos            [2]float64 `json:"pos"`
	Radius         float64    `json:"radius,omitempty"`
	RespawnSeconds float64    `json:"respawn_seconds,omitempty"`
}

// Pack is a set of pickup placements. Fields not declared here are ignored
// when reading and dropped when writing.
type Pack struct {
	ID      string   `json:"id"`
	Version string   `json:"version,omitempty"`
	Pickups []Pickup `json:"pickups"`
}

func Parse(b []byte) (Pack, error) {
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return Pack{}, fmt.Errorf("itempack: %w", err)
	}
	if err := packSchema.Validate(doc); err != nil {
		return Pack{}, fmt.Errorf("itempack: %w", err)
	}
	var p Pack
	if err := json.Unmarshal(b, &p); err != nil {
		return Pack{}, fmt.Errorf("itempack: %w", err)
	}
	return p, nil
}

func Marshal(p Pack) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Load(path string) (Pack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, err
	}
	p, err := Parse(b)
	if err != nil {
		return Pack{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadDir reads every *.json file of dir in name order. A missing directory
// yields no packs.
func LoadDir(dir string) ([]Pack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	out := make([]Pack, 0, len(names))
	for _, n := range names {
		p, err := Load(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Volumes turns the placements of packs into pickup volumes. Names are
// prefixed with the pack id so two packs can reuse a name.
func Volumes(packs []Pack) []powerups.Volume {
	var out []powerups.Volume
	for _, p := range packs {
		for _, pk := range p.Pickups {
			r := pk.Radius
			if r <= 0 {
				r = defaultRadius
			}
			out = append(out, powerups.Volume{
				Name:    p.ID + "/" + pk.Name,
				Key:     pk.PowerUp,
				Pos:     mathx.FromArray(pk.Pos),
				Radius:  r,
				Respawn: pk.RespawnSeconds,
			})
		}
	}
	return out
}

// Digest hashes the canonical encoding of packs.
func Digest(packs []Pack) string {
	b, _ := json.Marshal(packs)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
