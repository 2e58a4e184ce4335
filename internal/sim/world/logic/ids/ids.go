package ids

import (
	"strconv"
	"strings"
)

const (
	CharacterPrefix = "P"
	ObserverPrefix  = "O"
)

func Character(n uint64) string { return CharacterPrefix + strconv.FormatUint(n, 10) }
func Observer(n uint64) string  { return ObserverPrefix + strconv.FormatUint(n, 10) }

func ParseUintAfterPrefix(prefix, id string) (uint64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(id[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Less orders character ids by their number, falling back to string order
// for ids without one.
func Less(a, b string) bool {
	na, okA := ParseUintAfterPrefix(CharacterPrefix, a)
	nb, okB := ParseUintAfterPrefix(CharacterPrefix, b)
	if okA && okB {
		return na < nb
	}
	if okA != okB {
		return okA
	}
	return a < b
}
