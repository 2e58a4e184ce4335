package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"skirmish.gg/internal/sim/world/logic/mathx"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// stateDigest hashes the gameplay state in character id order. Session data
// (tokens, session ids, clients) stays out so replays reproduce it.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(len(w.chars)))
	for _, id := range w.sortedCharacterIDs() {
		c := w.chars[id]
		h.Write([]byte(c.id))
		h.Write([]byte{0})
		digestWriteF64(h, &tmp, c.pos.X)
		digestWriteF64(h, &tmp, c.pos.Y)
		digestWriteF64(h, &tmp, c.vel.X)
		digestWriteF64(h, &tmp, c.vel.Y)
		digestWriteF64(h, &tmp, c.health)
		digestWriteF64(h, &tmp, c.stun)
		h.Write([]byte{boolByte(c.alive), boolByte(c.detached)})
		digestWriteU64(h, &tmp, uint64(c.dodge.Counter()))
		digestWriteU64(h, &tmp, uint64(c.inv.Held()))
		digestWriteU64(h, &tmp, uint64(c.kills))
		digestWriteU64(h, &tmp, uint64(c.deaths))
		h.Write([]byte(c.activityName()))
		h.Write([]byte{0})
	}
	for _, v := range w.field.Volumes() {
		digestWriteF64(h, &tmp, v.Cooldown())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest is the digest of the state at the current tick boundary.
func (w *World) StateDigest() string {
	return w.stateDigest(w.tick.Load())
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

// digestWriteF64 rounds first so float noise below a millimetre does not
// change the digest.
func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(mathx.Round3(v)))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
