// Copyright (c) 2026, The Flatten Authors.
// See LICENSE for licensing information.

package flatten

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// SeedFlag holds the seed material for a Transformer's random engine. It
// implements flag.Value so hosts can expose it directly as a -seed flag: the
// literal "random" draws fresh seed material from the system's entropy, and
// any other non-empty string is used as seed material verbatim. The zero
// value means "no seed given".
type SeedFlag struct {
	random bool
	bytes  []byte
}

func (f SeedFlag) present() bool { return len(f.bytes) > 0 }

// Random reports whether the seed came from "-seed=random" rather than an
// explicit value.
func (f SeedFlag) Random() bool { return f.random }

func (f SeedFlag) String() string {
	return base64.RawStdEncoding.EncodeToString(f.bytes)
}

func (f *SeedFlag) Set(s string) error {
	switch s {
	case "":
		return fmt.Errorf("seed needs a non-empty value")
	case "random":
		f.random = true
		f.bytes = make([]byte, 16)
		if _, err := cryptorand.Read(f.bytes); err != nil {
			return fmt.Errorf("error generating random seed: %v", err)
		}
	default:
		f.random = false
		f.bytes = []byte(s)
	}
	return nil
}

// engineSeed hashes the seed material down to the 64 bits the engine takes.
// Hashing spreads short human-typed seeds over the whole seed space.
func (f SeedFlag) engineSeed() int64 {
	sum := sha256.Sum256(f.bytes)
	return int64(binary.LittleEndian.Uint64(sum[:8]))
}
