// Package idgen produces short, URL-safe identifiers for requests and
// backup snapshots. The random part comes from nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for each kind of identifier.
const (
	RequestPrefix  = "req-"
	SnapshotPrefix = "snap-"
)

// Alphabet is the character set of the random part.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters (excluding the prefix).
const Length = 12

// New returns prefix followed by Length random characters.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// RequestID returns a new request identifier. It never fails: if the
// random source is unavailable the bare prefix is returned.
func RequestID() string {
	id, err := New(RequestPrefix)
	if err != nil {
		return RequestPrefix + "unknown"
	}
	return id
}

// SnapshotID returns a new backup snapshot identifier.
func SnapshotID() (string, error) {
	return New(SnapshotPrefix)
}
