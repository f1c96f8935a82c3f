package model

import "time"

// Record is a stored value addressed by the (Owner, Key) pair.
// Owner is a client-supplied namespace, not an authenticated identity.
type Record struct {
	Owner     string    `json:"owner"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
