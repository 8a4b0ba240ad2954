// Package idgen generates short random identifiers for transient,
// client-side objects: notifications and drag sessions. Deals and stages
// use numeric ids assigned by the server and never go through here.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the kinds of ids handed out.
const (
	PrefixNotification = "nt-"
	PrefixSession      = "ds-"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters after the prefix.
const Length = 10

var fallback atomic.Uint64

// New returns prefix followed by Length random characters.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Notification returns an id for a notification. If the random source
// fails it falls back to a process-local sequence, since a notification
// must never be dropped for want of an id.
func Notification() string {
	return mustOrSequence(PrefixNotification)
}

// Session returns an id for a drag session.
func Session() string {
	return mustOrSequence(PrefixSession)
}

func mustOrSequence(prefix string) string {
	id, err := New(prefix)
	if err != nil {
		return prefix + "seq" + strconv.FormatUint(fallback.Add(1), 10)
	}
	return id
}
