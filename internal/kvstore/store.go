// Package kvstore is the shared key-value store two remote players meet in.
// Paths are plain strings such as "ABCD/whiteMove"; backends add their own
// key prefix.
package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnavailable wraps every backend failure. Callers surface it as a
// connectivity problem; the store client owns any retry policy.
var ErrUnavailable = errors.New("kvstore: store unavailable")

// Store is the remote store protocol.
type Store interface {
	// Get returns nil, nil when path is absent.
	Get(ctx context.Context, path string) ([]byte, error)
	Set(ctx context.Context, path string, value []byte) error
	Delete(ctx context.Context, path string) error
	// SetIfAbsent writes value only when path holds nothing and reports
	// whether it did.
	SetIfAbsent(ctx context.Context, path string, value []byte) (bool, error)
	// CompareAndSwap replaces old with value in one step. It reports false
	// when path held anything else, absence included.
	CompareAndSwap(ctx context.Context, path string, old, value []byte) (bool, error)
	// WaitFor blocks until path holds expected, or any value when expected
	// is nil, and returns that value. It ends early with ctx.Err().
	WaitFor(ctx context.Context, path string, expected []byte) ([]byte, error)
	Close() error
}

type Options struct {
	Prefix string
	TTL    time.Duration
	// PollInterval re-reads the path while waiting in case a notification
	// was missed. Zero relies on notifications alone.
	PollInterval time.Duration
	// HealthInterval pings a networked backend while waiting so a lost
	// connection ends the wait with ErrUnavailable. Zero means one second.
	HealthInterval time.Duration
}

const (
	defaultHealthInterval = time.Second
	// casAttempts bounds retries of a conditional write that lost a race
	// with another writer.
	casAttempts = 5
)

func DefaultOptions() Options {
	return Options{
		Prefix:         "chess:",
		TTL:            24 * time.Hour,
		PollInterval:   500 * time.Millisecond,
		HealthInterval: defaultHealthInterval,
	}
}

func (o Options) healthInterval() time.Duration {
	if o.HealthInterval <= 0 {
		return defaultHealthInterval
	}
	return o.HealthInterval
}

func (o Options) key(path string) string { return o.Prefix + strings.TrimSpace(path) }

func matches(value, expected []byte) bool {
	if value == nil {
		return false
	}
	return expected == nil || bytes.Equal(value, expected)
}

var errContention = errors.New("conditional write kept losing to other writers")

func unavailable(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, op, path, err)
}

// pollTicker returns a nil channel when polling is off, which blocks forever
// in a select.
func pollTicker(interval time.Duration) (<-chan time.Time, func()) {
	if interval <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(interval)
	return t.C, t.Stop
}
