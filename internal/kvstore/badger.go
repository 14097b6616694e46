package kvstore

import (
	"bytes"
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/obslog"
)

// BadgerStore is an embedded alternative for two sessions sharing one
// process or one data directory.
type BadgerStore struct {
	db    *badger.DB
	opts  Options
	owned bool
}

func NewBadgerStore(db *badger.DB, opts Options) *BadgerStore {
	return &BadgerStore{db: db, opts: opts}
}

// OpenBadger opens dir, or an in-memory database when dir is empty.
func OpenBadger(dir string, opts Options) (*BadgerStore, error) {
	bo := badger.DefaultOptions(dir)
	if dir == "" {
		bo = bo.WithInMemory(true)
	}
	bo.Logger = nil
	db, err := badger.Open(bo)
	if err != nil {
		return nil, unavailable("open", dir, err)
	}
	obslog.L().Info("kvstore_badger_open", zap.String("dir", dir), zap.String("prefix", opts.Prefix))
	return &BadgerStore{db: db, opts: opts, owned: true}, nil
}

func (s *BadgerStore) Get(_ context.Context, path string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(s.opts.key(path)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, unavailable("get", path, err)
	}
	return out, nil
}

func (s *BadgerStore) Set(_ context.Context, path string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(s.opts.key(path)), value)
		if s.opts.TTL > 0 {
			e = e.WithTTL(s.opts.TTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return unavailable("set", path, err)
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, path string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(s.opts.key(path)))
	})
	if err != nil {
		return unavailable("delete", path, err)
	}
	return nil
}

func (s *BadgerStore) SetIfAbsent(_ context.Context, path string, value []byte) (bool, error) {
	return s.setWhen("setnx", path, value, func(_ []byte, found bool) bool { return !found })
}

func (s *BadgerStore) CompareAndSwap(_ context.Context, path string, old, value []byte) (bool, error) {
	return s.setWhen("cas", path, value, func(cur []byte, found bool) bool {
		return found && bytes.Equal(cur, old)
	})
}

// setWhen writes value if cond holds for the current value, inside one
// transaction. A concurrent commit to the key surfaces as ErrConflict and the
// check is retried.
func (s *BadgerStore) setWhen(op, path string, value []byte, cond func(cur []byte, found bool) bool) (bool, error) {
	key := []byte(s.opts.key(path))
	for i := 0; i < casAttempts; i++ {
		written := false
		err := s.db.Update(func(txn *badger.Txn) error {
			var cur []byte
			found := true
			item, err := txn.Get(key)
			switch {
			case err == badger.ErrKeyNotFound:
				found = false
			case err != nil:
				return err
			default:
				if cur, err = item.ValueCopy(nil); err != nil {
					return err
				}
			}
			if !cond(cur, found) {
				return nil
			}
			e := badger.NewEntry(key, value)
			if s.opts.TTL > 0 {
				e = e.WithTTL(s.opts.TTL)
			}
			if err := txn.SetEntry(e); err != nil {
				return err
			}
			written = true
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return false, unavailable(op, path, err)
		}
		return written, nil
	}
	return false, unavailable(op, path, errContention)
}

// WaitFor watches the key through Badger's change subscription. The
// subscription registers asynchronously, so PollInterval also covers a write
// racing the first read.
func (s *BadgerStore) WaitFor(ctx context.Context, path string, expected []byte) ([]byte, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	notify := make(chan struct{}, 1)
	subErr := make(chan error, 1)
	key := []byte(s.opts.key(path))
	go func() {
		subErr <- s.db.Subscribe(subCtx, func(*badger.KVList) error {
			select {
			case notify <- struct{}{}:
			default:
			}
			return nil
		}, []pb.Match{{Prefix: key}})
	}()

	if v, err := s.Get(ctx, path); err != nil || matches(v, expected) {
		return v, err
	}

	tick, stop := pollTicker(s.opts.PollInterval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-subErr:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err == nil {
				err = errors.New("subscription ended")
			}
			return nil, unavailable("wait", path, err)
		case <-notify:
		case <-tick:
		}
		v, err := s.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		if matches(v, expected) {
			return v, nil
		}
	}
}

func (s *BadgerStore) Close() error {
	if s == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}
