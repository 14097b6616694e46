package pvpchan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/chess"
	"github.com/park285/Cheese-RelayChess/internal/kvstore"
	"github.com/park285/Cheese-RelayChess/internal/obslog"
)

const (
	joinedNo  = "0"
	joinedYes = "1"
)

var ErrInvalidArgs = errf("invalid arguments")

// Manager opens rooms on a shared store. It holds no per-room state.
type Manager struct {
	store kvstore.Store
}

func NewManager(store kvstore.Store) *Manager {
	return &Manager{store: store}
}

// Channel is one side of a room: the code, the local color and the store the
// opponent is reached through.
type Channel struct {
	store kvstore.Store
	code  string
	color chess.Color

	mu    sync.Mutex
	state RoomState
}

func (c *Channel) Code() string       { return c.code }
func (c *Channel) Color() chess.Color { return c.color }

func (c *Channel) State() RoomState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s RoomState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func parseChoice(pref ColorChoice) (chess.Color, error) {
	switch ColorChoice(strings.ToLower(strings.TrimSpace(string(pref)))) {
	case ColorWhite:
		return chess.White, nil
	case ColorBlack:
		return chess.Black, nil
	case ColorRandom, "":
		return randomColor()
	default:
		return chess.NoColor, fmt.Errorf("%w: color %q", ErrInvalidArgs, pref)
	}
}

// Host allocates a fresh room code and publishes {joined: 0, hostColor}.
// The returned channel is waiting for an opponent; see WaitOpponent.
func (m *Manager) Host(ctx context.Context, pref ColorChoice) (*Channel, error) {
	color, err := parseChoice(pref)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 5; i++ {
		code, err := codeGen()
		if err != nil {
			return nil, err
		}
		// hostColor claims the code and goes first, so a joiner that sees
		// joined can always read it
		ok, err := m.store.SetIfAbsent(ctx, keyHostColor(code), []byte(color.String()))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := m.store.Set(ctx, keyJoined(code), []byte(joinedNo)); err != nil {
			return nil, err
		}
		obslog.L().Info("room_host", zap.String("code", code), zap.String("color", color.String()))
		return &Channel{store: m.store, code: code, color: color, state: StateHosting}, nil
	}
	return nil, ErrCodeExhausted
}

// Join takes the second seat of an existing room and plays the color
// opposite the host's. The seat is taken by swapping joined from 0 to 1, so
// of two racing joiners exactly one gets in.
func (m *Manager) Join(ctx context.Context, rawCode string) (*Channel, error) {
	code, err := NormalizeCode(rawCode)
	if err != nil {
		return nil, err
	}
	if err := m.checkOpen(ctx, code); err != nil {
		return nil, err
	}
	raw, err := m.store.Get(ctx, keyHostColor(code))
	if err != nil {
		return nil, err
	}
	host, ok := chess.ParseColor(string(raw))
	if !ok {
		return nil, fmt.Errorf("%w: host color %q", ErrRoomNotFound, raw)
	}
	swapped, err := m.store.CompareAndSwap(ctx, keyJoined(code), []byte(joinedNo), []byte(joinedYes))
	if err != nil {
		return nil, err
	}
	if !swapped {
		// lost the seat, or the room went away meanwhile
		if err := m.checkOpen(ctx, code); err != nil {
			return nil, err
		}
		return nil, ErrRoomFull
	}
	color := host.Opposite()
	obslog.L().Info("room_join", zap.String("code", code), zap.String("color", color.String()))
	return &Channel{store: m.store, code: code, color: color, state: StateActive}, nil
}

// checkOpen reports ErrRoomFull or ErrRoomNotFound unless the room still
// waits for its joiner.
func (m *Manager) checkOpen(ctx context.Context, code string) error {
	joined, err := m.store.Get(ctx, keyJoined(code))
	if err != nil {
		return err
	}
	switch string(joined) {
	case joinedNo:
		return nil
	case joinedYes:
		return ErrRoomFull
	default:
		return ErrRoomNotFound
	}
}

// WaitOpponent blocks the host until the joiner flips joined to 1.
func (c *Channel) WaitOpponent(ctx context.Context) error {
	if c.State() == StateClosed {
		return ErrRoomClosed
	}
	if _, err := c.store.WaitFor(ctx, keyJoined(c.code), []byte(joinedYes)); err != nil {
		return err
	}
	c.setState(StateActive)
	obslog.L().Info("room_opponent_joined", zap.String("code", c.code))
	return nil
}

// SendMove publishes a local move under <code>/<color>Move. Promotions must
// already be resolved.
func (c *Channel) SendMove(ctx context.Context, m chess.Move) error {
	if c.State() == StateClosed {
		return ErrRoomClosed
	}
	if m.NeedsPromotion() {
		return fmt.Errorf("%w: unresolved promotion %s", ErrInvalidArgs, m)
	}
	raw, err := json.Marshal(RecordFor(m))
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, keyMove(c.code, c.color), raw); err != nil {
		return err
	}
	obslog.L().Debug("room_move_sent", zap.String("code", c.code), zap.String("move", m.UCI()))
	return nil
}

// wireRecord detects missing fields, which the plain record would zero-fill.
type wireRecord struct {
	From    *[2]int `json:"from"`
	To      *[2]int `json:"to"`
	Promote *string `json:"promote"`
}

func decodeRecord(raw []byte) (MoveRecord, error) {
	var w wireRecord
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return MoveRecord{}, fmt.Errorf("%w: %v", ErrMalformedMove, err)
	}
	if w.From == nil || w.To == nil || w.Promote == nil {
		return MoveRecord{}, fmt.Errorf("%w: missing field in %s", ErrMalformedMove, raw)
	}
	rec := MoveRecord{From: *w.From, To: *w.To, Promote: strings.ToLower(*w.Promote)}
	if err := rec.validate(); err != nil {
		return MoveRecord{}, err
	}
	return rec, nil
}

// ReceiveMove blocks until the opponent's record appears, deletes it so the
// path is clear for the next ply and returns it decoded. Legality against
// the local position is checked by MoveRecord.Resolve.
func (c *Channel) ReceiveMove(ctx context.Context) (MoveRecord, error) {
	if c.State() == StateClosed {
		return MoveRecord{}, ErrRoomClosed
	}
	path := keyMove(c.code, c.color.Opposite())
	raw, err := c.store.WaitFor(ctx, path, nil)
	if err != nil {
		return MoveRecord{}, err
	}
	if err := c.store.Delete(ctx, path); err != nil {
		return MoveRecord{}, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		obslog.L().Warn("room_move_malformed", zap.String("code", c.code), zap.ByteString("raw", raw), zap.Error(err))
		return MoveRecord{}, err
	}
	obslog.L().Debug("room_move_received", zap.String("code", c.code), zap.Any("record", rec))
	return rec, nil
}

// Close removes every key of the room. It is safe to call more than once and
// from either side.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	var firstErr error
	for _, k := range roomKeys(c.code) {
		if err := c.store.Delete(ctx, k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	obslog.L().Info("room_close", zap.String("code", c.code), zap.Error(firstErr))
	return firstErr
}
