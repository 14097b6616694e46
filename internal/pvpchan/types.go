package pvpchan

import (
	"fmt"

	"github.com/park285/Cheese-RelayChess/internal/chess"
)

// RoomState is the local view of a room's lifecycle.
type RoomState string

const (
	StateHosting RoomState = "HOSTING"
	StateActive  RoomState = "ACTIVE"
	StateClosed  RoomState = "CLOSED"
)

// ColorChoice is the host's textual color preference.
type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

// MoveRecord is the JSON payload stored under <code>/<color>Move.
// Squares are [rank, file] pairs; Promote is "q", "r", "b", "n" or "".
type MoveRecord struct {
	From    [2]int `json:"from"`
	To      [2]int `json:"to"`
	Promote string `json:"promote"`
}

// RecordFor encodes a move that is about to be (or was just) applied.
func RecordFor(m chess.Move) MoveRecord {
	rec := MoveRecord{
		From: [2]int{m.From.Rank, m.From.File},
		To:   [2]int{m.To.Rank, m.To.File},
	}
	if m.Kind == chess.Promotion && !m.Promotion.IsEmpty() {
		rec.Promote = m.Promotion.Type().Letter()
	}
	return rec
}

func (r MoveRecord) from() chess.Square { return chess.Sq(r.From[0], r.From[1]) }
func (r MoveRecord) to() chess.Square   { return chess.Sq(r.To[0], r.To[1]) }

func (r MoveRecord) validate() error {
	if !r.from().Valid() || !r.to().Valid() {
		return fmt.Errorf("%w: square out of range %v -> %v", ErrMalformedMove, r.From, r.To)
	}
	if r.Promote != "" {
		t, ok := chess.ParsePieceType(r.Promote)
		if !ok || !t.IsPromotionChoice() || len(r.Promote) != 1 {
			return fmt.Errorf("%w: promote %q", ErrMalformedMove, r.Promote)
		}
	}
	return nil
}

// Resolve matches the record against the legal moves of mover in p. A record
// that names no legal move, omits a required promotion or adds a promotion to
// an ordinary move is malformed.
func (r MoveRecord) Resolve(p *chess.Position, mover chess.Color) (chess.Move, error) {
	if err := r.validate(); err != nil {
		return chess.Move{}, err
	}
	if p.At(r.from()).Color() != mover {
		return chess.Move{}, fmt.Errorf("%w: no %s piece on %s", ErrMalformedMove, mover, r.from())
	}
	m, ok := p.FindLegalMove(r.from(), r.to())
	if !ok {
		return chess.Move{}, fmt.Errorf("%w: illegal move %s%s", ErrMalformedMove, r.from(), r.to())
	}
	switch {
	case m.Kind == chess.Promotion && r.Promote == "":
		return chess.Move{}, fmt.Errorf("%w: missing promotion for %s", ErrMalformedMove, m)
	case m.Kind != chess.Promotion && r.Promote != "":
		return chess.Move{}, fmt.Errorf("%w: promotion on ordinary move %s", ErrMalformedMove, m)
	case m.Kind == chess.Promotion:
		t, _ := chess.ParsePieceType(r.Promote)
		m = m.Promote(t)
	}
	return m, nil
}

var (
	ErrInvalidCode   = errf("room code must be 4 letters")
	ErrRoomNotFound  = errf("room not found or expired")
	ErrRoomFull      = errf("room already has two players")
	ErrMalformedMove = errf("malformed move record")
	ErrRoomClosed    = errf("room closed")
	ErrCodeExhausted = errf("failed to allocate room code")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
