package chess

import (
	"fmt"
	"strings"
)

// Color is the sign of a piece on the board.
type Color int8

const (
	NoColor Color = 0
	White   Color = 1
	Black   Color = -1
)

func (c Color) Opposite() Color { return -c }

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return "none"
	}
}

// ParseColor accepts "white"/"w" and "black"/"b".
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return NoColor, false
	}
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Color) UnmarshalText(b []byte) error {
	v, ok := ParseColor(string(b))
	if !ok {
		return fmt.Errorf("invalid color %q", string(b))
	}
	*c = v
	return nil
}

// index maps a color onto [0,1] for per-color arrays.
func (c Color) index() int {
	if c == Black {
		return 1
	}
	return 0
}

// PieceType is the magnitude of a piece on the board.
type PieceType int8

const (
	NoPieceType PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

func (t PieceType) String() string {
	switch t {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	default:
		return ""
	}
}

// Letter returns the lowercase algebraic letter ("n" for knight, "" for none).
func (t PieceType) Letter() string {
	switch t {
	case Pawn:
		return "p"
	case Knight:
		return "n"
	case Bishop:
		return "b"
	case Rook:
		return "r"
	case Queen:
		return "q"
	case King:
		return "k"
	default:
		return ""
	}
}

// ParsePieceType accepts piece letters and names, case-insensitively.
func ParsePieceType(s string) (PieceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "pawn":
		return Pawn, true
	case "n", "knight":
		return Knight, true
	case "b", "bishop":
		return Bishop, true
	case "r", "rook":
		return Rook, true
	case "q", "queen":
		return Queen, true
	case "k", "king":
		return King, true
	default:
		return NoPieceType, false
	}
}

// IsPromotionChoice reports whether a pawn may become t.
func (t PieceType) IsPromotionChoice() bool {
	return t == Knight || t == Bishop || t == Rook || t == Queen
}

// Piece is a signed board cell: zero is empty, the sign is the color and the
// magnitude is the PieceType.
type Piece int8

const Empty Piece = 0

func NewPiece(c Color, t PieceType) Piece { return Piece(int8(c) * int8(t)) }

func (p Piece) Color() Color {
	switch {
	case p > 0:
		return White
	case p < 0:
		return Black
	default:
		return NoColor
	}
}

func (p Piece) Type() PieceType {
	if p < 0 {
		return PieceType(-p)
	}
	return PieceType(p)
}

func (p Piece) IsEmpty() bool { return p == Empty }

// FENRune returns the FEN letter: uppercase for white, '.' for empty.
func (p Piece) FENRune() rune {
	l := p.Type().Letter()
	if l == "" {
		return '.'
	}
	r := rune(l[0])
	if p.Color() == White {
		r = r - 'a' + 'A'
	}
	return r
}
