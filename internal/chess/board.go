package chess

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSquare = errors.New("invalid square")

// Square addresses a board cell. Rank 0 is White's back rank, File 0 is the a-file.
type Square struct {
	Rank int
	File int
}

func Sq(rank, file int) Square { return Square{Rank: rank, File: file} }

func (s Square) Valid() bool {
	return s.Rank >= 0 && s.Rank < 8 && s.File >= 0 && s.File < 8
}

// String renders algebraic coordinates ("e4").
func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.File), byte('1' + s.Rank)})
}

func (s Square) offset(dr, df int) Square { return Square{Rank: s.Rank + dr, File: s.File + df} }

// ParseSquare parses algebraic coordinates such as "e4".
func ParseSquare(raw string) (Square, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if len(v) != 2 {
		return Square{}, fmt.Errorf("%w: %q", ErrInvalidSquare, raw)
	}
	s := Square{Rank: int(v[1] - '1'), File: int(v[0] - 'a')}
	if !s.Valid() {
		return Square{}, fmt.Errorf("%w: %q", ErrInvalidSquare, raw)
	}
	return s, nil
}

// Board is the 8x8 grid indexed [rank][file]. Being an array it copies by value,
// which is how read-only snapshots are handed out.
type Board [8][8]Piece

func (b *Board) At(s Square) Piece { return b[s.Rank][s.File] }

func (b *Board) set(s Square, p Piece) { b[s.Rank][s.File] = p }

// Rotated returns the board turned 180 degrees, i.e. as seen from Black's side.
func (b Board) Rotated() Board {
	var out Board
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			out[7-r][7-f] = b[r][f]
		}
	}
	return out
}

// String draws the board from White's side, rank 8 first.
func (b Board) String() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		for f := 0; f < 8; f++ {
			sb.WriteRune(b[r][f].FENRune())
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

var backRank = [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// StandardBoard returns the initial setup.
func StandardBoard() Board {
	var b Board
	for f := 0; f < 8; f++ {
		b[0][f] = NewPiece(White, backRank[f])
		b[1][f] = NewPiece(White, Pawn)
		b[6][f] = NewPiece(Black, Pawn)
		b[7][f] = NewPiece(Black, backRank[f])
	}
	return b
}

func homeRank(c Color) int {
	if c == Black {
		return 7
	}
	return 0
}

func pawnStartRank(c Color) int {
	if c == Black {
		return 6
	}
	return 1
}

// PromotionRank is the rank on which a pawn of color c promotes.
func PromotionRank(c Color) int {
	if c == Black {
		return 0
	}
	return 7
}

func pawnDirection(c Color) int {
	if c == Black {
		return -1
	}
	return 1
}

const (
	kingStartFile      = 4
	shortRookStartFile = 7
	longRookStartFile  = 0
)
