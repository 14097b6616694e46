package chess

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidFEN = errors.New("invalid FEN")

// FEN encodes the position with c to move. The en passant field is always
// "-" and the clocks are fixed at "0 1", since neither is modelled.
func (p *Position) FEN(toMove Color) string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		empty := 0
		for f := 0; f < 8; f++ {
			piece := p.board[r][f]
			if piece.IsEmpty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteRune(piece.FENRune())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}
	side := "w"
	if toMove == Black {
		side = "b"
	}
	return fmt.Sprintf("%s %s %s - 0 1", sb.String(), side, p.castlingField())
}

// castlingField lists only castles the flags allow with king and rook still
// on their start squares.
func (p *Position) castlingField() string {
	var sb strings.Builder
	for _, c := range [2]Color{White, Black} {
		r := p.rights[c.index()]
		home := homeRank(c)
		if p.board.At(Sq(home, kingStartFile)) != NewPiece(c, King) {
			continue
		}
		rook := NewPiece(c, Rook)
		short, long := "K", "Q"
		if c == Black {
			short, long = "k", "q"
		}
		if r.CanCastleShort() && p.board.At(Sq(home, shortRookStartFile)) == rook {
			sb.WriteString(short)
		}
		if r.CanCastleLong() && p.board.At(Sq(home, longRookStartFile)) == rook {
			sb.WriteString(long)
		}
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}

// ParseFEN reads placement, side to move and castling availability. Missing
// castling letters mark the matching rook (or, with both missing, the king)
// as moved. Trailing fields are ignored.
func ParseFEN(fen string) (*Position, Color, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return nil, NoColor, fmt.Errorf("%w: %q", ErrInvalidFEN, fen)
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != 8 {
		return nil, NoColor, fmt.Errorf("%w: expected 8 ranks, got %d", ErrInvalidFEN, len(rows))
	}
	var b Board
	for i, row := range rows {
		r := 7 - i
		f := 0
		for _, ch := range row {
			if ch >= '1' && ch <= '8' {
				f += int(ch - '0')
				continue
			}
			t, ok := ParsePieceType(string(ch))
			if !ok || f > 7 {
				return nil, NoColor, fmt.Errorf("%w: bad rank %q", ErrInvalidFEN, row)
			}
			c := Black
			if ch >= 'A' && ch <= 'Z' {
				c = White
			}
			b[r][f] = NewPiece(c, t)
			f++
		}
		if f != 8 {
			return nil, NoColor, fmt.Errorf("%w: rank %q has %d files", ErrInvalidFEN, row, f)
		}
	}

	var toMove Color
	switch fields[1] {
	case "w":
		toMove = White
	case "b":
		toMove = Black
	default:
		return nil, NoColor, fmt.Errorf("%w: side %q", ErrInvalidFEN, fields[1])
	}

	avail := "-"
	if len(fields) > 2 {
		avail = fields[2]
	}
	white := rightsFromField(avail, 'K', 'Q')
	black := rightsFromField(avail, 'k', 'q')
	return NewPositionFrom(b, white, black), toMove, nil
}

func rightsFromField(avail string, short, long rune) CastlingRights {
	hasShort := strings.ContainsRune(avail, short)
	hasLong := strings.ContainsRune(avail, long)
	if !hasShort && !hasLong {
		return CastlingRights{KingMoved: true, ShortRookMoved: true, LongRookMoved: true}
	}
	return CastlingRights{ShortRookMoved: !hasShort, LongRookMoved: !hasLong}
}
