package chess

import "fmt"

// Position owns the board and castling rights. Apply is the only mutator
// during play; Undo reverts the most recent Apply.
type Position struct {
	board  Board
	rights [2]CastlingRights
	stack  []undoRecord
}

// NewPosition returns the standard starting position.
func NewPosition() *Position {
	return &Position{board: StandardBoard()}
}

// NewPositionFrom builds a position from an arbitrary board and rights,
// mostly for setups parsed from FEN.
func NewPositionFrom(b Board, white, black CastlingRights) *Position {
	p := &Position{board: b}
	p.rights[White.index()] = white
	p.rights[Black.index()] = black
	return p
}

// Board returns a copy of the grid.
func (p *Position) Board() Board { return p.board }

func (p *Position) At(s Square) Piece { return p.board.At(s) }

func (p *Position) Rights(c Color) CastlingRights { return p.rights[c.index()] }

// Depth reports how many applied moves are waiting to be undone.
func (p *Position) Depth() int { return len(p.stack) }

// Clone copies board and rights; the undo history is not carried over.
func (p *Position) Clone() *Position {
	return &Position{board: p.board, rights: p.rights}
}

// Apply plays m on the board: relocates the piece, removes any captured
// piece, moves the rook when castling, places a chosen promotion piece and
// updates castling rights. A promotion move without a chosen piece leaves the
// pawn on its last rank.
func (p *Position) Apply(m Move) {
	if got := p.board.At(m.From); got != m.Piece {
		panic(fmt.Sprintf("chess: apply %s: expected %d on %s, found %d", m.UCI(), m.Piece, m.From, got))
	}
	color := m.Piece.Color()
	prior := p.rights[color.index()]

	var rec undoRecord
	switch m.Kind {
	case Castle:
		rookFrom, rookTo := castleRookSquares(m.To)
		rook := p.board.At(rookFrom)
		p.board.set(m.From, Empty)
		p.board.set(m.To, m.Piece)
		p.board.set(rookFrom, Empty)
		p.board.set(rookTo, rook)
		next := prior.afterMove(m.Piece, m.From).afterMove(rook, rookFrom)
		p.rights[color.index()] = next
		p.stack = append(p.stack, castleUndo{m: m, rookFrom: rookFrom, rookTo: rookTo, rook: rook, prior: prior})
		return
	case Promotion:
		placed := m.Piece
		if !m.Promotion.IsEmpty() {
			placed = m.Promotion
		}
		p.board.set(m.From, Empty)
		p.board.set(m.To, placed)
		p.stack = append(p.stack, promotionUndo{m: m})
		return
	case Capture:
		rec = captureUndo{m: m}
	default:
		rec = quietUndo{m: m}
	}

	p.board.set(m.From, Empty)
	p.board.set(m.To, m.Piece)
	if t := m.Piece.Type(); t == King || t == Rook {
		p.rights[color.index()] = prior.afterMove(m.Piece, m.From)
		rec = rightsUndo{undoRecord: rec, prior: prior}
	}
	p.stack = append(p.stack, rec)
}

// Undo reverts m, which must be the most recently applied move that has not
// yet been undone.
func (p *Position) Undo(m Move) {
	n := len(p.stack)
	if n == 0 {
		panic(fmt.Sprintf("chess: undo %s with empty history", m.UCI()))
	}
	top := p.stack[n-1]
	if top.move() != m {
		panic(fmt.Sprintf("chess: undo %s out of order, last applied %s", m.UCI(), top.move().UCI()))
	}
	top.revert(p)
	p.stack = p.stack[:n-1]
}
