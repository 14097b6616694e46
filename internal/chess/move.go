package chess

import "fmt"

// MoveKind tags what a move does beyond relocating one piece.
type MoveKind uint8

const (
	Quiet MoveKind = iota
	Capture
	Castle
	Promotion
)

func (k MoveKind) String() string {
	switch k {
	case Quiet:
		return "quiet"
	case Capture:
		return "capture"
	case Castle:
		return "castle"
	case Promotion:
		return "promotion"
	default:
		return "unknown"
	}
}

// Move is an immutable ply description. Piece and Captured are the cells at
// From and To when the move was generated. Promotion stays Empty until the
// caller chooses a piece with Promote.
type Move struct {
	From      Square
	To        Square
	Piece     Piece
	Captured  Piece
	Kind      MoveKind
	Promotion Piece
}

// Promote returns the move with the promotion piece resolved, signed by the
// mover's color. Calling it on a non-promoting move is a programming error.
func (m Move) Promote(t PieceType) Move {
	if m.Kind != Promotion {
		panic(fmt.Sprintf("chess: promote %s on %s move %s", t, m.Kind, m.UCI()))
	}
	if !t.IsPromotionChoice() {
		panic(fmt.Sprintf("chess: invalid promotion piece %q", t))
	}
	m.Promotion = NewPiece(m.Piece.Color(), t)
	return m
}

func (m Move) IsCapture() bool { return !m.Captured.IsEmpty() }

// NeedsPromotion reports a promoting move whose piece has not been chosen yet.
func (m Move) NeedsPromotion() bool { return m.Kind == Promotion && m.Promotion.IsEmpty() }

// UCI renders coordinate notation such as "e2e4" or "e7e8q".
func (m Move) UCI() string {
	s := m.From.String() + m.To.String()
	if m.Kind == Promotion && !m.Promotion.IsEmpty() {
		s += m.Promotion.Type().Letter()
	}
	return s
}

func (m Move) String() string { return m.UCI() }

// undoRecord is pushed by Apply and reverted by Undo. Each concrete type
// carries exactly what its move kind needs to restore the position.
type undoRecord interface {
	move() Move
	revert(p *Position)
}

type quietUndo struct{ m Move }

func (u quietUndo) move() Move { return u.m }

func (u quietUndo) revert(p *Position) {
	p.board.set(u.m.From, u.m.Piece)
	p.board.set(u.m.To, Empty)
}

type captureUndo struct{ m Move }

func (u captureUndo) move() Move { return u.m }

func (u captureUndo) revert(p *Position) {
	p.board.set(u.m.From, u.m.Piece)
	p.board.set(u.m.To, u.m.Captured)
}

type promotionUndo struct{ m Move }

func (u promotionUndo) move() Move { return u.m }

func (u promotionUndo) revert(p *Position) {
	p.board.set(u.m.From, u.m.Piece)
	p.board.set(u.m.To, u.m.Captured)
}

type castleUndo struct {
	m        Move
	rookFrom Square
	rookTo   Square
	rook     Piece
	prior    CastlingRights
}

func (u castleUndo) move() Move { return u.m }

func (u castleUndo) revert(p *Position) {
	p.board.set(u.m.From, u.m.Piece)
	p.board.set(u.m.To, Empty)
	p.board.set(u.rookFrom, u.rook)
	p.board.set(u.rookTo, Empty)
	p.rights[u.m.Piece.Color().index()] = u.prior
}

// rightsUndo wraps a quiet or capture record of a king or rook move with the
// castling rights held before it.
type rightsUndo struct {
	undoRecord
	prior CastlingRights
}

func (u rightsUndo) revert(p *Position) {
	u.undoRecord.revert(p)
	p.rights[u.move().Piece.Color().index()] = u.prior
}
