package chess

// IsAttacked reports whether a piece of color by can land on s with a
// pseudo-legal move. Pawns count their diagonal reach whether or not s is
// occupied, so empty squares on a castling path are covered too. With
// excludeKingCheck set the attacking king contributes its steps but never
// evaluates its own castling.
func (p *Position) IsAttacked(s Square, by Color, excludeKingCheck bool) bool {
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			piece := p.board[r][f]
			if piece.IsEmpty() || piece.Color() != by {
				continue
			}
			from := Sq(r, f)
			if piece.Type() == Pawn {
				if s.Rank == r+pawnDirection(by) && (s.File == f-1 || s.File == f+1) {
					return true
				}
				continue
			}
			for _, m := range p.pseudoLegal(from, excludeKingCheck) {
				if m.To == s && m.Kind != Castle {
					return true
				}
			}
		}
	}
	return false
}

// KingSquare locates the king of color c.
func (p *Position) KingSquare(c Color) (Square, bool) {
	king := NewPiece(c, King)
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if p.board[r][f] == king {
				return Sq(r, f), true
			}
		}
	}
	return Square{}, false
}

// IsChecked reports whether the king of color c is attacked. A board without
// that king is never in check. Castling never captures, so the opposing
// king's castling is not evaluated here.
func (p *Position) IsChecked(c Color) bool {
	s, ok := p.KingSquare(c)
	if !ok {
		return false
	}
	return p.IsAttacked(s, c.Opposite(), true)
}
