package chess

// LegalMoves returns the pseudo-legal moves from s that do not leave the
// mover's king in check. Each candidate is applied, tested and undone, so the
// position is unchanged on return.
func (p *Position) LegalMoves(s Square) []Move {
	candidates := p.pseudoLegal(s, false)
	if len(candidates) == 0 {
		return nil
	}
	color := p.board.At(s).Color()
	legal := candidates[:0]
	for _, m := range candidates {
		p.Apply(m)
		checked := p.IsChecked(color)
		p.Undo(m)
		if !checked {
			legal = append(legal, m)
		}
	}
	return legal
}

// AllLegalMoves enumerates the legal moves of color c in board order, rank 1
// to rank 8 and file a to file h.
func (p *Position) AllLegalMoves(c Color) []Move {
	var moves []Move
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if p.board[r][f].Color() != c {
				continue
			}
			moves = append(moves, p.LegalMoves(Sq(r, f))...)
		}
	}
	return moves
}

// HasLegalMove stops at the first legal move of color c.
func (p *Position) HasLegalMove(c Color) bool {
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if p.board[r][f].Color() != c {
				continue
			}
			if len(p.LegalMoves(Sq(r, f))) > 0 {
				return true
			}
		}
	}
	return false
}

// FindLegalMove returns the legal move from -> to, if any.
func (p *Position) FindLegalMove(from, to Square) (Move, bool) {
	for _, m := range p.LegalMoves(from) {
		if m.To == to {
			return m, true
		}
	}
	return Move{}, false
}
