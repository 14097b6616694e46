package chess

// Direction offsets as {rank, file} deltas.
var (
	knightOffsets = [][2]int{{-2, -1}, {-2, 1}, {-1, -2}, {-1, 2}, {1, -2}, {1, 2}, {2, -1}, {2, 1}}
	kingOffsets   = [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	diagonalDirs  = [][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
	straightDirs  = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	queenDirs     = append(append([][2]int{}, diagonalDirs...), straightDirs...)
)

// PseudoLegalMoves lists every geometrically valid move of the piece on s,
// ignoring the safety of its own king. Empty squares yield nil.
func (p *Position) PseudoLegalMoves(s Square) []Move {
	return p.pseudoLegal(s, false)
}

// pseudoLegal generates moves for the piece on s. excludeKingCheck drops
// castling, whose eligibility test queries the attack map and would otherwise
// recurse through the opposing king's own castling.
func (p *Position) pseudoLegal(s Square, excludeKingCheck bool) []Move {
	if !s.Valid() {
		return nil
	}
	piece := p.board.At(s)
	if piece.IsEmpty() {
		return nil
	}
	switch piece.Type() {
	case Pawn:
		return p.pawnMoves(s, piece)
	case Knight:
		return p.stepMoves(s, piece, knightOffsets, nil)
	case Bishop:
		return p.slideMoves(s, piece, diagonalDirs)
	case Rook:
		return p.slideMoves(s, piece, straightDirs)
	case Queen:
		return p.slideMoves(s, piece, queenDirs)
	case King:
		moves := p.stepMoves(s, piece, kingOffsets, nil)
		if !excludeKingCheck {
			moves = p.castlingMoves(s, piece, moves)
		}
		return moves
	}
	return nil
}

func (p *Position) newMove(from, to Square, piece Piece) Move {
	target := p.board.At(to)
	kind := Quiet
	if !target.IsEmpty() {
		kind = Capture
	}
	return Move{From: from, To: to, Piece: piece, Captured: target, Kind: kind}
}

func (p *Position) slideMoves(s Square, piece Piece, dirs [][2]int) []Move {
	var moves []Move
	for _, d := range dirs {
		for to := s.offset(d[0], d[1]); to.Valid(); to = to.offset(d[0], d[1]) {
			target := p.board.At(to)
			if target.IsEmpty() {
				moves = append(moves, p.newMove(s, to, piece))
				continue
			}
			if target.Color() != piece.Color() {
				moves = append(moves, p.newMove(s, to, piece))
			}
			break
		}
	}
	return moves
}

func (p *Position) stepMoves(s Square, piece Piece, offsets [][2]int, moves []Move) []Move {
	for _, o := range offsets {
		to := s.offset(o[0], o[1])
		if !to.Valid() {
			continue
		}
		if target := p.board.At(to); !target.IsEmpty() && target.Color() == piece.Color() {
			continue
		}
		moves = append(moves, p.newMove(s, to, piece))
	}
	return moves
}

// pawnMoves has no en passant: captures only land on occupied squares.
func (p *Position) pawnMoves(s Square, piece Piece) []Move {
	c := piece.Color()
	dir := pawnDirection(c)
	var moves []Move
	add := func(to Square) {
		m := p.newMove(s, to, piece)
		if to.Rank == PromotionRank(c) {
			m.Kind = Promotion
		}
		moves = append(moves, m)
	}

	one := s.offset(dir, 0)
	if one.Valid() && p.board.At(one).IsEmpty() {
		add(one)
		two := s.offset(2*dir, 0)
		if s.Rank == pawnStartRank(c) && two.Valid() && p.board.At(two).IsEmpty() {
			add(two)
		}
	}
	for _, df := range [2]int{-1, 1} {
		to := s.offset(dir, df)
		if !to.Valid() {
			continue
		}
		if target := p.board.At(to); !target.IsEmpty() && target.Color() != c {
			add(to)
		}
	}
	return moves
}

// castlingMoves appends castles for an unmoved king whose rook is unmoved and
// still on its corner, with empty squares between them and no attacked square
// on the king's path, start and destination included.
func (p *Position) castlingMoves(s Square, king Piece, moves []Move) []Move {
	c := king.Color()
	rights := p.rights[c.index()]
	home := homeRank(c)
	if rights.KingMoved || s != Sq(home, kingStartFile) {
		return moves
	}
	rook := NewPiece(c, Rook)
	opp := c.Opposite()

	if rights.CanCastleShort() && p.board.At(Sq(home, shortRookStartFile)) == rook &&
		p.emptyBetween(home, kingStartFile+1, shortRookStartFile-1) &&
		!p.anyAttacked(home, kingStartFile, kingStartFile+2, opp) {
		moves = append(moves, Move{From: s, To: Sq(home, kingStartFile+2), Piece: king, Kind: Castle})
	}
	if rights.CanCastleLong() && p.board.At(Sq(home, longRookStartFile)) == rook &&
		p.emptyBetween(home, longRookStartFile+1, kingStartFile-1) &&
		!p.anyAttacked(home, kingStartFile-2, kingStartFile, opp) {
		moves = append(moves, Move{From: s, To: Sq(home, kingStartFile-2), Piece: king, Kind: Castle})
	}
	return moves
}

func (p *Position) emptyBetween(rank, fromFile, toFile int) bool {
	for f := fromFile; f <= toFile; f++ {
		if !p.board[rank][f].IsEmpty() {
			return false
		}
	}
	return true
}

func (p *Position) anyAttacked(rank, fromFile, toFile int, by Color) bool {
	for f := fromFile; f <= toFile; f++ {
		if p.IsAttacked(Sq(rank, f), by, true) {
			return true
		}
	}
	return false
}
