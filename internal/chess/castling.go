package chess

// CastlingRights tracks, for one color, which castling participants have moved.
// The zero value means nothing has moved yet.
type CastlingRights struct {
	KingMoved      bool `json:"king_moved"`
	ShortRookMoved bool `json:"short_rook_moved"`
	LongRookMoved  bool `json:"long_rook_moved"`
}

// CanCastleShort reports whether the flags alone still allow kingside castling.
func (r CastlingRights) CanCastleShort() bool { return !r.KingMoved && !r.ShortRookMoved }

// CanCastleLong reports whether the flags alone still allow queenside castling.
func (r CastlingRights) CanCastleLong() bool { return !r.KingMoved && !r.LongRookMoved }

// afterMove returns the rights once piece p has left square from.
func (r CastlingRights) afterMove(p Piece, from Square) CastlingRights {
	c := p.Color()
	switch p.Type() {
	case King:
		r.KingMoved = true
	case Rook:
		if from.Rank == homeRank(c) {
			switch from.File {
			case shortRookStartFile:
				r.ShortRookMoved = true
			case longRookStartFile:
				r.LongRookMoved = true
			}
		}
	}
	return r
}

// castleRookSquares returns the rook's origin and destination for a king
// landing on kingTo.
func castleRookSquares(kingTo Square) (from, to Square) {
	if kingTo.File > kingStartFile {
		return Sq(kingTo.Rank, shortRookStartFile), Sq(kingTo.Rank, kingTo.File-1)
	}
	return Sq(kingTo.Rank, longRookStartFile), Sq(kingTo.Rank, kingTo.File+1)
}
