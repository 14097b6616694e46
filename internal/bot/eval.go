package bot

import "github.com/park285/Cheese-RelayChess/internal/chess"

func pieceValue(t chess.PieceType) int {
	switch t {
	case chess.Pawn:
		return 1
	case chess.Knight, chess.Bishop:
		return 3
	case chess.Rook:
		return 5
	case chess.Queen:
		return 9
	default:
		return 0
	}
}

// Evaluate is the material balance from c's point of view. A pawn standing on
// its promotion rank counts as a queen. Kings are not scored.
func Evaluate(p *chess.Position, c chess.Color) int {
	b := p.Board()
	score := 0
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			piece := b[r][f]
			if piece.IsEmpty() {
				continue
			}
			v := pieceValue(piece.Type())
			if piece.Type() == chess.Pawn && r == chess.PromotionRank(piece.Color()) {
				v = pieceValue(chess.Queen)
			}
			if piece.Color() == c {
				score += v
			} else {
				score -= v
			}
		}
	}
	return score
}
