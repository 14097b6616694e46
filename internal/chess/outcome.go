package chess

// Method is how a game ended.
type Method string

const (
	NoMethod  Method = ""
	Checkmate Method = "checkmate"
	Stalemate Method = "stalemate"
	Aborted   Method = "aborted"
)

// Outcome describes a terminal state. Winner is NoColor for draws and aborts.
type Outcome struct {
	Over   bool   `json:"over"`
	Method Method `json:"method,omitempty"`
	Winner Color  `json:"winner,omitempty"`
	// Loser is the side left without a legal move.
	Loser Color `json:"loser,omitempty"`
}

func (o Outcome) IsDraw() bool { return o.Over && o.Method == Stalemate }

// Result is "white", "black", "draw", "aborted" or "" while in progress.
func (o Outcome) Result() string {
	switch {
	case !o.Over:
		return ""
	case o.Method == Aborted:
		return "aborted"
	case o.Winner == NoColor:
		return "draw"
	default:
		return o.Winner.String()
	}
}

// GameOver scans both colors, White first. A color without any legal move
// ends the game: checkmate when it is in check, stalemate otherwise.
func (p *Position) GameOver() Outcome {
	for _, c := range [2]Color{White, Black} {
		if p.HasLegalMove(c) {
			continue
		}
		if p.IsChecked(c) {
			return Outcome{Over: true, Method: Checkmate, Winner: c.Opposite(), Loser: c}
		}
		return Outcome{Over: true, Method: Stalemate, Loser: c}
	}
	return Outcome{}
}
