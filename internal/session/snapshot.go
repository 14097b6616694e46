package session

import (
	"github.com/park285/Cheese-RelayChess/internal/chess"
)

// Snapshot is a read-only copy of a session for the render collaborator.
// Board is always oriented with White's back rank at index 0.
type Snapshot struct {
	ID   string
	Mode Mode
	Code string
	// Hosting is true while a hosted room still waits for its joiner.
	Hosting           bool
	Board             chess.Board
	Turn              chess.Color
	Player            chess.Color
	Check             bool
	Held              *chess.Square
	Targets           []chess.Square
	LastMove          *chess.Move
	AwaitingPromotion bool
	Outcome           chess.Outcome
	// AbortReason names why an aborted game ended, AbortError the failure
	// behind it.
	AbortReason string
	AbortError  string
	MovesUCI    []string
	FEN         string
}

// Flipped returns the board as the player sees it: turned around for Black.
func (s Snapshot) Flipped() chess.Board {
	if s.Player == chess.Black {
		return s.Board.Rotated()
	}
	return s.Board
}

// YourTurn reports whether input from the local player is accepted now.
func (s Snapshot) YourTurn() bool {
	return !s.Outcome.Over && s.Turn == s.Player && !s.AwaitingPromotion
}
