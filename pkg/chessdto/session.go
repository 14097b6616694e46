package chessdto

type Outcome struct {
	Over   bool   `json:"over"`
	Method string `json:"method,omitempty"`
	Result string `json:"result,omitempty"`
	// Reason and Error explain an aborted game, e.g. store_unavailable.
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// GameState is a session snapshot. Board rows run from rank 8 to rank 1 as
// FEN letters, "." for an empty square; Flipped holds the player's view.
type GameState struct {
	ID                string   `json:"id"`
	Mode              string   `json:"mode"`
	Code              string   `json:"code,omitempty"`
	Board             []string `json:"board"`
	Flipped           []string `json:"flipped"`
	Turn              string   `json:"turn"`
	Player            string   `json:"player"`
	YourTurn          bool     `json:"your_turn"`
	Check             bool     `json:"check"`
	Held              string   `json:"held,omitempty"`
	Targets           []string `json:"targets,omitempty"`
	LastMove          string   `json:"last_move,omitempty"`
	AwaitingPromotion bool     `json:"awaiting_promotion"`
	Outcome           Outcome  `json:"outcome"`
	MovesUCI          []string `json:"moves_uci"`
	FEN               string   `json:"fen"`
	StatusText        string   `json:"status_text"`
}
