package chessdto

// CreateGameRequest starts a session. Mode is local, bot, host or join.
// Color applies to bot and host games (white, black, random); Code to join.
type CreateGameRequest struct {
	Mode   string `json:"mode"`
	Color  string `json:"color,omitempty"`
	Code   string `json:"code,omitempty"`
	Preset string `json:"preset,omitempty"`
	FEN    string `json:"fen,omitempty"`
}

type CreateGameResponse struct {
	ID    string `json:"id"`
	Mode  string `json:"mode"`
	Code  string `json:"code,omitempty"`
	Color string `json:"color"`
}

type SquareRequest struct {
	Square string `json:"square"`
}

type MovesResponse struct {
	Square  string   `json:"square"`
	Targets []string `json:"targets"`
	Moves   []string `json:"moves"`
}

type ReleaseResponse struct {
	Applied bool       `json:"applied"`
	State   *GameState `json:"state,omitempty"`
}

type PromotionRequest struct {
	Piece string `json:"piece"`
}
