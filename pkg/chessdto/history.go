package chessdto

import "time"

type GameRecord struct {
	ID           string    `json:"id"`
	Mode         string    `json:"mode"`
	RoomCode     string    `json:"room_code,omitempty"`
	PlayerColor  string    `json:"player_color,omitempty"`
	BotDepth     int       `json:"bot_depth,omitempty"`
	Result       string    `json:"result"`
	ResultMethod string    `json:"result_method,omitempty"`
	MovesUCI     []string  `json:"moves_uci"`
	MovesSAN     []string  `json:"moves_san"`
	PGN          string    `json:"pgn"`
	FinalFEN     string    `json:"final_fen"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	DurationMS   int64     `json:"duration_ms"`
}

type HistoryResponse struct {
	Games []*GameRecord `json:"games"`
}

type StatsResponse struct {
	Mode        string    `json:"mode,omitempty"`
	GamesPlayed int       `json:"games_played"`
	WhiteWins   int       `json:"white_wins"`
	BlackWins   int       `json:"black_wins"`
	Draws       int       `json:"draws"`
	Aborted     int       `json:"aborted"`
	LastPlayed  time.Time `json:"last_played,omitempty"`
}
