package httpapi

import (
	"strings"

	"github.com/park285/Cheese-RelayChess/internal/chess"
	"github.com/park285/Cheese-RelayChess/internal/domain"
	"github.com/park285/Cheese-RelayChess/internal/msgcat"
	"github.com/park285/Cheese-RelayChess/internal/render"
	"github.com/park285/Cheese-RelayChess/internal/session"
	"github.com/park285/Cheese-RelayChess/pkg/chessdto"
)

func boardRows(b chess.Board) []string {
	rows := make([]string, 0, 8)
	for r := 7; r >= 0; r-- {
		var sb strings.Builder
		for f := 0; f < 8; f++ {
			sb.WriteRune(b[r][f].FENRune())
		}
		rows = append(rows, sb.String())
	}
	return rows
}

func squareList(sqs []chess.Square) []string {
	out := make([]string, 0, len(sqs))
	for _, sq := range sqs {
		out = append(out, sq.String())
	}
	return out
}

func toGameState(snap session.Snapshot, cat *msgcat.Catalog) *chessdto.GameState {
	st := &chessdto.GameState{
		ID:                snap.ID,
		Mode:              string(snap.Mode),
		Code:              snap.Code,
		Board:             boardRows(snap.Board),
		Flipped:           boardRows(snap.Flipped()),
		Turn:              snap.Turn.String(),
		Player:            snap.Player.String(),
		YourTurn:          snap.YourTurn() && !snap.Hosting,
		Check:             snap.Check,
		AwaitingPromotion: snap.AwaitingPromotion,
		Outcome: chessdto.Outcome{
			Over:   snap.Outcome.Over,
			Method: string(snap.Outcome.Method),
			Result: snap.Outcome.Result(),
			Reason: snap.AbortReason,
			Error:  snap.AbortError,
		},
		MovesUCI:   snap.MovesUCI,
		FEN:        snap.FEN,
		StatusText: statusText(snap, cat),
	}
	if snap.Held != nil {
		st.Held = snap.Held.String()
		st.Targets = squareList(snap.Targets)
	}
	if snap.LastMove != nil {
		st.LastMove = snap.LastMove.UCI()
	}
	if st.MovesUCI == nil {
		st.MovesUCI = []string{}
	}
	return st
}

func statusText(snap session.Snapshot, cat *msgcat.Catalog) string {
	o := snap.Outcome
	switch {
	case o.Over:
		data := map[string]any{"Winner": o.Winner.String(), "Loser": o.Loser.String()}
		text := cat.RenderOr("outcome."+string(o.Method), data, string(o.Method))
		if snap.AbortReason != "" {
			return cat.RenderOr("abort."+snap.AbortReason, nil, text)
		}
		return text
	case snap.Hosting:
		return cat.RenderOr("status.hosting", map[string]any{"Code": snap.Code}, "waiting for an opponent")
	case snap.AwaitingPromotion:
		return cat.RenderOr("status.promotion", nil, "choose a promotion piece")
	}
	data := map[string]any{"Color": snap.Turn.String()}
	fallback := snap.Turn.String() + " to move"
	switch {
	case snap.Check:
		return cat.RenderOr("status.check", data, fallback)
	case snap.Mode == session.ModeLocal:
		return cat.RenderOr("status.to_move", data, fallback)
	case snap.Turn == snap.Player:
		return cat.RenderOr("status.your_turn", data, fallback)
	default:
		return cat.RenderOr("status.opponent_turn", data, fallback)
	}
}

func headerText(g *game, snap session.Snapshot, cat *msgcat.Catalog) string {
	data := map[string]any{"Depth": g.botDepth, "Code": snap.Code, "Color": snap.Player.String()}
	return cat.RenderOr("header."+string(snap.Mode), data, string(snap.Mode))
}

func renderOptions(g *game, snap session.Snapshot, cat *msgcat.Catalog) render.Options {
	opts := render.Options{
		Perspective: snap.Player,
		LastMove:    snap.LastMove,
		Held:        snap.Held,
		Targets:     snap.Targets,
		Header:      headerText(g, snap, cat),
		Status:      statusText(snap, cat),
	}
	if snap.Check {
		if k, ok := findKing(snap.Board, snap.Turn); ok {
			opts.CheckedKing = &k
		}
	}
	return opts
}

func findKing(b chess.Board, c chess.Color) (chess.Square, bool) {
	king := chess.NewPiece(c, chess.King)
	for r := 0; r < 8; r++ {
		for f := 0; f < 8; f++ {
			if b[r][f] == king {
				return chess.Sq(r, f), true
			}
		}
	}
	return chess.Square{}, false
}

func toRecordDTO(g *domain.GameRecord) *chessdto.GameRecord {
	return &chessdto.GameRecord{
		ID:           g.ID,
		Mode:         g.Mode,
		RoomCode:     g.RoomCode,
		PlayerColor:  g.PlayerColor,
		BotDepth:     g.BotDepth,
		Result:       g.Result,
		ResultMethod: g.ResultMethod,
		MovesUCI:     g.MovesUCI,
		MovesSAN:     g.MovesSAN,
		PGN:          g.PGN,
		FinalFEN:     g.FinalFEN,
		StartedAt:    g.StartedAt,
		EndedAt:      g.EndedAt,
		DurationMS:   g.Duration().Milliseconds(),
	}
}

func toStatsDTO(s *domain.PlayerStats) *chessdto.StatsResponse {
	return &chessdto.StatsResponse{
		Mode:        s.Mode,
		GamesPlayed: s.GamesPlayed,
		WhiteWins:   s.WhiteWins,
		BlackWins:   s.BlackWins,
		Draws:       s.Draws,
		Aborted:     s.Aborted,
		LastPlayed:  s.LastPlayed,
	}
}
