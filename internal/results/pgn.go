package results

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/domain"
	"github.com/park285/Cheese-RelayChess/internal/obslog"
)

// Annotate fills MovesSAN and PGN from the UCI move list when they are missing.
// A move the notation library rejects stops the SAN list at that ply.
func Annotate(g *domain.GameRecord) {
	if g == nil {
		return
	}
	if len(g.MovesSAN) == 0 && len(g.MovesUCI) > 0 {
		san, err := sanMoves(g.StartFEN, g.MovesUCI)
		if err != nil {
			obslog.L().Warn("results_san_partial",
				zap.String("game_id", g.ID),
				zap.Int("plies", len(san)),
				zap.Error(err))
		}
		g.MovesSAN = san
	}
	if strings.TrimSpace(g.PGN) == "" {
		g.PGN = buildPGN(g)
	}
}

func sanMoves(startFEN string, uci []string) ([]string, error) {
	var game *nchess.Game
	if strings.TrimSpace(startFEN) != "" {
		opt, err := nchess.FEN(startFEN)
		if err != nil {
			return nil, fmt.Errorf("start fen: %w", err)
		}
		game = nchess.NewGame(opt)
	} else {
		game = nchess.NewGame()
	}

	notationUCI := nchess.UCINotation{}
	notationSAN := nchess.AlgebraicNotation{}
	out := make([]string, 0, len(uci))
	for _, text := range uci {
		pos := game.Position()
		mv, err := notationUCI.Decode(pos, strings.ToLower(strings.TrimSpace(text)))
		if err != nil {
			return out, fmt.Errorf("decode move %s: %w", text, err)
		}
		if err := game.Move(mv, nil); err != nil {
			return out, fmt.Errorf("apply move %s: %w", text, err)
		}
		out = append(out, notationSAN.Encode(pos, mv))
	}
	return out, nil
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(g *domain.GameRecord) string {
	var b strings.Builder
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	white, black := "White", "Black"
	switch g.Mode {
	case "bot":
		if g.PlayerColor == "black" {
			white = fmt.Sprintf("Bot (depth %d)", g.BotDepth)
		} else {
			black = fmt.Sprintf("Bot (depth %d)", g.BotDepth)
		}
	case "remote":
		if g.PlayerColor == "black" {
			white = "Opponent"
		} else {
			black = "Opponent"
		}
	}
	pgnResult := mapResultToPGN(g.Result)

	b.WriteString("[Event \"RelayChess\"]\n")
	if code := strings.TrimSpace(g.RoomCode); code != "" {
		fmt.Fprintf(&b, "[Site \"room %s\"]\n", sanitizePGN(code))
	} else {
		b.WriteString("[Site \"local\"]\n")
	}
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(white))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(black))
	if strings.TrimSpace(g.StartFEN) != "" {
		b.WriteString("[SetUp \"1\"]\n")
		fmt.Fprintf(&b, "[FEN \"%s\"]\n", sanitizePGN(g.StartFEN))
	}
	if m := strings.TrimSpace(g.ResultMethod); m != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(m)))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", pgnResult)

	// A FEN start with Black to move numbers the first ply "1...".
	offset := 0
	if fields := strings.Fields(g.StartFEN); len(fields) > 1 && fields[1] == "b" {
		offset = 1
		if len(g.MovesSAN) > 0 {
			fmt.Fprintf(&b, "1... %s ", strings.TrimSpace(g.MovesSAN[0]))
		}
	}
	for i := offset; i < len(g.MovesSAN); i += 2 {
		turn := (i+offset)/2 + 1
		fmt.Fprintf(&b, "%d. %s", turn, strings.TrimSpace(g.MovesSAN[i]))
		if i+1 < len(g.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
