package chess

import (
	"sort"
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

// Reference positions without en passant targets. Promotions collapse to one
// entry per from/to pair on both sides.
var oraclePositions = []string{
	"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R b KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
}

func ourMoveSet(p *Position, c Color) []string {
	seen := map[string]bool{}
	for _, m := range p.AllLegalMoves(c) {
		seen[m.From.String()+m.To.String()] = true
	}
	return sortedKeys(seen)
}

func oracleMoveSet(t *testing.T, fen string) []string {
	t.Helper()
	opt, err := nchess.FEN(fen)
	if err != nil {
		t.Fatalf("oracle FEN(%q): %v", fen, err)
	}
	game := nchess.NewGame(opt)
	seen := map[string]bool{}
	for _, m := range game.ValidMoves() {
		uci := m.String()
		if len(uci) > 4 {
			uci = uci[:4]
		}
		seen[uci] = true
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestLegalMovesMatchReferenceLibrary(t *testing.T) {
	for _, fen := range oraclePositions {
		p, toMove := mustFEN(t, fen)
		ours := ourMoveSet(p, toMove)
		want := oracleMoveSet(t, fen)
		if len(ours) != len(want) {
			t.Fatalf("%s: got %d moves %v, reference has %d %v", fen, len(ours), ours, len(want), want)
		}
		for i := range ours {
			if ours[i] != want[i] {
				t.Fatalf("%s: move sets differ at %d: %s vs %s", fen, i, ours[i], want[i])
			}
		}
	}
}

func TestPlayoutMatchesReferenceLibrary(t *testing.T) {
	p := NewPosition()
	game := nchess.NewGame()
	color := White
	for ply := 0; ply < 40; ply++ {
		moves := p.AllLegalMoves(color)
		if len(moves) == 0 {
			break
		}
		m := moves[(ply*13+5)%len(moves)]
		if m.NeedsPromotion() {
			m = m.Promote(Queen)
		}
		if err := game.PushNotationMove(m.UCI(), nchess.UCINotation{}, nil); err != nil {
			t.Fatalf("ply %d: reference rejected %s: %v", ply, m.UCI(), err)
		}
		p.Apply(m)
		color = color.Opposite()

		fen := game.FEN()
		if fenHasEnPassant(fen) {
			continue
		}
		if got, want := len(ourMoveSet(p, color)), len(oracleMoveSet(t, fen)); got != want {
			t.Fatalf("ply %d (%s): got %d moves, reference %d", ply, fen, got, want)
		}
	}
}

func fenHasEnPassant(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) > 3 && fields[3] != "-"
}
