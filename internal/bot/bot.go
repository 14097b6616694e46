package bot

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"

	"github.com/park285/Cheese-RelayChess/internal/chess"
)

const (
	// Infinity bounds the root window. It only needs to exceed every
	// reachable score, mate included.
	Infinity = 10000
	// MateScore is the value of delivering mate at the root; deeper mates
	// score lower by their ply distance.
	MateScore = 1000
)

var ErrNoMoves = errors.New("bot: side to move has no legal moves")

// Result is the outcome of one root search.
type Result struct {
	Move  chess.Move
	Score int
	// Ties counts root moves sharing the best score.
	Ties  int
	Nodes int

	// Partial is set when ctx ended the search before every root move was
	// scored; Move is the best of those that were.
	Partial bool
}

// Bot picks replies with a fixed-depth negamax and a material evaluation.
type Bot struct {
	depth int

	randMu sync.Mutex
	rand   *rand.Rand
}

// New returns a bot searching depth plies. Depths below 1 are raised to 1.
func New(depth int) *Bot {
	if depth < 1 {
		depth = 1
	}
	return &Bot{depth: depth}
}

func (b *Bot) Depth() int { return b.depth }

// SetRandomSeed makes the bot break ties among equally scored root moves
// with a generator seeded by seed. Seed 0 restores first-in-board-order.
func (b *Bot) SetRandomSeed(seed int64) {
	b.randMu.Lock()
	defer b.randMu.Unlock()
	if seed == 0 {
		b.rand = nil
		return
	}
	b.rand = rand.New(rand.NewSource(seed))
}

// BestMove searches p for color c. The position is explored with Apply/Undo
// pairs and is identical to its input state on return; the caller applies
// the chosen move as a real ply. Promotions are resolved to a queen.
//
// The first root move is always scored; once ctx ends, the remaining roots
// are skipped and the best move so far comes back as Partial.
func (b *Bot) BestMove(ctx context.Context, p *chess.Position, c chess.Color) (Result, error) {
	roots := p.AllLegalMoves(c)
	if len(roots) == 0 {
		return Result{}, ErrNoMoves
	}

	s := &search{}
	best := -Infinity
	var ties []int
	partial := false
	for i, m := range roots {
		if i > 0 && ctx.Err() != nil {
			partial = true
			break
		}
		m = resolvePromotion(m)
		roots[i] = m

		p.Apply(m)
		// Window (best-1, Infinity) returns exact values for ties too.
		score := -s.negamax(p, b.depth-1, -Infinity, -(best - 1), c.Opposite(), 1)
		p.Undo(m)

		switch {
		case score > best:
			best = score
			ties = append(ties[:0], i)
		case score == best:
			ties = append(ties, i)
		}
	}

	pick := ties[0]
	if len(ties) > 1 {
		b.randMu.Lock()
		if b.rand != nil {
			pick = ties[b.rand.Intn(len(ties))]
		}
		b.randMu.Unlock()
	}
	return Result{Move: roots[pick], Score: best, Ties: len(ties), Nodes: s.nodes, Partial: partial}, nil
}

type search struct {
	nodes int
}

// negamax scores p from the perspective of c. It fails hard: a score at or
// above beta returns beta without visiting the remaining siblings.
func (s *search) negamax(p *chess.Position, depth, alpha, beta int, c chess.Color, ply int) int {
	s.nodes++
	if depth == 0 {
		return Evaluate(p, c)
	}
	moves := orderMoves(p.AllLegalMoves(c))
	if len(moves) == 0 {
		if p.IsChecked(c) {
			return -(MateScore - ply)
		}
		return 0
	}
	for _, m := range moves {
		m = resolvePromotion(m)
		p.Apply(m)
		score := -s.negamax(p, depth-1, -beta, -alpha, c.Opposite(), ply+1)
		p.Undo(m)
		if score >= beta {
			return beta
		}
		if score > alpha {
			alpha = score
		}
	}
	return alpha
}

func resolvePromotion(m chess.Move) chess.Move {
	if m.NeedsPromotion() {
		return m.Promote(chess.Queen)
	}
	return m
}

// orderMoves puts captures first, most valuable victim then least valuable
// attacker. Ordering only affects pruning, never the returned score.
func orderMoves(moves []chess.Move) []chess.Move {
	sort.SliceStable(moves, func(i, j int) bool {
		return moveOrderKey(moves[i]) > moveOrderKey(moves[j])
	})
	return moves
}

func moveOrderKey(m chess.Move) int {
	key := 0
	if m.IsCapture() {
		key = 10*pieceValue(m.Captured.Type()) - pieceValue(m.Piece.Type()) + 100
	}
	if m.Kind == chess.Promotion {
		key += 50
	}
	return key
}
