package httpapi

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/bot"
	"github.com/park285/Cheese-RelayChess/internal/chess"
	"github.com/park285/Cheese-RelayChess/internal/kvstore"
	"github.com/park285/Cheese-RelayChess/internal/obslog"
	"github.com/park285/Cheese-RelayChess/internal/pvpchan"
	"github.com/park285/Cheese-RelayChess/internal/session"
	"github.com/park285/Cheese-RelayChess/pkg/chessdto"
)

var (
	errBadRequest      = errors.New("bad request")
	errWaitingOpponent = errors.New("room is still waiting for an opponent")
)

const (
	createLocal = "local"
	createBot   = "bot"
	createHost  = "host"
	createJoin  = "join"
)

func (s *Server) handleCreate(ctx *fasthttp.RequestCtx) {
	var req chessdto.CreateGameRequest
	if !decodeBody(ctx, &req) {
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()

	g, err := s.createGame(rctx, req)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	snap := g.sess.Snapshot()
	writeJSON(ctx, fasthttp.StatusCreated, chessdto.CreateGameResponse{
		ID:    snap.ID,
		Mode:  string(snap.Mode),
		Code:  snap.Code,
		Color: snap.Player.String(),
	})
}

func (s *Server) createGame(ctx context.Context, req chessdto.CreateGameRequest) (*game, error) {
	opts := session.Options{
		Recorder:      s.opts.Repo,
		WaitTimeout:   s.opts.WaitTimeout,
		SearchTimeout: s.opts.SearchTimeout,
		StartFEN:      strings.TrimSpace(req.FEN),
	}
	var botDepth int

	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case createLocal:
		opts.Mode = session.ModeLocal
	case createBot:
		b, err := s.newBot(req.Preset)
		if err != nil {
			return nil, err
		}
		color, err := pickColor(req.Color)
		if err != nil {
			return nil, err
		}
		opts.Mode, opts.Bot, opts.Player = session.ModeBot, b, color
		botDepth = b.Depth()
	case createHost, createJoin:
		if s.opts.Rooms == nil {
			return nil, fmt.Errorf("%w: no room store configured", kvstore.ErrUnavailable)
		}
		var (
			ch  *pvpchan.Channel
			err error
		)
		if strings.EqualFold(req.Mode, createHost) {
			ch, err = s.opts.Rooms.Host(ctx, pvpchan.ColorChoice(req.Color))
		} else {
			ch, err = s.opts.Rooms.Join(ctx, req.Code)
		}
		if err != nil {
			return nil, err
		}
		opts.Mode, opts.Channel = session.ModeRemote, ch
	default:
		return nil, fmt.Errorf("%w: mode %q", errBadRequest, req.Mode)
	}

	sess, err := session.New(opts)
	if err != nil {
		if opts.Channel != nil {
			_ = opts.Channel.Close(ctx)
		}
		return nil, err
	}
	g := s.register(sess, botDepth)

	switch opts.Mode {
	case session.ModeBot:
		if err := sess.Start(ctx); err != nil {
			sess.Abandon(ctx)
			return nil, err
		}
	case session.ModeRemote:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// failures abort the session, which carries the reason
			if err := sess.RunOpponent(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				obslog.L().Warn("remote_opponent_stopped", zap.String("id", sess.ID()), zap.Error(err))
			}
		}()
	}
	return g, nil
}

func (s *Server) newBot(preset string) (*bot.Bot, error) {
	b, err := s.opts.NewBot(preset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return b, nil
}

func pickColor(raw string) (chess.Color, error) {
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "", string(pvpchan.ColorRandom):
		if rand.IntN(2) == 0 {
			return chess.White, nil
		}
		return chess.Black, nil
	default:
		c, ok := chess.ParseColor(v)
		if !ok || (c != chess.White && c != chess.Black) {
			return chess.NoColor, fmt.Errorf("%w: color %q", errBadRequest, raw)
		}
		return c, nil
	}
}

func (s *Server) register(sess *session.Session, botDepth int) *game {
	g := newGame(sess, botDepth)
	sess.OnChange(func(snap session.Snapshot) {
		g.changed()
		s.hub.broadcast(snap.ID, toGameState(snap, s.opts.Catalog))
	})
	s.games.put(g)
	s.games.expireAfterDone(g, s.opts.Retention, s.hub.closeGame)
	return g
}

func (s *Server) handleState(ctx *fasthttp.RequestCtx, g *game) {
	writeJSON(ctx, fasthttp.StatusOK, toGameState(g.sess.Snapshot(), s.opts.Catalog))
}

func (s *Server) handleAbandon(ctx *fasthttp.RequestCtx, g *game) {
	rctx, cancel := s.requestContext()
	defer cancel()
	g.sess.Abandon(rctx)
	writeJSON(ctx, fasthttp.StatusOK, toGameState(g.sess.Snapshot(), s.opts.Catalog))
}

func (s *Server) handleMoves(ctx *fasthttp.RequestCtx, g *game) {
	sq, err := chess.ParseSquare(string(ctx.QueryArgs().Peek("square")))
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, movesResponse(sq, g.sess.LegalMoves(sq)))
}

func movesResponse(sq chess.Square, moves []chess.Move) chessdto.MovesResponse {
	resp := chessdto.MovesResponse{Square: sq.String(), Targets: []string{}, Moves: []string{}}
	seen := map[chess.Square]bool{}
	for _, m := range moves {
		resp.Moves = append(resp.Moves, m.UCI())
		if !seen[m.To] {
			seen[m.To] = true
			resp.Targets = append(resp.Targets, m.To.String())
		}
	}
	return resp
}

func (s *Server) handlePickUp(ctx *fasthttp.RequestCtx, g *game) {
	sq, ok := decodeSquare(ctx)
	if !ok {
		return
	}
	if g.sess.Snapshot().Hosting {
		writeDomainError(ctx, errWaitingOpponent)
		return
	}
	moves, err := g.sess.PickUp(sq)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, movesResponse(sq, moves))
}

// handleRelease drops the held piece. A promoting move answers 202 with the
// awaiting state; the promotion request then completes it.
func (s *Server) handleRelease(ctx *fasthttp.RequestCtx, g *game) {
	sq, ok := decodeSquare(ctx)
	if !ok {
		return
	}
	switch snap := g.sess.Snapshot(); {
	case snap.Hosting:
		writeDomainError(ctx, errWaitingOpponent)
		return
	case snap.AwaitingPromotion:
		writeDomainError(ctx, session.ErrPromotionInProgress)
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()

	waitCtx, stopWait := context.WithCancel(rctx)
	defer stopWait()
	result := make(chan releaseResult, 1)
	g.setPending(result)
	go func() {
		defer stopWait()
		applied, err := g.sess.Release(s.ctx, sq)
		result <- releaseResult{applied: applied, err: err}
	}()

	snap, promoting := g.waitFor(waitCtx, func(snap session.Snapshot) bool { return snap.AwaitingPromotion })
	if promoting {
		writeJSON(ctx, fasthttp.StatusAccepted, chessdto.ReleaseResponse{State: toGameState(snap, s.opts.Catalog)})
		return
	}
	g.takePending()
	s.writeRelease(ctx, rctx, g, result)
}

func (s *Server) handlePromotion(ctx *fasthttp.RequestCtx, g *game) {
	var req chessdto.PromotionRequest
	if !decodeBody(ctx, &req) {
		return
	}
	t, ok := chess.ParsePieceType(req.Piece)
	if !ok {
		writeDomainError(ctx, session.ErrInvalidPromotion)
		return
	}
	if err := g.sess.SelectPromotion(t); err != nil {
		writeDomainError(ctx, err)
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	pending := g.takePending()
	if pending == nil {
		writeJSON(ctx, fasthttp.StatusOK, chessdto.ReleaseResponse{Applied: true, State: toGameState(g.sess.Snapshot(), s.opts.Catalog)})
		return
	}
	s.writeRelease(ctx, rctx, g, pending)
}

func (s *Server) writeRelease(ctx *fasthttp.RequestCtx, rctx context.Context, g *game, result <-chan releaseResult) {
	select {
	case res := <-result:
		if res.err != nil {
			writeDomainError(ctx, res.err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, chessdto.ReleaseResponse{
			Applied: res.applied,
			State:   toGameState(g.sess.Snapshot(), s.opts.Catalog),
		})
	case <-rctx.Done():
		writeDomainError(ctx, rctx.Err())
	}
}

func (s *Server) handleBoard(ctx *fasthttp.RequestCtx, g *game) {
	rctx, cancel := s.requestContext()
	defer cancel()
	snap := g.sess.Snapshot()
	png, err := s.opts.Renderer.RenderPNG(rctx, snap.Board, renderOptions(g, snap, s.opts.Catalog))
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("image/png")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(png)
}

func (s *Server) handleHistory(ctx *fasthttp.RequestCtx) {
	args := ctx.QueryArgs()
	limit := 0
	if raw := args.Peek("limit"); len(raw) > 0 {
		n, err := strconv.Atoi(string(raw))
		if err != nil {
			writeDomainError(ctx, fmt.Errorf("%w: limit %q", errBadRequest, raw))
			return
		}
		limit = n
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	games, err := s.opts.Repo.RecentGames(rctx, string(args.Peek("mode")), limit)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	resp := chessdto.HistoryResponse{Games: make([]*chessdto.GameRecord, 0, len(games))}
	for _, rec := range games {
		resp.Games = append(resp.Games, toRecordDTO(rec))
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleRecord(ctx *fasthttp.RequestCtx, id string) {
	rctx, cancel := s.requestContext()
	defer cancel()
	rec, err := s.opts.Repo.GetGame(rctx, id)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	if rec == nil {
		writeError(ctx, fasthttp.StatusNotFound, chessdto.DomainError{Code: "game_not_found", Message: "no recorded game " + id})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toRecordDTO(rec))
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	rctx, cancel := s.requestContext()
	defer cancel()
	stats, err := s.opts.Repo.Stats(rctx, string(ctx.QueryArgs().Peek("mode")))
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, toStatsDTO(stats))
}

func decodeSquare(ctx *fasthttp.RequestCtx) (chess.Square, bool) {
	var req chessdto.SquareRequest
	if !decodeBody(ctx, &req) {
		return chess.Square{}, false
	}
	sq, err := chess.ParseSquare(req.Square)
	if err != nil {
		writeDomainError(ctx, err)
		return chess.Square{}, false
	}
	return sq, true
}
