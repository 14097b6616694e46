// Package httpapi exposes sessions to the display and input side: a JSON API
// on fasthttp and a websocket feed of snapshots.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/bot"
	"github.com/park285/Cheese-RelayChess/internal/chess"
	"github.com/park285/Cheese-RelayChess/internal/kvstore"
	"github.com/park285/Cheese-RelayChess/internal/msgcat"
	"github.com/park285/Cheese-RelayChess/internal/obslog"
	"github.com/park285/Cheese-RelayChess/internal/pvpchan"
	"github.com/park285/Cheese-RelayChess/internal/render"
	"github.com/park285/Cheese-RelayChess/internal/results"
	"github.com/park285/Cheese-RelayChess/internal/session"
	"github.com/park285/Cheese-RelayChess/pkg/chessdto"
)

const defaultBotDepth = 2

type Options struct {
	Rooms    *pvpchan.Manager
	Repo     results.Repository
	Catalog  *msgcat.Catalog
	Renderer render.Renderer
	NewBot   func(preset string) (*bot.Bot, error)
	// WaitTimeout bounds promotion and opponent waits; zero waits until cancelled.
	WaitTimeout time.Duration
	// RequestTimeout bounds the work of a single request, bot search included.
	RequestTimeout time.Duration
	// SearchTimeout caps each bot search; a search cut short plays its best
	// move so far. Defaults to three quarters of RequestTimeout so the reply
	// still fits in the request.
	SearchTimeout time.Duration
	// Retention keeps finished sessions readable before they are dropped.
	Retention time.Duration
	// IdleTimeout abandons an unfinished game that saw no request and no
	// state change for that long.
	IdleTimeout time.Duration
}

type Server struct {
	opts  Options
	games *registry
	hub   *Hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	httpSrv *fasthttp.Server
	wsSrv   *http.Server
}

func New(opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.SearchTimeout <= 0 || opts.SearchTimeout > opts.RequestTimeout {
		opts.SearchTimeout = opts.RequestTimeout * 3 / 4
	}
	if opts.Retention <= 0 {
		opts.Retention = 10 * time.Minute
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.Repo == nil {
		opts.Repo = results.NewMemoryRepository()
	}
	if opts.Renderer == nil {
		opts.Renderer = render.NewSVGBoardRenderer()
	}
	if opts.NewBot == nil {
		opts.NewBot = func(string) (*bot.Bot, error) { return bot.New(defaultBotDepth), nil }
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{opts: opts, games: newRegistry(), ctx: ctx, cancel: cancel}
	s.hub = newHub(s.lookupState)
	s.wg.Add(1)
	go s.reapIdle()
	return s
}

// reapIdle ends games nobody has touched for IdleTimeout; retention then
// drops them like any finished game.
func (s *Server) reapIdle() {
	defer s.wg.Done()
	t := time.NewTicker(min(s.opts.IdleTimeout/2, time.Minute))
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-t.C:
			for _, g := range s.games.idle(s.opts.IdleTimeout, now) {
				obslog.L().Info("game_idle_expire", zap.String("id", g.sess.ID()), zap.Duration("idle", now.Sub(g.lastActive())))
				g.sess.Expire(s.ctx)
			}
		}
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Handler routes the JSON API.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		s.route(ctx)
		obslog.L().Debug("http_request",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	parts := strings.Split(strings.Trim(string(ctx.Path()), "/"), "/")
	method := string(ctx.Method())

	switch {
	case len(parts) == 1 && parts[0] == "healthz" && method == fasthttp.MethodGet:
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	case len(parts) == 1 && parts[0] == "games" && method == fasthttp.MethodPost:
		s.handleCreate(ctx)
	case len(parts) == 2 && parts[0] == "games":
		switch method {
		case fasthttp.MethodGet:
			s.withGame(ctx, parts[1], s.handleState)
		case fasthttp.MethodDelete:
			s.withGame(ctx, parts[1], s.handleAbandon)
		default:
			methodNotAllowed(ctx)
		}
	case len(parts) == 3 && parts[0] == "games":
		s.routeGameAction(ctx, method, parts[1], parts[2])
	case len(parts) == 1 && parts[0] == "results" && method == fasthttp.MethodGet:
		s.handleHistory(ctx)
	case len(parts) == 2 && parts[0] == "results" && method == fasthttp.MethodGet:
		s.handleRecord(ctx, parts[1])
	case len(parts) == 1 && parts[0] == "stats" && method == fasthttp.MethodGet:
		s.handleStats(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, chessdto.DomainError{Code: "not_found", Message: "no such route"})
	}
}

func (s *Server) routeGameAction(ctx *fasthttp.RequestCtx, method, id, action string) {
	type route struct {
		method string
		handle func(*fasthttp.RequestCtx, *game)
	}
	routes := map[string]route{
		"moves":     {fasthttp.MethodGet, s.handleMoves},
		"pickup":    {fasthttp.MethodPost, s.handlePickUp},
		"release":   {fasthttp.MethodPost, s.handleRelease},
		"promotion": {fasthttp.MethodPost, s.handlePromotion},
		"board.png": {fasthttp.MethodGet, s.handleBoard},
	}
	r, ok := routes[action]
	if !ok {
		writeError(ctx, fasthttp.StatusNotFound, chessdto.DomainError{Code: "not_found", Message: "no such route"})
		return
	}
	if r.method != method {
		methodNotAllowed(ctx)
		return
	}
	s.withGame(ctx, id, r.handle)
}

func (s *Server) withGame(ctx *fasthttp.RequestCtx, id string, fn func(*fasthttp.RequestCtx, *game)) {
	g, ok := s.games.get(id)
	if !ok {
		writeError(ctx, fasthttp.StatusNotFound, chessdto.DomainError{Code: "game_not_found", Message: "no such game"})
		return
	}
	g.touch()
	fn(ctx, g)
}

// requestContext derives from the server lifetime rather than the
// RequestCtx, so waits end on shutdown or after RequestTimeout.
func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.opts.RequestTimeout)
}

func (s *Server) lookupState(id string) (*chessdto.GameState, bool) {
	g, ok := s.games.get(id)
	if !ok {
		return nil, false
	}
	return toGameState(g.sess.Snapshot(), s.opts.Catalog), true
}

// ListenAndServe runs the API on httpAddr and the websocket feed on wsAddr
// until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, httpAddr, wsAddr string) error {
	s.httpSrv = &fasthttp.Server{
		Handler:      s.Handler(),
		Name:         "relaychess",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.opts.RequestTimeout + 5*time.Second,
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	s.wsSrv = &http.Server{Addr: wsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	httpLn, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return err
	}
	wsLn, err := net.Listen("tcp", wsAddr)
	if err != nil {
		_ = httpLn.Close()
		return err
	}
	obslog.L().Info("http_listen", zap.String("http_addr", httpLn.Addr().String()), zap.String("ws_addr", wsLn.Addr().String()))

	errCh := make(chan error, 2)
	go func() { errCh <- s.httpSrv.Serve(httpLn) }()
	go func() {
		if err := s.wsSrv.Serve(wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			obslog.L().Error("http_serve_error", zap.Error(err))
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if serr := s.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Shutdown abandons running games, stops background loops and closes listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, g := range s.games.all() {
		g.sess.Abandon(ctx)
	}
	s.cancel()
	s.hub.closeAll()

	var errs []error
	if s.httpSrv != nil {
		errs = append(errs, s.httpSrv.ShutdownWithContext(ctx))
	}
	if s.wsSrv != nil {
		errs = append(errs, s.wsSrv.Shutdown(ctx))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, derr chessdto.DomainError) {
	writeJSON(ctx, status, derr)
}

func methodNotAllowed(ctx *fasthttp.RequestCtx) {
	writeError(ctx, fasthttp.StatusMethodNotAllowed, chessdto.DomainError{Code: "method_not_allowed", Message: "method not allowed"})
}

func decodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, chessdto.DomainError{Code: "bad_request", Message: "invalid json body: " + err.Error()})
		return false
	}
	return true
}

// writeDomainError maps package errors to status codes and stable codes.
func writeDomainError(ctx *fasthttp.RequestCtx, err error) {
	status, code, retry := fasthttp.StatusInternalServerError, "internal", false
	switch {
	case errors.Is(err, session.ErrNotYourTurn):
		status, code = fasthttp.StatusConflict, "not_your_turn"
	case errors.Is(err, errWaitingOpponent):
		status, code = fasthttp.StatusConflict, "waiting_opponent"
	case errors.Is(err, session.ErrGameOver):
		status, code = fasthttp.StatusConflict, "game_over"
	case errors.Is(err, session.ErrPromotionInProgress):
		status, code = fasthttp.StatusConflict, "promotion_pending"
	case errors.Is(err, session.ErrNoPromotionPending):
		status, code = fasthttp.StatusConflict, "no_promotion_pending"
	case errors.Is(err, session.ErrInvalidPromotion):
		status, code = fasthttp.StatusBadRequest, "invalid_promotion"
	case errors.Is(err, session.ErrInvalidOptions), errors.Is(err, chess.ErrInvalidSquare),
		errors.Is(err, pvpchan.ErrInvalidArgs), errors.Is(err, errBadRequest):
		status, code = fasthttp.StatusBadRequest, "bad_request"
	case errors.Is(err, pvpchan.ErrInvalidCode):
		status, code = fasthttp.StatusBadRequest, "invalid_code"
	case errors.Is(err, pvpchan.ErrRoomNotFound):
		status, code = fasthttp.StatusNotFound, "room_not_found"
	case errors.Is(err, pvpchan.ErrRoomFull):
		status, code = fasthttp.StatusConflict, "room_full"
	case errors.Is(err, pvpchan.ErrRoomClosed):
		status, code = fasthttp.StatusGone, "room_closed"
	case errors.Is(err, pvpchan.ErrMalformedMove):
		status, code = fasthttp.StatusBadGateway, "malformed_move"
	case errors.Is(err, pvpchan.ErrCodeExhausted), errors.Is(err, kvstore.ErrUnavailable):
		status, code, retry = fasthttp.StatusServiceUnavailable, "store_unavailable", true
	case errors.Is(err, context.DeadlineExceeded):
		status, code, retry = fasthttp.StatusGatewayTimeout, "timeout", true
	}
	if status == fasthttp.StatusInternalServerError {
		obslog.L().Error("http_internal_error", zap.ByteString("path", ctx.Path()), zap.Error(err))
	}
	writeError(ctx, status, chessdto.DomainError{Code: code, Message: err.Error(), Retryable: retry})
}
