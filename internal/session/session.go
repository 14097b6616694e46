// Package session owns one game: the position, whose turn it is, the local
// player's color and the opponent (another local player, the bot or a remote
// player reached through a room).
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/bot"
	"github.com/park285/Cheese-RelayChess/internal/chess"
	"github.com/park285/Cheese-RelayChess/internal/domain"
	"github.com/park285/Cheese-RelayChess/internal/kvstore"
	"github.com/park285/Cheese-RelayChess/internal/obslog"
	"github.com/park285/Cheese-RelayChess/internal/pvpchan"
)

type Mode string

const (
	ModeLocal  Mode = "local"
	ModeBot    Mode = "bot"
	ModeRemote Mode = "remote"
)

var (
	ErrNotYourTurn         = errors.New("session: not your turn")
	ErrGameOver            = errors.New("session: game is over")
	ErrNoPromotionPending  = errors.New("session: no promotion pending")
	ErrInvalidPromotion    = errors.New("session: invalid promotion piece")
	ErrPromotionInProgress = errors.New("session: promotion choice pending")
	ErrInvalidOptions      = errors.New("session: invalid options")
)

// Abort reasons carried by an aborted snapshot.
const (
	ReasonAbandoned        = "abandoned"
	ReasonIdle             = "idle"
	ReasonStoreUnavailable = "store_unavailable"
	ReasonMalformedMove    = "malformed_move"
	ReasonTimeout          = "timeout"
	ReasonRoomClosed       = "room_closed"
	ReasonOpponentFailed   = "opponent_failed"
)

// abortReason classifies the error that ended a remote game.
func abortReason(err error) string {
	switch {
	case errors.Is(err, kvstore.ErrUnavailable):
		return ReasonStoreUnavailable
	case errors.Is(err, pvpchan.ErrMalformedMove):
		return ReasonMalformedMove
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, pvpchan.ErrRoomClosed):
		return ReasonRoomClosed
	default:
		return ReasonOpponentFailed
	}
}

// Recorder persists finished games.
type Recorder interface {
	SaveResult(ctx context.Context, rec *domain.GameRecord) error
}

type Options struct {
	ID   string
	Mode Mode
	// Player is the local color in bot and remote games. Remote games take
	// it from the channel; local games start with White.
	Player  chess.Color
	Bot     *bot.Bot
	Channel *pvpchan.Channel
	// Recorder is optional.
	Recorder Recorder
	// WaitTimeout bounds each wait for a promotion choice or an opponent
	// move. Zero waits until the session ends or the caller cancels.
	WaitTimeout time.Duration
	// SearchTimeout bounds each bot search. A search cut short still plays
	// the best move found so far. Zero leaves it to the caller's context.
	SearchTimeout time.Duration
	// StartFEN replaces the standard starting position. Remote games always
	// start from the standard position.
	StartFEN string
}

type Session struct {
	id       string
	mode     Mode
	bot      *bot.Bot
	ch       *pvpchan.Channel
	recorder Recorder
	timeout  time.Duration
	search   time.Duration
	started  time.Time
	startFEN string

	// life is cancelled when the game ends, releasing every wait.
	life       context.Context
	end        context.CancelFunc
	finishOnce sync.Once

	mu        sync.Mutex
	pos       *chess.Position
	turn      chess.Color
	player    chess.Color
	held      *chess.Square
	last      *chess.Move
	history   []chess.Move
	outcome   chess.Outcome
	abortWhy  string
	abortErr  string
	promoting bool
	promoCh   chan chess.PieceType
	listeners []func(Snapshot)
}

func New(opts Options) (*Session, error) {
	s := &Session{
		id:       opts.ID,
		mode:     opts.Mode,
		bot:      opts.Bot,
		ch:       opts.Channel,
		recorder: opts.Recorder,
		timeout:  opts.WaitTimeout,
		search:   opts.SearchTimeout,
		started:  time.Now(),
		pos:      chess.NewPosition(),
		turn:     chess.White,
		player:   opts.Player,
		promoCh:  make(chan chess.PieceType, 1),
	}
	if s.id == "" {
		s.id = domain.NewGameID()
	}
	if opts.StartFEN != "" && opts.Mode != ModeRemote {
		pos, turn, err := chess.ParseFEN(opts.StartFEN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		s.pos, s.turn = pos, turn
		s.startFEN = opts.StartFEN
	}
	switch opts.Mode {
	case ModeLocal:
		s.player = s.turn
	case ModeBot:
		if opts.Bot == nil {
			return nil, fmt.Errorf("%w: bot mode without a bot", ErrInvalidOptions)
		}
		if s.player != chess.White && s.player != chess.Black {
			return nil, fmt.Errorf("%w: player color %s", ErrInvalidOptions, s.player)
		}
	case ModeRemote:
		if opts.Channel == nil {
			return nil, fmt.Errorf("%w: remote mode without a channel", ErrInvalidOptions)
		}
		s.player = opts.Channel.Color()
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidOptions, opts.Mode)
	}
	s.life, s.end = context.WithCancel(context.Background())
	obslog.L().Info("session_new", zap.String("id", s.id), zap.String("mode", string(s.mode)), zap.String("player", s.player.String()))
	return s, nil
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Mode() Mode   { return s.mode }
func (s *Session) Code() string { return s.code() }

func (s *Session) code() string {
	if s.ch == nil {
		return ""
	}
	return s.ch.Code()
}

// Done is closed when the game reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.life.Done() }

// OnChange registers fn to receive a snapshot after every state change.
// Callbacks run outside the session lock.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	fns := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:                s.id,
		Mode:              s.mode,
		Code:              s.code(),
		Hosting:           s.ch != nil && s.ch.State() == pvpchan.StateHosting,
		Board:             s.pos.Board(),
		Turn:              s.turn,
		Player:            s.player,
		Check:             s.pos.IsChecked(s.turn),
		AwaitingPromotion: s.promoting,
		Outcome:           s.outcome,
		AbortReason:       s.abortWhy,
		AbortError:        s.abortErr,
		MovesUCI:          make([]string, 0, len(s.history)),
		FEN:               s.pos.FEN(s.turn),
	}
	if s.held != nil {
		h := *s.held
		snap.Held = &h
		for _, m := range s.pos.LegalMoves(h) {
			snap.Targets = append(snap.Targets, m.To)
		}
	}
	if s.last != nil {
		l := *s.last
		snap.LastMove = &l
	}
	for _, m := range s.history {
		snap.MovesUCI = append(snap.MovesUCI, m.UCI())
	}
	return snap
}

// LegalMoves lists the legal moves from sq regardless of whose turn it is.
func (s *Session) LegalMoves(sq chess.Square) []chess.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos.LegalMoves(sq)
}

func (s *Session) inputAllowedLocked() error {
	switch {
	case s.outcome.Over:
		return ErrGameOver
	case s.promoting:
		return ErrPromotionInProgress
	case s.turn != s.player:
		return ErrNotYourTurn
	}
	return nil
}

// PickUp selects the local player's piece on sq and returns its legal moves
// for highlighting. Picking up an empty square or an opposing piece clears
// the selection and returns nil.
func (s *Session) PickUp(sq chess.Square) ([]chess.Move, error) {
	s.mu.Lock()
	if err := s.inputAllowedLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.held = nil
	var moves []chess.Move
	if sq.Valid() && s.pos.At(sq).Color() == s.turn {
		held := sq
		s.held = &held
		moves = s.pos.LegalMoves(sq)
	}
	s.mu.Unlock()
	s.notify()
	return moves, nil
}

// Release drops the held piece on sq. An illegal target is rejected without
// any state change and reports false. A promoting move suspends until
// SelectPromotion supplies the piece. In bot games the bot's reply is applied
// before Release returns; in remote games the move is relayed to the room.
func (s *Session) Release(ctx context.Context, sq chess.Square) (bool, error) {
	s.mu.Lock()
	if err := s.inputAllowedLocked(); err != nil {
		s.mu.Unlock()
		return false, err
	}
	if s.held == nil {
		s.mu.Unlock()
		return false, nil
	}
	from := *s.held
	s.held = nil
	m, ok := s.pos.FindLegalMove(from, sq)
	if !ok {
		s.mu.Unlock()
		s.notify()
		return false, nil
	}

	if m.NeedsPromotion() {
		select {
		case <-s.promoCh:
		default:
		}
		s.promoting = true
		s.mu.Unlock()
		s.notify()
		t, err := s.awaitPromotion(ctx)
		s.mu.Lock()
		s.promoting = false
		if err != nil {
			s.mu.Unlock()
			s.notify()
			return false, err
		}
		if s.outcome.Over {
			s.mu.Unlock()
			return false, ErrGameOver
		}
		m = m.Promote(t)
	}

	s.applyLocked(m)
	over := s.checkOutcomeLocked()
	s.mu.Unlock()
	s.notify()

	if s.mode == ModeRemote {
		if err := s.ch.SendMove(ctx, m); err != nil {
			s.abort(ctx, abortReason(err), err)
			return true, err
		}
	}
	if over {
		// the opponent still has to read the final move; it closes the room
		s.finish(ctx, false)
		return true, nil
	}
	if s.mode == ModeBot {
		if err := s.playBot(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

// SelectPromotion answers a pending promotion. Anything but knight, bishop,
// rook or queen is refused.
func (s *Session) SelectPromotion(t chess.PieceType) error {
	if !t.IsPromotionChoice() {
		return ErrInvalidPromotion
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.promoting {
		return ErrNoPromotionPending
	}
	select {
	case s.promoCh <- t:
	default:
		// a choice is already queued
	}
	return nil
}

func (s *Session) awaitPromotion(ctx context.Context) (chess.PieceType, error) {
	ctx, cancel := s.bind(ctx)
	defer cancel()
	select {
	case t := <-s.promoCh:
		return t, nil
	case <-ctx.Done():
		return chess.NoPieceType, ctx.Err()
	}
}

// bind ties a wait to the caller's context, the session lifetime and the
// configured wait timeout.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(s.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) applyLocked(m chess.Move) {
	s.pos.Apply(m)
	s.history = append(s.history, m)
	s.last = &m
	s.turn = s.turn.Opposite()
	if s.mode == ModeLocal {
		s.player = s.turn
	}
}

// checkOutcomeLocked records a terminal position and reports whether the
// game just ended.
func (s *Session) checkOutcomeLocked() bool {
	if s.outcome.Over {
		return false
	}
	o := s.pos.GameOver()
	if !o.Over {
		return false
	}
	s.outcome = o
	return true
}

// Start lets the bot open the game when the player chose Black.
func (s *Session) Start(ctx context.Context) error {
	if s.mode != ModeBot {
		return nil
	}
	s.mu.Lock()
	botTurn := s.turn != s.player && !s.outcome.Over
	s.mu.Unlock()
	if !botTurn {
		return nil
	}
	return s.playBot(ctx)
}

func (s *Session) playBot(ctx context.Context) error {
	s.mu.Lock()
	if s.outcome.Over || s.turn == s.player {
		s.mu.Unlock()
		return nil
	}
	sctx, cancel := ctx, context.CancelFunc(func() {})
	if s.search > 0 {
		sctx, cancel = context.WithTimeout(ctx, s.search)
	}
	res, err := s.bot.BestMove(sctx, s.pos, s.turn)
	cancel()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.applyLocked(res.Move)
	over := s.checkOutcomeLocked()
	s.mu.Unlock()
	obslog.L().Debug("bot_move", zap.String("id", s.id), zap.String("move", res.Move.UCI()), zap.Int("score", res.Score), zap.Int("nodes", res.Nodes), zap.Int("ties", res.Ties), zap.Bool("partial", res.Partial))
	s.notify()
	if over {
		s.finish(ctx, false)
	}
	return nil
}

// AwaitOpponent blocks for the remote opponent's next move and applies it.
// Any failure other than the caller cancelling aborts the game with its
// reason and is returned: a malformed or out-of-turn record, a wait that
// timed out or a store that went away.
func (s *Session) AwaitOpponent(ctx context.Context) error {
	if s.mode != ModeRemote {
		return fmt.Errorf("%w: not a remote game", ErrInvalidOptions)
	}
	wctx, cancel := s.bind(ctx)
	defer cancel()
	rec, err := s.ch.ReceiveMove(wctx)
	if err != nil {
		if s.Snapshot().Outcome.Over {
			return ErrGameOver
		}
		if !errors.Is(err, context.Canceled) {
			s.abort(ctx, abortReason(err), err)
		}
		return err
	}

	s.mu.Lock()
	if s.outcome.Over {
		s.mu.Unlock()
		return ErrGameOver
	}
	opp := s.player.Opposite()
	if s.turn != opp {
		s.mu.Unlock()
		err := fmt.Errorf("%w: move received out of turn", pvpchan.ErrMalformedMove)
		s.abort(ctx, ReasonMalformedMove, err)
		return err
	}
	m, err := rec.Resolve(s.pos, opp)
	if err != nil {
		s.mu.Unlock()
		s.abort(ctx, abortReason(err), err)
		return err
	}
	s.applyLocked(m)
	over := s.checkOutcomeLocked()
	s.mu.Unlock()
	s.notify()
	if over {
		s.finish(ctx, true)
	}
	return nil
}

// RunOpponent completes the host handshake if needed, then applies opponent
// moves until the game ends. It returns nil when the game ended normally.
func (s *Session) RunOpponent(ctx context.Context) error {
	if s.mode != ModeRemote {
		return fmt.Errorf("%w: not a remote game", ErrInvalidOptions)
	}
	if s.ch.State() == pvpchan.StateHosting {
		wctx, cancel := s.bind(ctx)
		err := s.ch.WaitOpponent(wctx)
		cancel()
		if err != nil {
			if s.Snapshot().Outcome.Over {
				return nil
			}
			if !errors.Is(err, context.Canceled) {
				s.abort(ctx, abortReason(err), err)
			}
			return err
		}
		s.notify()
	}
	for {
		err := s.AwaitOpponent(ctx)
		switch {
		case errors.Is(err, ErrGameOver):
			return nil
		case err != nil:
			return err
		}
		if s.Snapshot().Outcome.Over {
			return nil
		}
	}
}

// Abandon ends an unfinished game as aborted, releasing every wait.
func (s *Session) Abandon(ctx context.Context) {
	s.abort(ctx, ReasonAbandoned, nil)
}

// Expire aborts an unfinished game that nobody is playing any more.
func (s *Session) Expire(ctx context.Context) {
	s.abort(ctx, ReasonIdle, nil)
}

func (s *Session) abort(ctx context.Context, reason string, cause error) {
	s.mu.Lock()
	if s.outcome.Over {
		s.mu.Unlock()
		return
	}
	s.outcome = chess.Outcome{Over: true, Method: chess.Aborted}
	s.abortWhy = reason
	if cause != nil {
		s.abortErr = cause.Error()
	}
	s.held = nil
	s.mu.Unlock()
	obslog.L().Warn("session_abort", zap.String("id", s.id), zap.String("reason", reason), zap.Error(cause))
	s.notify()
	s.finish(ctx, true)
}

// finish runs once per game: releases waiters, optionally tears down the
// room and persists the record.
func (s *Session) finish(ctx context.Context, closeRoom bool) {
	s.finishOnce.Do(func() { s.finishGame(ctx, closeRoom) })
}

func (s *Session) finishGame(ctx context.Context, closeRoom bool) {
	s.end()

	// the caller's context may be the one that just expired
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if s.ch != nil && closeRoom {
		if err := s.ch.Close(ctx); err != nil {
			obslog.L().Warn("session_room_close_error", zap.String("id", s.id), zap.Error(err))
		}
	}
	rec := s.Record()
	obslog.L().Info("session_finish", zap.String("id", s.id), zap.String("result", rec.Result), zap.String("method", rec.ResultMethod), zap.Int("plies", len(rec.MovesUCI)))
	if s.recorder == nil {
		return
	}
	if err := s.recorder.SaveResult(ctx, rec); err != nil {
		obslog.L().Error("session_result_persist_error", zap.String("id", s.id), zap.Error(err))
	}
}

// Record builds the persistable record of the game so far.
func (s *Session) Record() *domain.GameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &domain.GameRecord{
		ID:           s.id,
		Mode:         string(s.mode),
		RoomCode:     s.code(),
		Result:       s.outcome.Result(),
		ResultMethod: string(s.outcome.Method),
		StartFEN:     s.startFEN,
		FinalFEN:     s.pos.FEN(s.turn),
		StartedAt:    s.started,
		EndedAt:      time.Now(),
	}
	if s.mode != ModeLocal {
		rec.PlayerColor = s.player.String()
	}
	if s.bot != nil {
		rec.BotDepth = s.bot.Depth()
	}
	for _, m := range s.history {
		rec.MovesUCI = append(rec.MovesUCI, m.UCI())
	}
	return rec
}
