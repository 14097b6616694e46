package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"github.com/park285/Cheese-RelayChess/internal/bot"
	"github.com/park285/Cheese-RelayChess/internal/kvstore"
	"github.com/park285/Cheese-RelayChess/internal/msgcat"
	"github.com/park285/Cheese-RelayChess/internal/pvpchan"
	"github.com/park285/Cheese-RelayChess/pkg/chessdto"
)

func newTestServer(t *testing.T, rooms *pvpchan.Manager) *Server {
	t.Helper()
	return newTestServerWith(t, func(o *Options) { o.Rooms = rooms })
}

func newTestServerWith(t *testing.T, adjust func(*Options)) *Server {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	opts := Options{
		Catalog: cat,
		NewBot: func(string) (*bot.Bot, error) {
			b := bot.New(1)
			b.SetRandomSeed(7)
			return b, nil
		},
		WaitTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
	adjust(&opts)
	s := New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func newTestRooms(t *testing.T) *pvpchan.Manager {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return pvpchan.NewManager(kvstore.NewRedisStore(rdb, kvstore.Options{Prefix: "test:", TTL: time.Hour, PollInterval: 50 * time.Millisecond}))
}

type response struct {
	status int
	ctype  string
	body   []byte
}

func do(t *testing.T, s *Server, method, uri string, body any) response {
	t.Helper()
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		ctx.Request.SetBody(raw)
	}
	s.Handler()(&ctx)
	return response{
		status: ctx.Response.StatusCode(),
		ctype:  string(ctx.Response.Header.ContentType()),
		body:   append([]byte(nil), ctx.Response.Body()...),
	}
}

func decode[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(r.body, &v); err != nil {
		t.Fatalf("decode %s: %v", r.body, err)
	}
	return v
}

func createGame(t *testing.T, s *Server, req chessdto.CreateGameRequest) chessdto.CreateGameResponse {
	t.Helper()
	r := do(t, s, http.MethodPost, "/games", req)
	if r.status != http.StatusCreated {
		t.Fatalf("create %+v: status %d body %s", req, r.status, r.body)
	}
	return decode[chessdto.CreateGameResponse](t, r)
}

func state(t *testing.T, s *Server, id string) chessdto.GameState {
	t.Helper()
	r := do(t, s, http.MethodGet, "/games/"+id, nil)
	if r.status != http.StatusOK {
		t.Fatalf("state: status %d body %s", r.status, r.body)
	}
	return decode[chessdto.GameState](t, r)
}

func move(t *testing.T, s *Server, id, from, to string) response {
	t.Helper()
	if r := do(t, s, http.MethodPost, "/games/"+id+"/pickup", chessdto.SquareRequest{Square: from}); r.status != http.StatusOK {
		t.Fatalf("pickup %s: status %d body %s", from, r.status, r.body)
	}
	return do(t, s, http.MethodPost, "/games/"+id+"/release", chessdto.SquareRequest{Square: to})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	r := do(t, s, http.MethodGet, "/healthz", nil)
	if r.status != http.StatusOK || r.ctype != "application/json" {
		t.Fatalf("healthz: %d %q", r.status, r.ctype)
	}
}

func TestRoutingErrors(t *testing.T) {
	s := newTestServer(t, nil)
	cases := []struct {
		name   string
		method string
		uri    string
		body   any
		status int
		code   string
	}{
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown game", http.MethodGet, "/games/missing", nil, http.StatusNotFound, "game_not_found"},
		{"wrong method", http.MethodPut, "/games/missing", nil, http.StatusMethodNotAllowed, "method_not_allowed"},
		{"unknown mode", http.MethodPost, "/games", chessdto.CreateGameRequest{Mode: "blitz"}, http.StatusBadRequest, "bad_request"},
		{"bad color", http.MethodPost, "/games", chessdto.CreateGameRequest{Mode: "bot", Color: "green"}, http.StatusBadRequest, "bad_request"},
		{"bad fen", http.MethodPost, "/games", chessdto.CreateGameRequest{Mode: "local", FEN: "not a fen"}, http.StatusBadRequest, "bad_request"},
		{"rooms unavailable", http.MethodPost, "/games", chessdto.CreateGameRequest{Mode: "host"}, http.StatusServiceUnavailable, "store_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := do(t, s, tc.method, tc.uri, tc.body)
			if r.status != tc.status {
				t.Fatalf("status = %d, want %d (%s)", r.status, tc.status, r.body)
			}
			if got := decode[chessdto.DomainError](t, r); got.Code != tc.code {
				t.Fatalf("code = %q, want %q", got.Code, tc.code)
			}
		})
	}
}

func TestLocalGameMoves(t *testing.T) {
	s := newTestServer(t, nil)
	g := createGame(t, s, chessdto.CreateGameRequest{Mode: "local"})
	if g.Color != "white" {
		t.Fatalf("local game starts with %s", g.Color)
	}

	r := do(t, s, http.MethodPost, "/games/"+g.ID+"/pickup", chessdto.SquareRequest{Square: "e2"})
	moves := decode[chessdto.MovesResponse](t, r)
	if len(moves.Targets) != 2 || moves.Targets[0] != "e3" && moves.Targets[1] != "e3" {
		t.Fatalf("targets = %v", moves.Targets)
	}
	if st := state(t, s, g.ID); st.Held != "e2" || len(st.Targets) != 2 {
		t.Fatalf("held = %q targets = %v", st.Held, st.Targets)
	}

	r = do(t, s, http.MethodPost, "/games/"+g.ID+"/release", chessdto.SquareRequest{Square: "e5"})
	if rel := decode[chessdto.ReleaseResponse](t, r); r.status != http.StatusOK || rel.Applied {
		t.Fatalf("illegal release: %d %s", r.status, r.body)
	}
	if st := state(t, s, g.ID); st.Held != "" || st.Turn != "white" {
		t.Fatalf("after illegal release held = %q turn = %s", st.Held, st.Turn)
	}

	r = move(t, s, g.ID, "e2", "e4")
	rel := decode[chessdto.ReleaseResponse](t, r)
	if !rel.Applied || rel.State.Turn != "black" || rel.State.LastMove != "e2e4" {
		t.Fatalf("release = %s", r.body)
	}
	if rel.State.Player != "black" || rel.State.Board[4] != "....P..." {
		t.Fatalf("board after e4 = %v player %s", rel.State.Board, rel.State.Player)
	}

	r = do(t, s, http.MethodGet, "/games/"+g.ID+"/moves?square=g8", nil)
	if moves := decode[chessdto.MovesResponse](t, r); len(moves.Moves) != 2 {
		t.Fatalf("g8 moves = %v", moves.Moves)
	}
	r = do(t, s, http.MethodGet, "/games/"+g.ID+"/moves?square=z9", nil)
	if r.status != http.StatusBadRequest {
		t.Fatalf("bad square status = %d", r.status)
	}
}

func TestBotGameReplies(t *testing.T) {
	s := newTestServer(t, nil)
	g := createGame(t, s, chessdto.CreateGameRequest{Mode: "bot", Color: "white"})

	r := move(t, s, g.ID, "e2", "e4")
	rel := decode[chessdto.ReleaseResponse](t, r)
	if !rel.Applied || len(rel.State.MovesUCI) != 2 || rel.State.Turn != "white" || !rel.State.YourTurn {
		t.Fatalf("bot reply missing: %s", r.body)
	}

	r = do(t, s, http.MethodPost, "/games/"+g.ID+"/pickup", chessdto.SquareRequest{Square: "e7"})
	if moves := decode[chessdto.MovesResponse](t, r); len(moves.Moves) != 0 {
		t.Fatalf("picked up an opposing piece: %v", moves.Moves)
	}
}

func TestBotOpensWhenPlayerIsBlack(t *testing.T) {
	s := newTestServer(t, nil)
	g := createGame(t, s, chessdto.CreateGameRequest{Mode: "bot", Color: "black"})
	st := state(t, s, g.ID)
	if g.Color != "black" || len(st.MovesUCI) != 1 || st.Turn != "black" {
		t.Fatalf("bot did not open: color %s moves %v", g.Color, st.MovesUCI)
	}
	if st.Flipped[7] != "rnbkqbnr" {
		t.Fatalf("flipped board bottom row = %q", st.Flipped[7])
	}
}

func TestPromotionFlow(t *testing.T) {
	s := newTestServer(t, nil)
	g := createGame(t, s, chessdto.CreateGameRequest{Mode: "local", FEN: "8/P6k/8/8/8/8/8/K7 w - - 0 1"})

	r := move(t, s, g.ID, "a7", "a8")
	if r.status != http.StatusAccepted {
		t.Fatalf("promotion release status = %d body %s", r.status, r.body)
	}
	rel := decode[chessdto.ReleaseResponse](t, r)
	if rel.Applied || !rel.State.AwaitingPromotion || rel.State.YourTurn {
		t.Fatalf("awaiting state = %s", r.body)
	}

	r = do(t, s, http.MethodPost, "/games/"+g.ID+"/release", chessdto.SquareRequest{Square: "a8"})
	if r.status != http.StatusConflict {
		t.Fatalf("second release status = %d", r.status)
	}
	r = do(t, s, http.MethodPost, "/games/"+g.ID+"/promotion", chessdto.PromotionRequest{Piece: "k"})
	if got := decode[chessdto.DomainError](t, r); r.status != http.StatusBadRequest || got.Code != "invalid_promotion" {
		t.Fatalf("king promotion: %d %s", r.status, r.body)
	}

	r = do(t, s, http.MethodPost, "/games/"+g.ID+"/promotion", chessdto.PromotionRequest{Piece: "n"})
	if r.status != http.StatusOK {
		t.Fatalf("promotion status = %d body %s", r.status, r.body)
	}
	rel = decode[chessdto.ReleaseResponse](t, r)
	if !rel.Applied || rel.State.Board[0] != "N......." || rel.State.LastMove != "a7a8n" {
		t.Fatalf("after promotion = %s", r.body)
	}

	r = do(t, s, http.MethodPost, "/games/"+g.ID+"/promotion", chessdto.PromotionRequest{Piece: "q"})
	if got := decode[chessdto.DomainError](t, r); got.Code != "no_promotion_pending" {
		t.Fatalf("stray promotion: %d %s", r.status, r.body)
	}
}

func TestBoardPNG(t *testing.T) {
	s := newTestServer(t, nil)
	g := createGame(t, s, chessdto.CreateGameRequest{Mode: "local"})
	r := do(t, s, http.MethodGet, "/games/"+g.ID+"/board.png", nil)
	if r.status != http.StatusOK || r.ctype != "image/png" {
		t.Fatalf("board.png: %d %q", r.status, r.ctype)
	}
	if !bytes.HasPrefix(r.body, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("body is not a png")
	}
}

func TestAbandonRecordsResult(t *testing.T) {
	s := newTestServer(t, nil)
	g := createGame(t, s, chessdto.CreateGameRequest{Mode: "local"})
	move(t, s, g.ID, "e2", "e4")

	r := do(t, s, http.MethodDelete, "/games/"+g.ID, nil)
	st := decode[chessdto.GameState](t, r)
	if !st.Outcome.Over || st.Outcome.Method != "aborted" || st.Outcome.Result != "aborted" {
		t.Fatalf("abandon = %s", r.body)
	}
	if st.StatusText != "Game aborted" {
		t.Fatalf("status text = %q", st.StatusText)
	}
	r = do(t, s, http.MethodPost, "/games/"+g.ID+"/release", chessdto.SquareRequest{Square: "e5"})
	if got := decode[chessdto.DomainError](t, r); got.Code != "game_over" {
		t.Fatalf("release after abandon: %s", r.body)
	}

	hist := decode[chessdto.HistoryResponse](t, do(t, s, http.MethodGet, "/results?mode=local", nil))
	if len(hist.Games) != 1 || hist.Games[0].ID != g.ID || len(hist.Games[0].MovesSAN) != 1 {
		t.Fatalf("history = %+v", hist)
	}
	rec := decode[chessdto.GameRecord](t, do(t, s, http.MethodGet, "/results/"+g.ID, nil))
	if rec.Result != "aborted" || rec.MovesUCI[0] != "e2e4" {
		t.Fatalf("record = %+v", rec)
	}
	if r := do(t, s, http.MethodGet, "/results/unknown", nil); r.status != http.StatusNotFound {
		t.Fatalf("unknown record status = %d", r.status)
	}
	if r := do(t, s, http.MethodGet, "/results?limit=x", nil); r.status != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", r.status)
	}
	stats := decode[chessdto.StatsResponse](t, do(t, s, http.MethodGet, "/stats", nil))
	if stats.GamesPlayed != 1 || stats.Aborted != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRemoteGameRelaysMoves(t *testing.T) {
	s := newTestServer(t, newTestRooms(t))

	host := createGame(t, s, chessdto.CreateGameRequest{Mode: "host", Color: "white"})
	if len(host.Code) != 4 || host.Color != "white" {
		t.Fatalf("host = %+v", host)
	}
	st := state(t, s, host.ID)
	if st.YourTurn {
		t.Fatalf("hosting game accepts input before the join")
	}
	r := do(t, s, http.MethodPost, "/games/"+host.ID+"/pickup", chessdto.SquareRequest{Square: "e2"})
	if got := decode[chessdto.DomainError](t, r); got.Code != "waiting_opponent" {
		t.Fatalf("pickup while hosting: %s", r.body)
	}

	r = do(t, s, http.MethodPost, "/games", chessdto.CreateGameRequest{Mode: "join", Code: "zz"})
	if got := decode[chessdto.DomainError](t, r); got.Code != "invalid_code" {
		t.Fatalf("bad code: %s", r.body)
	}
	r = do(t, s, http.MethodPost, "/games", chessdto.CreateGameRequest{Mode: "join", Code: "QQQQ"})
	if got := decode[chessdto.DomainError](t, r); got.Code != "room_not_found" {
		t.Fatalf("missing room: %s", r.body)
	}

	guest := createGame(t, s, chessdto.CreateGameRequest{Mode: "join", Code: host.Code})
	if guest.Color != "black" || guest.Code != host.Code {
		t.Fatalf("guest = %+v", guest)
	}
	r = do(t, s, http.MethodPost, "/games", chessdto.CreateGameRequest{Mode: "join", Code: host.Code})
	if got := decode[chessdto.DomainError](t, r); got.Code != "room_full" {
		t.Fatalf("third player: %s", r.body)
	}

	eventually(t, "host to see the join", func() bool { return state(t, s, host.ID).YourTurn })
	if rel := decode[chessdto.ReleaseResponse](t, move(t, s, host.ID, "e2", "e4")); !rel.Applied {
		t.Fatalf("host move not applied")
	}
	eventually(t, "guest to receive e2e4", func() bool {
		st := state(t, s, guest.ID)
		return len(st.MovesUCI) == 1 && st.YourTurn
	})

	if rel := decode[chessdto.ReleaseResponse](t, move(t, s, guest.ID, "e7", "e5")); !rel.Applied {
		t.Fatalf("guest move not applied")
	}
	eventually(t, "host to receive e7e5", func() bool {
		st := state(t, s, host.ID)
		return st.LastMove == "e7e5" && st.Turn == "white"
	})
}

func TestDefaults(t *testing.T) {
	s := New(Options{RequestTimeout: 4 * time.Second})
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	b, err := s.opts.NewBot("")
	if err != nil || b.Depth() != 2 {
		t.Fatalf("default bot = %v, %v", b, err)
	}
	if s.opts.SearchTimeout != 3*time.Second || s.opts.IdleTimeout != 30*time.Minute {
		t.Fatalf("search=%v idle=%v", s.opts.SearchTimeout, s.opts.IdleTimeout)
	}
}

func TestBotSearchFitsRequestBudget(t *testing.T) {
	s := newTestServerWith(t, func(o *Options) {
		o.NewBot = func(string) (*bot.Bot, error) { return bot.New(4), nil }
		o.SearchTimeout = time.Millisecond
	})
	g := createGame(t, s, chessdto.CreateGameRequest{Mode: "bot", Color: "white"})
	r := move(t, s, g.ID, "e2", "e4")
	if r.status != http.StatusOK {
		t.Fatalf("release: status %d body %s", r.status, r.body)
	}
	rel := decode[chessdto.ReleaseResponse](t, r)
	if !rel.Applied || len(rel.State.MovesUCI) != 2 || !rel.State.YourTurn {
		t.Fatalf("bot did not answer within its budget: %+v", rel.State)
	}
}

func TestIdleGameExpires(t *testing.T) {
	s := newTestServerWith(t, func(o *Options) { o.IdleTimeout = 100 * time.Millisecond })
	idle := createGame(t, s, chessdto.CreateGameRequest{Mode: "local"})
	busy := createGame(t, s, chessdto.CreateGameRequest{Mode: "local"})

	ig, _ := s.games.get(idle.ID)
	deadline := time.Now().Add(5 * time.Second)
	for !ig.finished() {
		if time.Now().After(deadline) {
			t.Fatalf("idle game never expired")
		}
		state(t, s, busy.ID)
		time.Sleep(20 * time.Millisecond)
	}
	if st := state(t, s, busy.ID); st.Outcome.Over {
		t.Fatalf("game in use expired: %+v", st.Outcome)
	}
	st := state(t, s, idle.ID)
	if st.Outcome.Method != "aborted" || st.Outcome.Reason != "idle" {
		t.Fatalf("idle outcome = %+v", st.Outcome)
	}
	if st.StatusText != "Game aborted after a long pause" {
		t.Fatalf("status text = %q", st.StatusText)
	}
}

func TestRemoteStoreLossEndsBothGames(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rooms := pvpchan.NewManager(kvstore.NewRedisStore(rdb, kvstore.Options{Prefix: "test:", TTL: time.Hour, HealthInterval: 50 * time.Millisecond}))
	s := newTestServer(t, rooms)

	host := createGame(t, s, chessdto.CreateGameRequest{Mode: "host", Color: "white"})
	guest := createGame(t, s, chessdto.CreateGameRequest{Mode: "join", Code: host.Code})
	eventually(t, "host to see the join", func() bool { return state(t, s, host.ID).YourTurn })

	mr.Close()
	for _, id := range []string{host.ID, guest.ID} {
		eventually(t, "abort after the store went away", func() bool { return state(t, s, id).Outcome.Over })
		st := state(t, s, id)
		if st.Outcome.Reason != "store_unavailable" || st.Outcome.Error == "" || st.YourTurn {
			t.Fatalf("%s: outcome = %+v your_turn=%v", st.Player, st.Outcome, st.YourTurn)
		}
		if st.StatusText != "Game aborted: lost the connection to the room" {
			t.Fatalf("status text = %q", st.StatusText)
		}
	}
}
