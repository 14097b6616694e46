package pvpchan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/Cheese-RelayChess/internal/chess"
	"github.com/park285/Cheese-RelayChess/internal/kvstore"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := kvstore.NewRedisStore(rdb, kvstore.Options{Prefix: "chess:", TTL: time.Hour})
	return NewManager(store), mr
}

func hostAndJoin(t *testing.T, m *Manager, pref ColorChoice) (host, guest *Channel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	host, err := m.Host(ctx, pref)
	if err != nil {
		t.Fatalf("Host: %v", err)
	}
	waited := make(chan error, 1)
	go func() { waited <- host.WaitOpponent(ctx) }()
	guest, err = m.Join(ctx, host.Code())
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := <-waited; err != nil {
		t.Fatalf("WaitOpponent: %v", err)
	}
	return host, guest
}

func mustMove(t *testing.T, p *chess.Position, from, to string) chess.Move {
	t.Helper()
	f, _ := chess.ParseSquare(from)
	tt, _ := chess.ParseSquare(to)
	m, ok := p.FindLegalMove(f, tt)
	if !ok {
		t.Fatalf("%s%s not legal", from, to)
	}
	return m
}

func TestHostWritesRoomKeys(t *testing.T) {
	m, mr := newTestManager(t)
	ch, err := m.Host(context.Background(), ColorBlack)
	if err != nil {
		t.Fatalf("Host: %v", err)
	}
	if _, err := NormalizeCode(ch.Code()); err != nil {
		t.Fatalf("bad code %q", ch.Code())
	}
	if v, _ := mr.Get("chess:" + ch.Code() + "/joined"); v != "0" {
		t.Fatalf("joined = %q", v)
	}
	if v, _ := mr.Get("chess:" + ch.Code() + "/hostColor"); v != "black" {
		t.Fatalf("hostColor = %q", v)
	}
	if ch.State() != StateHosting || ch.Color() != chess.Black {
		t.Fatalf("unexpected channel %s %s", ch.State(), ch.Color())
	}
}

func TestJoinTakesOppositeColor(t *testing.T) {
	m, mr := newTestManager(t)
	host, guest := hostAndJoin(t, m, ColorWhite)
	if host.Color() != chess.White || guest.Color() != chess.Black {
		t.Fatalf("colors host=%s guest=%s", host.Color(), guest.Color())
	}
	if host.State() != StateActive || guest.State() != StateActive {
		t.Fatalf("both sides should be active")
	}
	if v, _ := mr.Get("chess:" + host.Code() + "/joined"); v != "1" {
		t.Fatalf("joined = %q", v)
	}
}

func TestJoinErrors(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Join(ctx, "AB1"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := m.Join(ctx, "zzzz"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	host, _ := hostAndJoin(t, m, ColorRandom)
	if _, err := m.Join(ctx, host.Code()); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

// seatGate holds the first two reads of a room's joined flag until both
// have happened, so two joiners see the open seat together.
type seatGate struct {
	kvstore.Store
	mu      sync.Mutex
	pending int
	open    chan struct{}
}

func (g *seatGate) Get(ctx context.Context, path string) ([]byte, error) {
	v, err := g.Store.Get(ctx, path)
	if !strings.HasSuffix(path, "/joined") {
		return v, err
	}
	g.mu.Lock()
	wait := g.pending > 0
	if wait {
		g.pending--
		if g.pending == 0 {
			close(g.open)
		}
	}
	g.mu.Unlock()
	if wait {
		<-g.open
	}
	return v, err
}

func TestRacingJoinersGetOneSeat(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	host, err := m.Host(ctx, ColorWhite)
	if err != nil {
		t.Fatalf("Host: %v", err)
	}
	gated := NewManager(&seatGate{Store: m.store, pending: 2, open: make(chan struct{})})

	type joinResult struct {
		ch  *Channel
		err error
	}
	results := make(chan joinResult, 2)
	for i := 0; i < 2; i++ {
		go func() {
			ch, err := gated.Join(ctx, host.Code())
			results <- joinResult{ch, err}
		}()
	}
	seated, full := 0, 0
	for i := 0; i < 2; i++ {
		r := <-results
		switch {
		case r.err == nil:
			seated++
		case errors.Is(r.err, ErrRoomFull):
			full++
		default:
			t.Fatalf("Join: %v", r.err)
		}
	}
	if seated != 1 || full != 1 {
		t.Fatalf("seated=%d full=%d, want one of each", seated, full)
	}
}

// takenStore reports every code as already claimed.
type takenStore struct {
	kvstore.Store
}

func (takenStore) SetIfAbsent(context.Context, string, []byte) (bool, error) {
	return false, nil
}

func TestHostNeverReusesClaimedCode(t *testing.T) {
	m, mr := newTestManager(t)
	taken := NewManager(takenStore{Store: m.store})
	if _, err := taken.Host(context.Background(), ColorWhite); !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("expected ErrCodeExhausted, got %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("host wrote keys for a claimed code: %v", keys)
	}
}

func TestMoveRoundTripClearsPath(t *testing.T) {
	m, mr := newTestManager(t)
	white, black := hostAndJoin(t, m, ColorWhite)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wp, bp := chess.NewPosition(), chess.NewPosition()
	e4 := mustMove(t, wp, "e2", "e4")
	wp.Apply(e4)
	if err := white.SendMove(ctx, e4); err != nil {
		t.Fatalf("SendMove: %v", err)
	}
	whiteKey := "chess:" + white.Code() + "/whiteMove"
	if !mr.Exists(whiteKey) {
		t.Fatalf("white record not stored")
	}

	rec, err := black.ReceiveMove(ctx)
	if err != nil {
		t.Fatalf("ReceiveMove: %v", err)
	}
	got, err := rec.Resolve(bp, chess.White)
	if err != nil || got != e4 {
		t.Fatalf("Resolve: %v, %v", got, err)
	}
	bp.Apply(got)
	if mr.Exists(whiteKey) {
		t.Fatalf("white record should be removed before black replies")
	}

	e5 := mustMove(t, bp, "e7", "e5")
	bp.Apply(e5)
	if err := black.SendMove(ctx, e5); err != nil {
		t.Fatalf("SendMove: %v", err)
	}
	rec, err = white.ReceiveMove(ctx)
	if err != nil {
		t.Fatalf("ReceiveMove: %v", err)
	}
	if rec.From != [2]int{6, 4} || rec.To != [2]int{4, 4} || rec.Promote != "" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestReceiveBlocksUntilMoveArrives(t *testing.T) {
	m, _ := newTestManager(t)
	white, black := hostAndJoin(t, m, ColorWhite)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan MoveRecord, 1)
	go func() {
		rec, err := black.ReceiveMove(ctx)
		if err != nil {
			t.Errorf("ReceiveMove: %v", err)
		}
		got <- rec
	}()
	time.Sleep(30 * time.Millisecond)
	p := chess.NewPosition()
	if err := white.SendMove(ctx, mustMove(t, p, "g1", "f3")); err != nil {
		t.Fatalf("SendMove: %v", err)
	}
	if rec := <-got; rec.From != [2]int{0, 6} || rec.To != [2]int{2, 5} {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestPromotionTravelsInRecord(t *testing.T) {
	m, _ := newTestManager(t)
	white, black := hostAndJoin(t, m, ColorWhite)
	ctx := context.Background()

	p, _, err := chess.ParseFEN("4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	promo := mustMove(t, p, "a7", "a8").Promote(chess.Knight)
	if err := white.SendMove(ctx, promo); err != nil {
		t.Fatalf("SendMove: %v", err)
	}
	rec, err := black.ReceiveMove(ctx)
	if err != nil {
		t.Fatalf("ReceiveMove: %v", err)
	}
	if rec.Promote != "n" {
		t.Fatalf("promote = %q", rec.Promote)
	}
	resolved, err := rec.Resolve(p, chess.White)
	if err != nil || resolved.Promotion != chess.NewPiece(chess.White, chess.Knight) {
		t.Fatalf("Resolve: %+v, %v", resolved, err)
	}
	if err := white.SendMove(ctx, mustMove(t, p, "a7", "a8")); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected unresolved promotion to be refused, got %v", err)
	}
}

func TestMalformedRecords(t *testing.T) {
	m, mr := newTestManager(t)
	_, black := hostAndJoin(t, m, ColorWhite)
	ctx := context.Background()
	key := "chess:" + black.Code() + "/whiteMove"

	for _, raw := range []string{
		`not json`,
		`{"to":[3,4],"promote":""}`,
		`{"from":[1,4],"to":[8,4],"promote":""}`,
		`{"from":[1,4],"to":[3,4],"promote":"k"}`,
	} {
		if err := mr.Set(key, raw); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if _, err := black.ReceiveMove(ctx); !errors.Is(err, ErrMalformedMove) {
			t.Fatalf("%s: expected ErrMalformedMove, got %v", raw, err)
		}
		if mr.Exists(key) {
			t.Fatalf("%s: malformed record left in store", raw)
		}
	}
}

func TestResolveRejectsIllegalRecords(t *testing.T) {
	p := chess.NewPosition()
	cases := []MoveRecord{
		{From: [2]int{1, 4}, To: [2]int{4, 4}},               // three squares
		{From: [2]int{6, 4}, To: [2]int{4, 4}},               // wrong color
		{From: [2]int{1, 4}, To: [2]int{3, 4}, Promote: "q"}, // promotion on push
		{From: [2]int{3, 3}, To: [2]int{4, 3}},               // empty square
	}
	for _, rec := range cases {
		if _, err := rec.Resolve(p, chess.White); !errors.Is(err, ErrMalformedMove) {
			t.Fatalf("%+v: expected ErrMalformedMove, got %v", rec, err)
		}
	}
	p2, _, _ := chess.ParseFEN("4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	if _, err := (MoveRecord{From: [2]int{6, 0}, To: [2]int{7, 0}}).Resolve(p2, chess.White); !errors.Is(err, ErrMalformedMove) {
		t.Fatalf("missing promotion should be malformed, got %v", err)
	}
}

func TestCloseRemovesRoom(t *testing.T) {
	m, mr := newTestManager(t)
	host, guest := hostAndJoin(t, m, ColorWhite)
	ctx := context.Background()
	if err := host.SendMove(ctx, mustMove(t, chess.NewPosition(), "d2", "d4")); err != nil {
		t.Fatalf("SendMove: %v", err)
	}
	if err := host.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := host.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	for _, k := range roomKeys(host.Code()) {
		if mr.Exists("chess:" + k) {
			t.Fatalf("%s survived Close", k)
		}
	}
	if err := host.SendMove(ctx, chess.Move{}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}
	if _, err := m.Join(ctx, guest.Code()); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected closed room to be gone, got %v", err)
	}
}

func TestWaitOpponentHonoursContext(t *testing.T) {
	m, _ := newTestManager(t)
	host, err := m.Host(context.Background(), ColorWhite)
	if err != nil {
		t.Fatalf("Host: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := host.WaitOpponent(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
