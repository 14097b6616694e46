package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/park285/Cheese-RelayChess/internal/session"
)

// game is a registered session plus the bookkeeping the handlers need.
type game struct {
	sess     *session.Session
	botDepth int

	mu      sync.Mutex
	tick    chan struct{}      // closed and replaced on every session change
	pending chan releaseResult // a release suspended on a promotion choice
	active  time.Time          // last request or state change
}

type releaseResult struct {
	applied bool
	err     error
}

func newGame(sess *session.Session, botDepth int) *game {
	return &game{sess: sess, botDepth: botDepth, tick: make(chan struct{}), active: time.Now()}
}

func (g *game) changed() {
	g.mu.Lock()
	close(g.tick)
	g.tick = make(chan struct{})
	g.active = time.Now()
	g.mu.Unlock()
}

func (g *game) touch() {
	g.mu.Lock()
	g.active = time.Now()
	g.mu.Unlock()
}

func (g *game) lastActive() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *game) finished() bool {
	select {
	case <-g.sess.Done():
		return true
	default:
		return false
	}
}

// waitFor blocks until cond holds for a snapshot or ctx ends.
func (g *game) waitFor(ctx context.Context, cond func(session.Snapshot) bool) (session.Snapshot, bool) {
	for {
		g.mu.Lock()
		tick := g.tick
		g.mu.Unlock()
		snap := g.sess.Snapshot()
		if cond(snap) {
			return snap, true
		}
		select {
		case <-tick:
		case <-ctx.Done():
			return g.sess.Snapshot(), false
		}
	}
}

func (g *game) setPending(ch chan releaseResult) {
	g.mu.Lock()
	g.pending = ch
	g.mu.Unlock()
}

// takePending hands the suspended release to exactly one caller.
func (g *game) takePending() chan releaseResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := g.pending
	g.pending = nil
	return ch
}

type registry struct {
	mu    sync.RWMutex
	games map[string]*game
}

func newRegistry() *registry {
	return &registry{games: make(map[string]*game)}
}

func (r *registry) put(g *game) {
	r.mu.Lock()
	r.games[g.sess.ID()] = g
	r.mu.Unlock()
}

func (r *registry) get(id string) (*game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	return g, ok
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	delete(r.games, id)
	r.mu.Unlock()
}

func (r *registry) all() []*game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*game, 0, len(r.games))
	for _, g := range r.games {
		out = append(out, g)
	}
	return out
}

// idle lists unfinished games untouched since before now-limit.
func (r *registry) idle(limit time.Duration, now time.Time) []*game {
	var out []*game
	for _, g := range r.all() {
		if !g.finished() && now.Sub(g.lastActive()) >= limit {
			out = append(out, g)
		}
	}
	return out
}

// expireAfterDone drops a finished session from the registry once retention
// has passed, keeping it readable for a while after the game ends.
func (r *registry) expireAfterDone(g *game, retention time.Duration, onExpire func(id string)) {
	go func() {
		<-g.sess.Done()
		time.AfterFunc(retention, func() {
			r.remove(g.sess.ID())
			if onExpire != nil {
				onExpire(g.sess.ID())
			}
		})
	}()
}
