package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-RelayChess/internal/obslog"
	"github.com/park285/Cheese-RelayChess/pkg/chessdto"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
	pingInterval     = 30 * time.Second
)

type subscriber struct {
	send chan *chessdto.GameState
	done chan struct{}
	once sync.Once
}

func (sub *subscriber) close() {
	sub.once.Do(func() { close(sub.done) })
}

// Hub streams game snapshots to websocket subscribers, one stream per game.
type Hub struct {
	lookup func(id string) (*chessdto.GameState, bool)

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func newHub(lookup func(id string) (*chessdto.GameState, bool)) *Hub {
	return &Hub{lookup: lookup, subs: make(map[string]map[*subscriber]struct{})}
}

// ServeHTTP upgrades /ws?game=<id> and sends the current state followed by
// every change until the game expires or the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("game")
	if _, ok := h.lookup(id); !ok {
		http.Error(w, "no such game", http.StatusNotFound)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("game", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := &subscriber{send: make(chan *chessdto.GameState, subscriberBuffer), done: make(chan struct{})}
	h.add(id, sub)
	defer h.remove(id, sub)
	state, ok := h.lookup(id)
	if !ok {
		_ = conn.Close(websocket.StatusNormalClosure, "game closed")
		return
	}
	h.broadcastTo(sub, state)
	obslog.L().Debug("ws_subscribe", zap.String("game", id))

	// reads only detect the peer closing
	ctx := conn.CloseRead(r.Context())
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case st := <-sub.send:
			if err := h.write(ctx, conn, st); err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case <-sub.done:
			// flush what is queued, the final state included
			for {
				select {
				case st := <-sub.send:
					if err := h.write(ctx, conn, st); err != nil {
						return
					}
				default:
					_ = conn.Close(websocket.StatusNormalClosure, "game closed")
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, st *chessdto.GameState) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, st)
}

func (h *Hub) add(id string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[id]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[id] = set
	}
	set[sub] = struct{}{}
}

func (h *Hub) remove(id string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[id]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// broadcast never blocks: a subscriber whose buffer is full drops the
// oldest queued state.
func (h *Hub) broadcast(id string, st *chessdto.GameState) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[id] {
		h.broadcastTo(sub, st)
	}
}

func (h *Hub) broadcastTo(sub *subscriber, st *chessdto.GameState) {
	for {
		select {
		case sub.send <- st:
			return
		default:
		}
		select {
		case <-sub.send:
		default:
		}
	}
}

// Subscribers reports how many streams follow a game.
func (h *Hub) Subscribers(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[id])
}

func (h *Hub) closeGame(id string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[id] {
		sub.close()
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.subs {
		for sub := range set {
			sub.close()
		}
	}
}
