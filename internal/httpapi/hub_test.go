package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-RelayChess/pkg/chessdto"
)

func dialGame(t *testing.T, srv *httptest.Server, id string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?game=" + id
	return websocket.Dial(ctx, url, nil)
}

func readState(t *testing.T, conn *websocket.Conn) chessdto.GameState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var st chessdto.GameState
	if err := wsjson.Read(ctx, conn, &st); err != nil {
		t.Fatalf("read state: %v", err)
	}
	return st
}

func TestHubStreamsChanges(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Hub())
	t.Cleanup(srv.Close)

	g := createGame(t, s, chessdto.CreateGameRequest{Mode: "local"})
	conn, _, err := dialGame(t, srv, g.ID)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if st := readState(t, conn); st.ID != g.ID || len(st.MovesUCI) != 0 {
		t.Fatalf("initial state = %+v", st)
	}
	eventually(t, "subscriber registration", func() bool { return s.Hub().Subscribers(g.ID) == 1 })

	move(t, s, g.ID, "e2", "e4")
	// pickup publishes the held square, release the move
	for {
		st := readState(t, conn)
		if len(st.MovesUCI) == 1 {
			if st.MovesUCI[0] != "e2e4" || st.Turn != "black" {
				t.Fatalf("streamed state = %+v", st)
			}
			break
		}
		if st.Held != "e2" && st.Held != "" {
			t.Fatalf("unexpected held square %q", st.Held)
		}
	}

	do(t, s, http.MethodDelete, "/games/"+g.ID, nil)
	for {
		st := readState(t, conn)
		if st.Outcome.Over {
			if st.Outcome.Method != "aborted" {
				t.Fatalf("final outcome = %+v", st.Outcome)
			}
			break
		}
	}
}

func TestHubClosesOnExpiry(t *testing.T) {
	s := newTestServer(t, nil)
	s.opts.Retention = 50 * time.Millisecond
	srv := httptest.NewServer(s.Hub())
	t.Cleanup(srv.Close)

	g := createGame(t, s, chessdto.CreateGameRequest{Mode: "local"})
	conn, _, err := dialGame(t, srv, g.ID)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()
	readState(t, conn)
	eventually(t, "subscriber registration", func() bool { return s.Hub().Subscribers(g.ID) == 1 })

	do(t, s, http.MethodDelete, "/games/"+g.ID, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var st chessdto.GameState
		err := wsjson.Read(ctx, conn, &st)
		if err == nil {
			continue
		}
		if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			t.Fatalf("close = %v", err)
		}
		break
	}
	if r := do(t, s, http.MethodGet, "/games/"+g.ID, nil); r.status != http.StatusNotFound {
		t.Fatalf("expired game status = %d", r.status)
	}
}

func TestHubUnknownGame(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Hub())
	t.Cleanup(srv.Close)

	_, resp, err := dialGame(t, srv, "missing")
	if err == nil {
		t.Fatalf("dial to an unknown game succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("response = %+v", resp)
	}
}
