package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/park285/Cheese-RelayChess/internal/chessclient"
	"github.com/park285/Cheese-RelayChess/pkg/chessdto"
)

func main() {
	baseURL := getenvDefault("CHESSD_URL", "http://localhost:8080")
	wsURL := getenvDefault("CHESSD_WS_URL", "ws://localhost:8081")

	req, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := chessclient.NewClient(baseURL, chessclient.WithTimeout(60*time.Second))
	game, err := client.CreateGame(ctx, req)
	if err != nil {
		log.Fatalf("create game: %v", err)
	}
	if game.Code != "" {
		fmt.Printf("room %s, you play %s\n", game.Code, game.Color)
	} else {
		fmt.Printf("game %s, you play %s\n", game.ID, game.Color)
	}

	ws := chessclient.NewWatcher(wsURL, game.ID, 5)
	ws.OnState(func(st *chessdto.GameState) {
		// echo only what the opponent or the room changed
		if !st.YourTurn || st.Outcome.Over {
			printState(st)
		}
	})
	ws.OnConnState(func(state chessclient.ConnState) {
		if state != chessclient.ConnConnected {
			log.Printf("stream: %s", state)
		}
	})
	if err := ws.Connect(ctx); err != nil {
		log.Printf("stream unavailable, use 'board' to refresh: %v", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = ws.Close(cctx)
	}()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	fmt.Println(helpText)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, client, game.ID, line); quit {
				return
			}
		}
	}
}

const usage = "usage: chessctl local | bot [white|black|random] [preset] | host [white|black|random] | join CODE"

const helpText = `commands: <from><to>[q|r|b|n] (e.g. e2e4, a7a8q), moves <square>, board, png <file>, resign, history, stats, quit`

func parseArgs(args []string) (chessdto.CreateGameRequest, error) {
	if len(args) == 0 {
		return chessdto.CreateGameRequest{Mode: "local"}, nil
	}
	req := chessdto.CreateGameRequest{Mode: strings.ToLower(args[0])}
	rest := args[1:]
	switch req.Mode {
	case "local":
	case "bot":
		if len(rest) > 0 {
			req.Color = rest[0]
		}
		if len(rest) > 1 {
			req.Preset = rest[1]
		}
	case "host":
		if len(rest) > 0 {
			req.Color = rest[0]
		}
	case "join":
		if len(rest) != 1 {
			return req, fmt.Errorf("join needs a room code")
		}
		req.Code = rest[0]
	default:
		return req, fmt.Errorf("unknown mode %q", args[0])
	}
	return req, nil
}

func handleLine(ctx context.Context, client *chessclient.Client, id, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		fmt.Println(helpText)
	case "board":
		st, err := client.State(ctx, id)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		printState(st)
	case "moves":
		if len(args) != 1 {
			fmt.Println("usage: moves <square>")
			return false
		}
		resp, err := client.LegalMoves(ctx, id, args[0])
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("%s -> %s\n", resp.Square, strings.Join(resp.Targets, " "))
	case "png":
		if len(args) != 1 {
			fmt.Println("usage: png <file>")
			return false
		}
		png, err := client.BoardPNG(ctx, id)
		if err == nil {
			err = os.WriteFile(args[0], png, 0o644)
		}
		if err != nil {
			fmt.Println("error:", err)
		}
	case "resign":
		st, err := client.Abandon(ctx, id)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		printState(st)
		return true
	case "history":
		games, err := client.Results(ctx, "", 10)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		for _, g := range games {
			fmt.Printf("%s  %-6s %-8s %s\n", g.EndedAt.Format(time.DateTime), g.Mode, g.Result, strings.Join(g.MovesSAN, " "))
		}
	case "stats":
		s, err := client.Stats(ctx, "")
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Printf("played %d, white %d, black %d, aborted %d\n", s.GamesPlayed, s.WhiteWins, s.BlackWins, s.Aborted)
	default:
		playMove(ctx, client, id, cmd)
	}
	return false
}

func playMove(ctx context.Context, client *chessclient.Client, id, uci string) {
	if len(uci) != 4 && len(uci) != 5 {
		fmt.Println("unknown command; try 'help'")
		return
	}
	rel, err := client.Move(ctx, id, uci[0:2], uci[2:4])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if rel.State != nil && rel.State.AwaitingPromotion {
		piece := "q"
		if len(uci) == 5 {
			piece = uci[4:]
		}
		if rel, err = client.Promote(ctx, id, piece); err != nil {
			fmt.Println("error:", err)
			return
		}
	}
	if !rel.Applied {
		fmt.Println("illegal move")
		return
	}
	printState(rel.State)
}

func printState(st *chessdto.GameState) {
	if st == nil {
		return
	}
	files := "abcdefgh"
	if st.Player == "black" {
		files = "hgfedcba"
	}
	var sb strings.Builder
	for i, row := range st.Flipped {
		rank := 8 - i
		if st.Player == "black" {
			rank = i + 1
		}
		sb.WriteString(strconv.Itoa(rank) + " ")
		for _, c := range row {
			sb.WriteRune(' ')
			sb.WriteRune(c)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("   " + strings.Join(strings.Split(files, ""), " ") + "\n")
	if st.LastMove != "" {
		sb.WriteString("last: " + st.LastMove + "\n")
	}
	sb.WriteString(st.StatusText)
	fmt.Println(sb.String())
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
