package domain

import (
	"time"

	"github.com/google/uuid"
)

// GameRecord is a finished game as persisted by the results repositories.
type GameRecord struct {
	ID       string
	Mode     string
	RoomCode string
	// PlayerColor is the local player's color; empty for local games.
	PlayerColor  string
	BotDepth     int
	Result       string
	ResultMethod string
	MovesUCI     []string
	MovesSAN     []string
	PGN          string
	// StartFEN is empty for games from the standard position.
	StartFEN  string
	FinalFEN  string
	StartedAt time.Time
	EndedAt   time.Time
}

func NewGameID() string { return uuid.NewString() }

func (g *GameRecord) Duration() time.Duration {
	if g == nil || g.EndedAt.Before(g.StartedAt) {
		return 0
	}
	return g.EndedAt.Sub(g.StartedAt)
}

// PlayerStats aggregates finished games of one mode.
type PlayerStats struct {
	Mode        string
	GamesPlayed int
	WhiteWins   int
	BlackWins   int
	Draws       int
	Aborted     int
	LastPlayed  time.Time
}

func (s *PlayerStats) Add(g *GameRecord) {
	if s == nil || g == nil {
		return
	}
	s.GamesPlayed++
	switch g.Result {
	case "white":
		s.WhiteWins++
	case "black":
		s.BlackWins++
	case "draw":
		s.Draws++
	case "aborted":
		s.Aborted++
	}
	if g.EndedAt.After(s.LastPlayed) {
		s.LastPlayed = g.EndedAt
	}
}
