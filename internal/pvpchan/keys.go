package pvpchan

import (
	"crypto/rand"
	"strings"

	"github.com/park285/Cheese-RelayChess/internal/chess"
)

const codeLength = 4

func keyJoined(code string) string    { return code + "/joined" }
func keyHostColor(code string) string { return code + "/hostColor" }

// keyMove is where color c writes its moves.
func keyMove(code string, c chess.Color) string {
	return code + "/" + c.String() + "Move"
}

func roomKeys(code string) []string {
	return []string{keyMove(code, chess.White), keyMove(code, chess.Black), keyHostColor(code), keyJoined(code)}
}

// codeGen returns 4 random uppercase ASCII letters.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}

// NormalizeCode upper-cases and validates a user-entered room code.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != codeLength {
		return "", ErrInvalidCode
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return "", ErrInvalidCode
		}
	}
	return code, nil
}

func randomColor() (chess.Color, error) {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return chess.NoColor, err
	}
	if b[0]&1 == 0 {
		return chess.White, nil
	}
	return chess.Black, nil
}
