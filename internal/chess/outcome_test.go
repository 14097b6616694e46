package chess

import "testing"

func TestGameOverCheckmate(t *testing.T) {
	p, _ := mustFEN(t, "k7/1Q6/1K6/8/8/8/8/8 b - - 0 1")
	o := p.GameOver()
	if !o.Over || o.Method != Checkmate || o.Winner != White || o.Loser != Black {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if o.Result() != "white" || o.IsDraw() {
		t.Fatalf("unexpected result %q", o.Result())
	}
}

func TestGameOverStalemate(t *testing.T) {
	p, _ := mustFEN(t, "k7/8/1QK5/8/8/8/8/8 b - - 0 1")
	o := p.GameOver()
	if !o.Over || o.Method != Stalemate || o.Winner != NoColor {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if !o.IsDraw() || o.Result() != "draw" {
		t.Fatalf("expected draw, got %q", o.Result())
	}
}

func TestGameOverInProgress(t *testing.T) {
	p := NewPosition()
	if o := p.GameOver(); o.Over || o.Result() != "" {
		t.Fatalf("start position reported over: %+v", o)
	}
}

func TestScholarsMate(t *testing.T) {
	p := NewPosition()
	for _, mv := range [][2]string{
		{"e2", "e4"}, {"e7", "e5"},
		{"f1", "c4"}, {"b8", "c6"},
		{"d1", "h5"}, {"g8", "f6"},
		{"h5", "f7"},
	} {
		p.Apply(findMove(t, p, mv[0], mv[1]))
	}
	if !p.IsChecked(Black) {
		t.Fatalf("black should be in check")
	}
	o := p.GameOver()
	if o.Method != Checkmate || o.Winner != White {
		t.Fatalf("expected white checkmate, got %+v", o)
	}
}

func TestIsAttackedPawnGeometry(t *testing.T) {
	p, _ := mustFEN(t, "4k3/8/8/8/8/8/6p1/4K3 w - - 0 1")
	if !p.IsAttacked(mustSquare(t, "f1"), Black, false) || !p.IsAttacked(mustSquare(t, "h1"), Black, false) {
		t.Fatalf("black pawn on g2 should cover f1 and h1")
	}
	if p.IsAttacked(mustSquare(t, "g1"), Black, false) {
		t.Fatalf("pawn push square is not attacked")
	}
}

func TestMissingKingNeverChecked(t *testing.T) {
	p, _ := mustFEN(t, "8/8/8/8/8/8/8/q6K w - - 0 1")
	if p.IsChecked(Black) {
		t.Fatalf("black has no king")
	}
	if !p.IsChecked(White) {
		t.Fatalf("white king on h1 is attacked along the first rank")
	}
}

func TestRotatedBoard(t *testing.T) {
	b := StandardBoard()
	r := b.Rotated()
	if r[0][3] != NewPiece(Black, King) || r[7][3] != NewPiece(White, King) {
		t.Fatalf("rotation misplaced kings:\n%s", r)
	}
	if r.Rotated() != b {
		t.Fatalf("double rotation is not identity")
	}
}
