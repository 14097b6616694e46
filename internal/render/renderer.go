// Package render draws board snapshots as PNG images for the display side.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/Cheese-RelayChess/internal/chess"
)

// Options controls orientation, highlights and the header panel.
// Perspective Black draws rank 1 at the top with the h-file on the left.
type Options struct {
	Perspective chess.Color
	LastMove    *chess.Move
	Held        *chess.Square
	Targets     []chess.Square
	// CheckedKing is tinted when set.
	CheckedKing *chess.Square
	Header      string
	Status      string
}

type Renderer interface {
	RenderPNG(ctx context.Context, board chess.Board, opts Options) ([]byte, error)
}

type svgBoardRenderer struct {
	squareSize int
}

func NewSVGBoardRenderer() Renderer {
	return &svgBoardRenderer{squareSize: 64}
}

type layout struct {
	squareSize  int
	origin      image.Point
	perspective chess.Color
}

func (l layout) squareRect(sq chess.Square) image.Rectangle {
	row, col := 7-sq.Rank, sq.File
	if l.perspective == chess.Black {
		row, col = sq.Rank, 7-sq.File
	}
	x := l.origin.X + col*l.squareSize
	y := l.origin.Y + row*l.squareSize
	return image.Rect(x, y, x+l.squareSize, y+l.squareSize)
}

func (l layout) center(sq chess.Square) image.Point {
	r := l.squareRect(sq)
	return image.Pt(r.Min.X+l.squareSize/2, r.Min.Y+l.squareSize/2)
}

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, board chess.Board, opts Options) ([]byte, error) {
	const (
		sideMargin   = 28
		topMargin    = 72
		bottomMargin = 28
		panelHeight  = 32
		panelRadius  = 10
		gapToBoard   = 14
	)
	if opts.Perspective != chess.Black {
		opts.Perspective = chess.White
	}
	boardSize := r.squareSize * 8
	l := layout{
		squareSize:  r.squareSize,
		origin:      image.Pt(sideMargin, topMargin),
		perspective: opts.Perspective,
	}
	boardRect := image.Rect(l.origin.X, l.origin.Y, l.origin.X+boardSize, l.origin.Y+boardSize)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, boardSize+topMargin+bottomMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawHUD(img, opts, boardRect, panelHeight, panelRadius, gapToBoard)
	drawSquares(img, l)
	drawHighlights(img, l, opts)
	if err := drawPieces(img, board, l); err != nil {
		return nil, err
	}
	drawTargets(img, board, l, opts.Targets)
	drawCoordinates(img, l, sideMargin)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	backgroundColor     = color.RGBA{R: 22, G: 24, B: 36, A: 255}
	lightSquare         = color.RGBA{R: 233, G: 207, B: 163, A: 255}
	darkSquare          = color.RGBA{R: 187, G: 136, B: 96, A: 255}
	lastMoveFill        = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveArrow      = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	heldFill            = color.NRGBA{R: 182, G: 184, B: 190, A: 150}
	targetDot           = color.NRGBA{R: 40, G: 40, B: 40, A: 110}
	captureRing         = color.NRGBA{R: 200, G: 40, B: 40, A: 150}
	checkFill           = color.NRGBA{R: 230, G: 50, B: 50, A: 150}
	hudPanelColor       = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudShadowColor      = color.NRGBA{A: 50}
	hudTextPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTextSecondary    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

func drawSquares(dst imagedraw.Image, l layout) {
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			sq := chess.Sq(rank, file)
			imagedraw.Draw(dst, l.squareRect(sq), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func squareColor(sq chess.Square) color.Color {
	if (sq.Rank+sq.File)%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func drawPieces(dst imagedraw.Image, board chess.Board, l layout) error {
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			sq := chess.Sq(rank, file)
			piece := board.At(sq)
			if piece.IsEmpty() {
				continue
			}
			img, err := renderPieceImage(piece, l.squareSize)
			if err != nil {
				return err
			}
			imagedraw.Draw(dst, l.squareRect(sq), img, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

// Black's last move is drawn as an arrow, White's as tinted squares.
func drawHighlights(img *image.RGBA, l layout, opts Options) {
	if m := opts.LastMove; m != nil {
		if m.Piece.Color() == chess.Black {
			drawArrow(img, l, m.From, m.To, blackMoveArrow)
		} else {
			drawSquareOverlay(img, l.squareRect(m.From), lastMoveFill)
			drawSquareOverlay(img, l.squareRect(m.To), lastMoveFill)
		}
	}
	if opts.CheckedKing != nil && opts.CheckedKing.Valid() {
		drawSquareOverlay(img, l.squareRect(*opts.CheckedKing), checkFill)
	}
	if opts.Held != nil && opts.Held.Valid() {
		drawSquareOverlay(img, l.squareRect(*opts.Held), heldFill)
	}
}

func drawTargets(img *image.RGBA, board chess.Board, l layout, targets []chess.Square) {
	for _, sq := range targets {
		if !sq.Valid() {
			continue
		}
		c := l.center(sq)
		if board.At(sq).IsEmpty() {
			drawDisc(img, c, l.squareSize/7, targetDot)
			continue
		}
		drawRing(img, c, l.squareSize/2-2, l.squareSize/12, captureRing)
	}
}

func drawSquareOverlay(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawHUD(img *image.RGBA, opts Options, boardRect image.Rectangle, height, radius, gap int) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Face: face}

	header := strings.TrimSpace(opts.Header)
	if header == "" {
		header = "RelayChess"
	}
	status := strings.TrimSpace(opts.Status)

	bottom := boardRect.Min.Y - gap
	half := boardRect.Dx()/2 - 6
	headerRect := image.Rect(boardRect.Min.X, bottom-height, boardRect.Min.X+half, bottom)
	statusRect := image.Rect(boardRect.Max.X-half, bottom-height, boardRect.Max.X, bottom)

	drawRoundedPanel(img, headerRect.Add(image.Pt(0, 4)), radius, hudShadowColor)
	drawRoundedPanel(img, headerRect, radius, hudPanelColor)
	drawCenteredString(drawer, headerRect, truncateWithEllipsis(face, header, headerRect.Dx()-20), hudTextPrimary)
	if status == "" {
		return
	}
	drawRoundedPanel(img, statusRect.Add(image.Pt(0, 4)), radius, hudShadowColor)
	drawRoundedPanel(img, statusRect, radius, hudPanelColor)
	drawCenteredString(drawer, statusRect, truncateWithEllipsis(face, status, statusRect.Dx()-20), hudTextSecondary)
}

func drawCoordinates(dst imagedraw.Image, l layout, margin int) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateTextColor)}
	ascent := face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		rankCenter := l.center(chess.Sq(i, 0))
		fileCenter := l.center(chess.Sq(0, i))
		drawCenteredText(drawer, string(rune('1'+i)), l.origin.X-margin/2, rankCenter.Y+ascent/2)
		drawCenteredText(drawer, string(rune('a'+i)), fileCenter.X, l.origin.Y+8*l.squareSize+ascent+4)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if text == "" {
		return
	}
	metrics := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := rect.Min.X + (rect.Dx()-width)/2
	if x < rect.Min.X {
		x = rect.Min.X
	}
	baseline := rect.Min.Y + (rect.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	if text == "" || maxWidth <= 0 {
		return text
	}
	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(text).Round() <= maxWidth {
		return text
	}
	const ellipsis = "..."
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	if maxRadius := min(rect.Dx(), rect.Dy()) / 2; radius > maxRadius {
		radius = maxRadius
	}
	fill := image.NewUniform(clr)
	if radius <= 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}
	imagedraw.Draw(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)
	imagedraw.Draw(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), fill, image.Point{}, imagedraw.Over)

	// quarter discs at the corners, clipped so they do not overlap the bars
	corners := []struct {
		center image.Point
		clip   image.Rectangle
	}{
		{image.Pt(rect.Min.X+radius, rect.Min.Y+radius), image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+radius, rect.Min.Y+radius)},
		{image.Pt(rect.Max.X-radius-1, rect.Min.Y+radius), image.Rect(rect.Max.X-radius, rect.Min.Y, rect.Max.X, rect.Min.Y+radius)},
		{image.Pt(rect.Min.X+radius, rect.Max.Y-radius-1), image.Rect(rect.Min.X, rect.Max.Y-radius, rect.Min.X+radius, rect.Max.Y)},
		{image.Pt(rect.Max.X-radius-1, rect.Max.Y-radius-1), image.Rect(rect.Max.X-radius, rect.Max.Y-radius, rect.Max.X, rect.Max.Y)},
	}
	for _, c := range corners {
		fillCircle(img, c.center, radius, c.clip, clr)
	}
}

func fillCircle(img *image.RGBA, center image.Point, radius int, clip image.Rectangle, clr color.Color) {
	rr := radius * radius
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			dx, dy := x-center.X, y-center.Y
			if dx*dx+dy*dy <= rr {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func drawDisc(img *image.RGBA, center image.Point, radius int, clr color.Color) {
	clip := image.Rect(center.X-radius, center.Y-radius, center.X+radius+1, center.Y+radius+1)
	fillCircle(img, center, radius, clip, clr)
}

func drawRing(img *image.RGBA, center image.Point, radius, width int, clr color.Color) {
	outer, inner := radius*radius, (radius-width)*(radius-width)
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if d := x*x + y*y; d <= outer && d > inner {
				blendPixel(img, center.X+x, center.Y+y, clr)
			}
		}
	}
}

func drawArrow(img *image.RGBA, l layout, from, to chess.Square, clr color.Color) {
	if from == to {
		return
	}
	start, end := l.center(from), l.center(to)
	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	size := float64(l.squareSize)
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	baseLength := length - size*0.45
	if baseLength < size*0.35 {
		baseLength = length * 0.6
	}
	halfWidth := size * 0.18
	headWidth := size * 0.32
	baseX := float64(start.X) + dirX*baseLength
	baseY := float64(start.Y) + dirY*baseLength

	fillQuad(img,
		pointF{float64(start.X) - perpX*halfWidth, float64(start.Y) - perpY*halfWidth},
		pointF{float64(start.X) + perpX*halfWidth, float64(start.Y) + perpY*halfWidth},
		pointF{baseX + perpX*halfWidth, baseY + perpY*halfWidth},
		pointF{baseX - perpX*halfWidth, baseY - perpY*halfWidth},
		clr)
	fillTriangleF(img,
		pointF{float64(end.X), float64(end.Y)},
		pointF{baseX - perpX*headWidth/2, baseY - perpY*headWidth/2},
		pointF{baseX + perpX*headWidth/2, baseY + perpY*headWidth/2},
		clr)
}

type pointF struct {
	X float64
	Y float64
}

func fillQuad(img *image.RGBA, p0, p1, p2, p3 pointF, clr color.Color) {
	fillTriangleF(img, p0, p1, p2, clr)
	fillTriangleF(img, p0, p2, p3, clr)
}

func fillTriangleF(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if pointInTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func pointInTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	return alpha >= 0 && beta >= 0 && 1-alpha-beta >= 0
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 0xffff - sa
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/0xffff) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/0xffff) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/0xffff) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/0xffff) >> 8),
	})
}
