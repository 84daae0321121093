// Package render draws board snapshots as PNG.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-server/internal/chess"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultSquareSize = 64
	minSquareSize     = 16
	maxSquareSize     = 160
)

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	lastMoveFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	marginColor    = color.RGBA{28, 31, 46, 255}
	coordTextColor = color.RGBA{204, 210, 236, 255}
)

type Options struct {
	// Flip puts black at the bottom.
	Flip bool
	// LastMove is a UCI move whose squares are highlighted.
	LastMove   string
	SquareSize int
}

type Renderer struct {
	mu     sync.RWMutex
	pieces map[pieceKey]image.Image
}

func New() *Renderer {
	return &Renderer{pieces: make(map[pieceKey]image.Image)}
}

// RenderFEN renders the position in fen. An empty fen is the start position.
func (r *Renderer) RenderFEN(ctx context.Context, fen string, opts Options) ([]byte, error) {
	game, err := chess.NewGame(fen)
	if err != nil {
		return nil, err
	}
	return r.RenderBoard(ctx, game.Position().Board(), opts)
}

func (r *Renderer) RenderBoard(ctx context.Context, board *nchess.Board, opts Options) ([]byte, error) {
	if board == nil {
		return nil, fmt.Errorf("board is nil")
	}
	size := opts.SquareSize
	if size == 0 {
		size = DefaultSquareSize
	}
	if size < minSquareSize || size > maxSquareSize {
		return nil, fmt.Errorf("square size %d out of range %d-%d", size, minSquareSize, maxSquareSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	margin := size / 2
	total := size*8 + margin*2
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	draw.Draw(img, img.Bounds(), image.NewUniform(marginColor), image.Point{}, draw.Src)
	origin := image.Point{X: margin, Y: margin}

	highlight := map[nchess.Square]bool{}
	if from, to, ok := parseUCISquares(opts.LastMove); ok {
		highlight[from] = true
		highlight[to] = true
	}

	squares := board.SquareMap()
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			sq := squareAt(row, col, opts.Flip)
			rect := image.Rect(origin.X+col*size, origin.Y+row*size, origin.X+(col+1)*size, origin.Y+(row+1)*size)
			draw.Draw(img, rect, image.NewUniform(squareColor(sq)), image.Point{}, draw.Src)
			if highlight[sq] {
				draw.Draw(img, rect, image.NewUniform(lastMoveFill), image.Point{}, draw.Over)
			}
			piece, ok := squares[sq]
			if !ok || piece == nchess.NoPiece {
				continue
			}
			glyph, err := r.pieceImage(piece, size)
			if err != nil {
				return nil, err
			}
			draw.Draw(img, rect, glyph, image.Point{}, draw.Over)
		}
	}
	drawCoordinates(img, size, origin, opts.Flip)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// squareAt maps a screen cell to a board square.
func squareAt(row, col int, flip bool) nchess.Square {
	rank, file := 7-row, col
	if flip {
		rank, file = row, 7-col
	}
	return nchess.NewSquare(nchess.File(file), nchess.Rank(rank))
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func drawCoordinates(dst draw.Image, size int, origin image.Point, flip bool) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(coordTextColor), Face: face}
	ascent := face.Metrics().Ascent.Ceil()

	for i := 0; i < 8; i++ {
		sq := squareAt(i, i, flip)
		rank := sq.Rank().String()
		file := sq.File().String()

		y := origin.Y + i*size + size/2 + ascent/2
		drawCentered(d, rank, origin.X/2, y)

		x := origin.X + i*size + size/2
		drawCentered(d, file, x, origin.Y+8*size+origin.Y/2+ascent/2)
	}
}

func drawCentered(d *font.Drawer, text string, centerX, baseline int) {
	w := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-w/2, baseline)
	d.DrawString(text)
}

func parseUCISquares(move string) (nchess.Square, nchess.Square, bool) {
	move = strings.ToLower(strings.TrimSpace(move))
	if len(move) < 4 {
		return 0, 0, false
	}
	from, ok1 := parseSquare(move[0:2])
	to, ok2 := parseSquare(move[2:4])
	return from, to, ok1 && ok2
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}
