package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Glyph bodies on a 45x45 viewBox. Fill and stroke come from the group.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="6"/>` +
		`<path d="M15 35 L18 22 L27 22 L30 35 Z"/>` +
		`<rect x="11" y="35" width="23" height="4"/>`,
	nchess.Rook: `<path d="M12 38 L33 38 L33 33 L30 33 L29 17 L32 17 L32 9 L28 9 L28 12 L25 12 L25 9 ` +
		`L20 9 L20 12 L17 12 L17 9 L13 9 L13 17 L16 17 L15 33 L12 33 Z"/>`,
	nchess.Knight: `<path d="M13 38 L32 38 L31 30 C31 22 29 14 22 9 L20 5 L18 10 C14 12 11 17 11 22 ` +
		`L14 24 L19 21 L17 26 L14 30 Z"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8" r="3"/>` +
		`<path d="M22.5 11 C16 16 15 24 18 30 L27 30 C30 24 29 16 22.5 11 Z"/>` +
		`<rect x="12" y="32" width="21" height="5"/>`,
	nchess.Queen: `<path d="M10 34 L35 34 L38 13 L30 24 L27 9 L22.5 22 L18 9 L15 24 L7 13 Z"/>` +
		`<rect x="10" y="35" width="25" height="4"/>`,
	nchess.King: `<rect x="21" y="3" width="3" height="11"/>` +
		`<rect x="17.5" y="6" width="10" height="3"/>` +
		`<path d="M11 37 L34 37 L37 22 C37 16 29 14 22.5 20 C16 14 8 16 8 22 Z"/>`,
}

func pieceSVG(p nchess.Piece) ([]byte, error) {
	body, ok := pieceShapes[p.Type()]
	if !ok {
		return nil, fmt.Errorf("no glyph for piece %v", p)
	}
	fill, stroke := "#f8f8f8", "#1a1a1a"
	if p.Color() == nchess.Black {
		fill, stroke = "#1f1f1f", "#e6e6e6"
	}
	return []byte(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45">`+
			`<g fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round">%s</g></svg>`,
		fill, stroke, body,
	)), nil
}

type pieceKey struct {
	piece nchess.Piece
	size  int
}

// pieceImage rasterizes p at size x size and caches the result.
func (r *Renderer) pieceImage(p nchess.Piece, size int) (image.Image, error) {
	key := pieceKey{piece: p, size: size}
	r.mu.RLock()
	img, ok := r.pieces[key]
	r.mu.RUnlock()
	if ok {
		return img, nil
	}

	src, err := pieceSVG(p)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	r.mu.Lock()
	r.pieces[key] = rgba
	r.mu.Unlock()
	return rgba, nil
}
