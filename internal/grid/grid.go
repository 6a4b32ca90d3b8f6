// Package grid computes the geometry of a tile pyramid level: how many tiles
// cover an image, how large the stitched canvas is once tile overlap is taken
// into account, and where each tile lands on that canvas.
package grid

import (
	"errors"
	"fmt"
	"image"
)

var ErrInvalidGeometry = errors.New("invalid grid geometry")

// Grid is a rectangle of tile coordinates 0 <= x < TilesX, 0 <= y < TilesY.
// It is a value type and never changes after New.
type Grid struct {
	ImageWidth  int
	ImageHeight int
	TileSize    int
	Overlap     int
	TilesX      int
	TilesY      int
}

// Cell is one tile position inside a Grid.
type Cell struct {
	X int
	Y int
}

// Placement describes where a tile goes on the canvas. The source crop always
// starts at the tile origin and spans Width x Height.
type Placement struct {
	DstX   int
	DstY   int
	Width  int
	Height int
}

func New(imageWidth, imageHeight, tileSize, overlap int) (Grid, error) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return Grid{}, fmt.Errorf("%w: image size %dx%d", ErrInvalidGeometry, imageWidth, imageHeight)
	}
	if tileSize <= 0 {
		return Grid{}, fmt.Errorf("%w: tile size %d", ErrInvalidGeometry, tileSize)
	}
	if overlap < 0 || overlap >= tileSize {
		return Grid{}, fmt.Errorf("%w: overlap %d with tile size %d", ErrInvalidGeometry, overlap, tileSize)
	}

	return Grid{
		ImageWidth:  imageWidth,
		ImageHeight: imageHeight,
		TileSize:    tileSize,
		Overlap:     overlap,
		TilesX:      ceilDiv(imageWidth, tileSize),
		TilesY:      ceilDiv(imageHeight, tileSize),
	}, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// EffectiveTileSize is the stride between neighbouring tiles.
func (g Grid) EffectiveTileSize() int {
	return g.TileSize - g.Overlap
}

func (g Grid) CanvasWidth() int {
	return g.TilesX*g.EffectiveTileSize() + g.Overlap
}

func (g Grid) CanvasHeight() int {
	return g.TilesY*g.EffectiveTileSize() + g.Overlap
}

func (g Grid) Len() int {
	return g.TilesX * g.TilesY
}

// Cells lists every position column by column.
func (g Grid) Cells() []Cell {
	cells := make([]Cell, 0, g.Len())
	for x := 0; x < g.TilesX; x++ {
		for y := 0; y < g.TilesY; y++ {
			cells = append(cells, Cell{X: x, Y: y})
		}
	}
	return cells
}

// Placement returns the rectangle for tile (x, y). Tiles in the last column or
// row are truncated so they exactly fill the remaining canvas extent.
func (g Grid) Placement(x, y int) Placement {
	eff := g.EffectiveTileSize()

	p := Placement{
		DstX:   x * eff,
		DstY:   y * eff,
		Width:  g.TileSize,
		Height: g.TileSize,
	}
	if x == g.TilesX-1 {
		p.Width = g.CanvasWidth() - p.DstX
	}
	if y == g.TilesY-1 {
		p.Height = g.CanvasHeight() - p.DstY
	}
	return p
}

// Source is the crop rectangle inside the decoded tile.
func (p Placement) Source() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// Destination is the rectangle covered on the canvas.
func (p Placement) Destination() image.Rectangle {
	return image.Rect(p.DstX, p.DstY, p.DstX+p.Width, p.DstY+p.Height)
}
