package layout

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point is a cell center relative to the board area's center.
// Y grows upward, so row 0 has the largest Y.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Layout is a grid shape.
type Layout struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// MaxCells caps the number of cards on one board.
const MaxCells = 1024

// Cells returns cols*rows. Only meaningful for a valid layout.
func (l Layout) Cells() int { return l.Cols * l.Rows }

// Even reports whether the grid can be filled with pairs.
func (l Layout) Even() bool { return l.Cells()%2 == 0 }

// Valid reports whether both dimensions are positive and the grid holds at most
// MaxCells cards. The bound is checked without forming the product.
func (l Layout) Valid() bool {
	return l.Cols > 0 && l.Rows > 0 && l.Rows <= MaxCells/l.Cols
}

func (l Layout) String() string { return fmt.Sprintf("%dx%d", l.Cols, l.Rows) }

// Parse reads a layout written as "<cols>x<rows>", e.g. "4x3".
func Parse(s string) (Layout, error) {
	c, r, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Layout{}, fmt.Errorf("layout %q: want <cols>x<rows>", s)
	}
	cols, err := strconv.Atoi(c)
	if err != nil {
		return Layout{}, fmt.Errorf("layout %q: cols: %w", s, err)
	}
	rows, err := strconv.Atoi(r)
	if err != nil {
		return Layout{}, fmt.Errorf("layout %q: rows: %w", s, err)
	}
	return Layout{Cols: cols, Rows: rows}, nil
}

// Positions returns the center of every cell in row-major order (row 0 left to right,
// then row 1, ...). Cells are separated from each other and from the area edges by
// spacing. cols and rows must be positive.
func Positions(area Size, cols, rows int, spacing float64) []Point {
	cellW, cellH := cellSize(area, cols, rows, spacing)

	startX := -area.W/2 + spacing + cellW/2
	startY := area.H/2 - spacing - cellH/2

	out := make([]Point, 0, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, Point{
				X: startX + float64(c)*(cellW+spacing),
				Y: startY - float64(r)*(cellH+spacing),
			})
		}
	}
	return out
}

// CardSize returns the largest card that fits inside one cell while keeping
// width/height equal to aspect. A non-positive aspect fills the cell.
func CardSize(area Size, cols, rows int, spacing, aspect float64) Size {
	cellW, cellH := cellSize(area, cols, rows, spacing)
	if aspect <= 0 {
		return Size{W: cellW, H: cellH}
	}
	h := math.Min(cellH, cellW/aspect)
	return Size{W: h * aspect, H: h}
}

func cellSize(area Size, cols, rows int, spacing float64) (float64, float64) {
	usableW := area.W - spacing*float64(cols+1)
	usableH := area.H - spacing*float64(rows+1)
	return usableW / float64(cols), usableH / float64(rows)
}
