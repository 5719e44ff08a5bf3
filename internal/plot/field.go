package plot

import (
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// bandedField 是填充等值线图：每个格子按所在的等值区间着色，
// 超出范围的值取首尾颜色。
type bandedField struct {
	xs, ys []float64
	bands  [][]int
	colors []color.Color

	xEdges, yEdges []float64
}

// Band 返回 v 所在区间 [levels[i], levels[i+1]) 的下标，NaN 返回 -1
func Band(levels []float64, v float64) int {
	if math.IsNaN(v) {
		return -1
	}
	i := sort.SearchFloat64s(levels, v) - 1
	if i < 0 {
		i = 0
	}
	if last := len(levels) - 2; i > last {
		i = last
	}
	return i
}

func newBandedField(xs, ys []float64, field [][]float64, levels []float64, colors []color.Color) *bandedField {
	bands := make([][]int, len(field))
	for r, row := range field {
		bands[r] = make([]int, len(row))
		for c, v := range row {
			bands[r][c] = Band(levels, v)
		}
	}
	return &bandedField{
		xs:     xs,
		ys:     ys,
		bands:  bands,
		colors: colors,
		xEdges: cellEdges(xs),
		yEdges: cellEdges(ys),
	}
}

// cellEdges 取相邻中心点的中点作为格子边界，单个点时宽度为 1
func cellEdges(vs []float64) []float64 {
	n := len(vs)
	edges := make([]float64, n+1)
	switch n {
	case 0:
		return edges[:0]
	case 1:
		edges[0], edges[1] = vs[0]-0.5, vs[0]+0.5
		return edges
	}
	for i := 1; i < n; i++ {
		edges[i] = (vs[i-1] + vs[i]) / 2
	}
	edges[0] = vs[0] - (edges[1] - vs[0])
	edges[n] = vs[n-1] + (vs[n-1] - edges[n-1])
	return edges
}

func (f *bandedField) Plot(c draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&c)
	for r := range f.bands {
		for col, b := range f.bands[r] {
			if b < 0 || b >= len(f.colors) {
				continue
			}
			x0, x1 := trX(f.xEdges[col]), trX(f.xEdges[col+1])
			y0, y1 := trY(f.yEdges[r]), trY(f.yEdges[r+1])
			pts := []vg.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
			c.FillPolygon(f.colors[b], c.ClipPolygonXY(pts))
		}
	}
}

func (f *bandedField) DataRange() (xmin, xmax, ymin, ymax float64) {
	if len(f.xEdges) == 0 || len(f.yEdges) == 0 {
		return 0, 0, 0, 0
	}
	return f.xEdges[0], f.xEdges[len(f.xEdges)-1], f.yEdges[0], f.yEdges[len(f.yEdges)-1]
}
