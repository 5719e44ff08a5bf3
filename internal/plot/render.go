// Package plot 绘制关联函数热图和中心格点的自关联曲线
package plot

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"corrplot-backend/internal/table"
	"corrplot-backend/internal/utils"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	figureWidth  = 6 * vg.Inch
	figureHeight = 4.5 * vg.Inch
	colorBarFrac = 0.15
)

// 色条两端固定标注 1E-5 和 1，与实际等值线范围无关
var colorBarLabels = [2]string{"1E-5", "1"}

type Options struct {
	DPI    int
	Levels int
	VMin   float64
	VMax   float64
}

func DefaultOptions() Options {
	return Options{DPI: 100, Levels: 60, VMin: 2e-3, VMax: 1}
}

// Figures 两张图的 data URI
type Figures struct {
	Correlation     string
	AutoCorrelation string
}

type Renderer struct {
	opts Options
}

func NewRenderer(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.DPI <= 0 {
		opts.DPI = def.DPI
	}
	if opts.Levels < 2 {
		opts.Levels = def.Levels
	}
	if opts.VMax <= opts.VMin || opts.VMin <= 0 {
		opts.VMin, opts.VMax = def.VMin, def.VMax
	}
	return &Renderer{opts: opts}
}

// Render 构造数据集并绘制两张图
func (r *Renderer) Render(t *table.Table) (*Figures, error) {
	ds, err := Prepare(t, r.opts.VMin, r.opts.VMax)
	if err != nil {
		return nil, err
	}

	corr, err := r.Correlation(ds)
	if err != nil {
		return nil, fmt.Errorf("correlation plot: %w", err)
	}
	auto, err := r.AutoCorrelation(ds)
	if err != nil {
		return nil, fmt.Errorf("autocorrelation plot: %w", err)
	}

	return &Figures{
		Correlation:     utils.DataURI("image/png", corr),
		AutoCorrelation: utils.DataURI("image/png", auto),
	}, nil
}

// Levels 返回 scale*min 到 max 之间按对数等分的 n 个等值线
func Levels(ds *Dataset, n int) ([]float64, error) {
	lo, hi := ds.FieldRange()
	lo *= ds.Scale
	if !(lo > 0) || !(lo < hi) || math.IsInf(hi, 0) {
		return nil, fmt.Errorf("%w: level range [%g, %g]", ErrDegenerateDataset, lo, hi)
	}
	return floats.LogSpan(make([]float64, n), lo, hi), nil
}

// Correlation 在 (位置, 时间) 平面上绘制对数等值线热图，返回 PNG
func (r *Renderer) Correlation(ds *Dataset) ([]byte, error) {
	levels, err := Levels(ds, r.opts.Levels)
	if err != nil {
		return nil, err
	}

	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(0)
	cmap.SetMax(1)
	pal := cmap.Palette(len(levels) - 1).Colors()

	p := plot.New()
	p.X.Label.Text = "x"
	p.Y.Label.Text = "t"
	p.Add(newBandedField(ds.Positions, ds.Times, ds.Field, levels, pal))

	bar := plot.New()
	bar.HideX()
	bar.Add(&plotter.ColorBar{ColorMap: cmap, Vertical: true, Colors: len(pal)})
	bar.Y.Tick.Marker = plot.ConstantTicks([]plot.Tick{
		{Value: 0, Label: colorBarLabels[0]},
		{Value: 1, Label: colorBarLabels[1]},
	})

	return r.encode(func(dc draw.Canvas) {
		barWidth := vg.Length(colorBarFrac) * figureWidth
		p.Draw(draw.Crop(dc, 0, -barWidth, 0, 0))
		bar.Draw(draw.Crop(dc, figureWidth-barWidth, 0, 0, 0))
	})
}

// AutoCorrelation 绘制中心格点关联函数的实部、虚部和模随时间的变化
func (r *Renderer) AutoCorrelation(ds *Dataset) ([]byte, error) {
	p := plot.New()
	p.X.Label.Text = "t"
	p.Y.Label.Text = "|G(x=0,t)|"

	series := []struct {
		name   string
		ys     []float64
		color  color.Color
		dashes []vg.Length
	}{
		{"Real", ds.AutoReal, color.Black, nil},
		{"Imaginary", ds.AutoImag, color.RGBA{B: 255, A: 255}, []vg.Length{vg.Points(1), vg.Points(2)}},
		{"Magnitude", ds.AutoMagnitude, color.RGBA{R: 255, A: 255}, []vg.Length{vg.Points(5), vg.Points(3)}},
	}

	for _, s := range series {
		xys := make(plotter.XYs, len(ds.Times))
		for i := range xys {
			xys[i].X = ds.Times[i]
			xys[i].Y = s.ys[i]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("%s series: %w", s.name, err)
		}
		line.LineStyle.Color = s.color
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Dashes = s.dashes
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true

	return r.encode(func(dc draw.Canvas) { p.Draw(dc) })
}

func (r *Renderer) encode(drawFn func(draw.Canvas)) ([]byte, error) {
	img := vgimg.NewWith(vgimg.UseWH(figureWidth, figureHeight), vgimg.UseDPI(r.opts.DPI))
	drawFn(draw.New(img))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ASCII 把中心格点的模画成终端字符图
func ASCII(ds *Dataset, width, height int) string {
	return asciigraph.Plot(ds.AutoMagnitude,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption("|G(x=0,t)| vs t"),
	)
}
