package plot

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"corrplot-backend/internal/table"
)

var (
	// ErrDegenerateDataset 色彩场为常数，无法做 min-max 缩放
	ErrDegenerateDataset = errors.New("degenerate dataset")
	// ErrMixedDataset 表中混有多个 thermal 或 N，或同一时刻有多行
	ErrMixedDataset = errors.New("mixed dataset")
)

// Dataset 是从一张结果表得到的网格，下标为 [时刻][位置]
type Dataset struct {
	Thermal   bool
	L         int
	Positions []float64
	Times     []float64
	Real      [][]float64
	Imag      [][]float64
	Magnitude [][]float64

	// 热态取 |Real|，否则取 Magnitude，缩放到 [vmin, vmax]
	Field [][]float64
	// 最低等值线为 Scale*min(Field)
	Scale float64

	AutoReal      []float64
	AutoImag      []float64
	AutoMagnitude []float64
}

// Positions 返回 L 个格点的坐标，从 1-L/2 开始，第 L/2 个格点位于 0。
// 奇数长度时多出的格点在正半轴。
func Positions(L int) []float64 {
	start := 1 - L/2
	xs := make([]float64, L)
	for i := range xs {
		xs[i] = float64(start + i)
	}
	return xs
}

// Rescale 把 zs 线性映射到 [vmin, vmax]，常数输入得到 NaN
func Rescale(zs []float64, vmin, vmax float64) []float64 {
	out := make([]float64, len(zs))
	if len(zs) == 0 {
		return out
	}
	zmin, zmax := zs[0], zs[0]
	for _, z := range zs[1:] {
		zmin = math.Min(zmin, z)
		zmax = math.Max(zmax, z)
	}
	for i, z := range zs {
		out[i] = (z-zmin)*(vmax-vmin)/(zmax-zmin) + vmin
	}
	return out
}

func single(t *table.Table, name string) (float64, error) {
	u, err := t.Unique(name)
	if err != nil {
		return 0, err
	}
	if len(u) != 1 {
		return 0, fmt.Errorf("%w: %d distinct %s values", ErrMixedDataset, len(u), name)
	}
	return u[0], nil
}

// Prepare 从结果表构造绘图网格
func Prepare(t *table.Table, vmin, vmax float64) (*Dataset, error) {
	thermal, err := single(t, "thermal")
	if err != nil {
		return nil, err
	}
	n, err := single(t, "N")
	if err != nil {
		return nil, err
	}
	L := int(n)
	if L < 1 || float64(L) != n {
		return nil, fmt.Errorf("%w: invalid size N=%v", ErrMixedDataset, n)
	}

	times, err := t.Unique("t")
	if err != nil {
		return nil, err
	}
	if len(times) != t.Len() {
		return nil, fmt.Errorf("%w: %d rows for %d time steps", ErrMixedDataset, t.Len(), len(times))
	}

	ts, _ := t.Column("t")
	order := make([]int, len(ts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return ts[order[a]] < ts[order[b]] })

	re := make([][]float64, L)
	im := make([][]float64, L)
	for j := 0; j < L; j++ {
		name := strconv.Itoa(j + 1)
		if re[j], err = t.Column(name); err != nil {
			return nil, err
		}
		if im[j], err = t.Column("I" + name); err != nil {
			return nil, err
		}
	}

	ds := &Dataset{
		Thermal:   thermal != 0,
		L:         L,
		Positions: Positions(L),
		Times:     times,
		Real:      make([][]float64, len(times)),
		Imag:      make([][]float64, len(times)),
		Magnitude: make([][]float64, len(times)),
	}

	flat := make([]float64, 0, len(times)*L)
	for r, row := range order {
		ds.Real[r] = make([]float64, L)
		ds.Imag[r] = make([]float64, L)
		ds.Magnitude[r] = make([]float64, L)
		for j := 0; j < L; j++ {
			a, b := re[j][row], im[j][row]
			ds.Real[r][j] = a
			ds.Imag[r][j] = b
			ds.Magnitude[r][j] = math.Sqrt(a*a + b*b)
			if ds.Thermal {
				flat = append(flat, math.Abs(a))
			} else {
				flat = append(flat, ds.Magnitude[r][j])
			}
		}
	}

	ds.Scale = 10
	if ds.Thermal {
		ds.Scale = 1
	}

	scaled := Rescale(flat, vmin, vmax)
	ds.Field = make([][]float64, len(times))
	for r := range ds.Field {
		ds.Field[r] = scaled[r*L : (r+1)*L]
	}
	for _, v := range scaled {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: color field is constant or non-finite", ErrDegenerateDataset)
		}
	}

	c := L / 2
	if c < 1 {
		c = 1
	}
	ds.AutoReal = make([]float64, len(times))
	ds.AutoImag = make([]float64, len(times))
	ds.AutoMagnitude = make([]float64, len(times))
	for r := range times {
		ds.AutoReal[r] = ds.Real[r][c-1]
		ds.AutoImag[r] = ds.Imag[r][c-1]
		ds.AutoMagnitude[r] = ds.Magnitude[r][c-1]
	}

	return ds, nil
}

func (ds *Dataset) FieldRange() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range ds.Field {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}
