package model

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrMissingParameter = errors.New("missing parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// 表单字段名，与模拟程序的命令行参数同名
const (
	KeyCorrelation = "Correlation"
	KeyChebyshev   = "Chebyshev"
	KeyThermal     = "thermal"
	KeyN           = "N"
	KeyDelta       = "Delta"
	KeyTime        = "time"
	KeyMaxDim      = "MaxDim"
	KeySweeps      = "nSweeps"
	KeySchedule    = "sweeps_maxdim"
	KeyResDir      = "resDir"
	KeyModel       = "Model"
)

const cacheSuffix = ".csv"

// Flag 是一个按顺序传给模拟程序的 key=value 参数
type Flag struct {
	Key   string
	Value string
}

// Params 是一次模拟请求的参数；Extra 保存未识别的表单字段，原样透传
type Params struct {
	Correlation bool
	Chebyshev   bool
	Thermal     bool
	N           int
	Delta       float64
	Time        float64
	MaxDim      int
	NSweeps     int
	Extra       map[string]string
}

var knownKeys = map[string]bool{
	KeyCorrelation: true,
	KeyChebyshev:   true,
	KeyThermal:     true,
	KeyN:           true,
	KeyDelta:       true,
	KeyTime:        true,
	KeyMaxDim:      true,
	KeySweeps:      true,
	KeySchedule:    true,
	KeyResDir:      true,
}

// ParseParams 从表单值构造 Params。thermal、N、Delta、time、MaxDim 必填。
func ParseParams(values url.Values) (Params, error) {
	var p Params
	var err error

	lookup := func(key string) (string, error) {
		v, ok := values[key]
		if !ok || len(v) == 0 || strings.TrimSpace(v[0]) == "" {
			return "", fmt.Errorf("%w: %s", ErrMissingParameter, key)
		}
		return strings.TrimSpace(v[0]), nil
	}
	optional := func(key string) (string, bool) {
		v, ok := values[key]
		if !ok || len(v) == 0 || strings.TrimSpace(v[0]) == "" {
			return "", false
		}
		return strings.TrimSpace(v[0]), true
	}

	raw, err := lookup(KeyThermal)
	if err != nil {
		return p, err
	}
	if p.Thermal, err = parseBool(KeyThermal, raw); err != nil {
		return p, err
	}

	if raw, err = lookup(KeyN); err != nil {
		return p, err
	}
	if p.N, err = parseInt(KeyN, raw); err != nil {
		return p, err
	}

	if raw, err = lookup(KeyDelta); err != nil {
		return p, err
	}
	if p.Delta, err = parseFloat(KeyDelta, raw); err != nil {
		return p, err
	}

	if raw, err = lookup(KeyTime); err != nil {
		return p, err
	}
	if p.Time, err = parseFloat(KeyTime, raw); err != nil {
		return p, err
	}

	if raw, err = lookup(KeyMaxDim); err != nil {
		return p, err
	}
	if p.MaxDim, err = parseInt(KeyMaxDim, raw); err != nil {
		return p, err
	}

	if raw, ok := optional(KeyCorrelation); ok {
		if p.Correlation, err = parseBool(KeyCorrelation, raw); err != nil {
			return p, err
		}
	}
	if raw, ok := optional(KeyChebyshev); ok {
		if p.Chebyshev, err = parseBool(KeyChebyshev, raw); err != nil {
			return p, err
		}
	}
	if raw, ok := optional(KeySweeps); ok {
		if p.NSweeps, err = parseInt(KeySweeps, raw); err != nil {
			return p, err
		}
	}

	if p.N <= 0 {
		return p, fmt.Errorf("%w: %s must be positive", ErrInvalidParameter, KeyN)
	}
	if p.MaxDim <= 0 {
		return p, fmt.Errorf("%w: %s must be positive", ErrInvalidParameter, KeyMaxDim)
	}
	if p.NSweeps < 0 {
		return p, fmt.Errorf("%w: %s must not be negative", ErrInvalidParameter, KeySweeps)
	}

	for k, v := range values {
		if knownKeys[k] || len(v) == 0 {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]string)
		}
		p.Extra[k] = v[0]
	}

	return p, nil
}

func parseBool(key, raw string) (bool, error) {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, key, raw)
	}
	return b, nil
}

func parseInt(key, raw string) (int, error) {
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, key, raw)
	}
	return i, nil
}

func parseFloat(key, raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, key, raw)
	}
	return f, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ModePrefix 返回缓存文件名的模式前缀；Chebyshev 优先于 Correlation
func (p Params) ModePrefix() string {
	switch {
	case p.Chebyshev:
		return "Chebyshev_"
	case p.Correlation:
		return "Correlation_"
	default:
		return ""
	}
}

// CacheKey 由与结果相关的参数生成确定的缓存文件名。
// 不同的 Extra、NSweeps 得到相同的 key。
func (p Params) CacheKey() (string, error) {
	if p.N <= 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, KeyN)
	}
	if p.MaxDim <= 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, KeyMaxDim)
	}

	parts := []string{
		strconv.FormatBool(p.Thermal),
		strconv.Itoa(p.N),
		formatFloat(p.Delta),
		formatFloat(p.Time),
		strconv.Itoa(p.MaxDim),
	}
	return p.ModePrefix() + strings.Join(parts, "_") + cacheSuffix, nil
}

// Flags 返回请求本身的参数，顺序固定，Extra 按 key 排序
func (p Params) Flags() []Flag {
	flags := []Flag{
		{KeyThermal, strconv.FormatBool(p.Thermal)},
		{KeyN, strconv.Itoa(p.N)},
		{KeyDelta, formatFloat(p.Delta)},
		{KeyTime, formatFloat(p.Time)},
		{KeyMaxDim, strconv.Itoa(p.MaxDim)},
		{KeyCorrelation, strconv.FormatBool(p.Correlation)},
		{KeyChebyshev, strconv.FormatBool(p.Chebyshev)},
	}

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		flags = append(flags, Flag{k, p.Extra[k]})
	}
	return flags
}

// BuildArgs 把参数逐个转换为 --key=value，不做任何校验
func BuildArgs(flags []Flag) []string {
	args := make([]string, 0, len(flags))
	for _, f := range flags {
		args = append(args, "--"+f.Key+"="+f.Value)
	}
	return args
}

// Schedule 计算每轮 sweep 的 bond dimension 上限：max(1, round(n/S*maxDim))
func Schedule(sweeps, maxDim int) []int {
	if sweeps <= 0 {
		return nil
	}
	out := make([]int, sweeps)
	for n := 1; n <= sweeps; n++ {
		v := int(math.Round(float64(n) / float64(sweeps) * float64(maxDim)))
		if v < 1 {
			v = 1
		}
		out[n-1] = v
	}
	return out
}

// FormatSchedule 输出不带括号和空格的逗号分隔列表
func FormatSchedule(schedule []int) string {
	parts := make([]string, len(schedule))
	for i, v := range schedule {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// Invocation 是缓存未命中时实际交给模拟程序的完整参数
type Invocation struct {
	Params   Params
	ResDir   string
	Model    string
	Sweeps   int
	Schedule []int
	defaults []Flag
}

// WithDefaults 合并默认参数与派生的 sweep 计划，返回新值，不修改 p。
// 请求未指定 nSweeps 时使用 sweeps。
func (p Params) WithDefaults(defaults []Flag, resDir string, sweeps int) Invocation {
	inv := Invocation{
		Params: p,
		ResDir: resDir,
		Model:  "XXZ",
		Sweeps: sweeps,
	}
	if p.NSweeps > 0 {
		inv.Sweeps = p.NSweeps
	}

	inv.defaults = make([]Flag, 0, len(defaults))
	for _, d := range defaults {
		if d.Key == KeyModel {
			inv.Model = d.Value
		}
		inv.defaults = append(inv.defaults, d)
	}

	if p.Extra != nil {
		extra := make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			if inv.hasDefault(k) {
				continue
			}
			extra[k] = v
		}
		inv.Params.Extra = extra
	}

	inv.Schedule = Schedule(inv.Sweeps, p.MaxDim)
	return inv
}

func (inv Invocation) hasDefault(key string) bool {
	for _, d := range inv.defaults {
		if d.Key == key {
			return true
		}
	}
	return false
}

// Flags 返回完整的有序参数列表
func (inv Invocation) Flags() []Flag {
	flags := inv.Params.Flags()
	flags = append(flags, Flag{KeyResDir, inv.ResDir})
	flags = append(flags, inv.defaults...)
	flags = append(flags,
		Flag{KeySweeps, strconv.Itoa(inv.Sweeps)},
		Flag{KeySchedule, FormatSchedule(inv.Schedule)},
	)
	return flags
}

// Args 等价于 BuildArgs(inv.Flags())
func (inv Invocation) Args() []string {
	return BuildArgs(inv.Flags())
}

// ResultDir 返回模拟程序写结果的目录：<workDir>/<resDir>/.results/[correlationx/][chebyshevx/]<Model>
func (inv Invocation) ResultDir(workDir string) string {
	parts := []string{workDir, inv.ResDir, ".results"}
	if inv.Params.Correlation {
		parts = append(parts, "correlationx")
	}
	if inv.Params.Chebyshev {
		parts = append(parts, "chebyshevx")
	}
	parts = append(parts, inv.Model)
	return filepath.Join(parts...)
}
