// Package table 读写模拟程序输出的 CSV 结果文件
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrEmptyTable    = errors.New("table: no rows")
	ErrMissingColumn = errors.New("table: missing column")
	ErrBadValue      = errors.New("table: unparsable value")
)

// Table 按列存储的数值表，布尔值存为 1/0
type Table struct {
	header  []string
	columns map[string][]float64
	rows    int
}

// New 由表头和等长的列构造表
func New(header []string, columns map[string][]float64) (*Table, error) {
	t := &Table{header: append([]string(nil), header...), columns: make(map[string][]float64, len(header))}
	for i, name := range header {
		col, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		if i == 0 {
			t.rows = len(col)
		} else if len(col) != t.rows {
			return nil, fmt.Errorf("table: column %s has %d rows, want %d", name, len(col), t.rows)
		}
		t.columns[name] = append([]float64(nil), col...)
	}
	return t, nil
}

// Read 解析带表头的 CSV。
// 首列表头为空时（写出的行号）以 "" 为列名保留。
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("table: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{header: header, columns: make(map[string][]float64, len(header))}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table: read row %d: %w", t.rows+1, err)
		}
		for i, cell := range rec {
			v, err := parseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %q", ErrBadValue, t.rows+1, header[i], cell)
			}
			t.columns[header[i]] = append(t.columns[header[i]], v)
		}
		t.rows++
	}
	if t.rows == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	case "":
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, 64)
}

// Write 以最短可还原的数字格式写出 CSV
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	rec := make([]string, len(t.header))
	for r := 0; r < t.rows; r++ {
		for i, name := range t.header {
			rec[i] = strconv.FormatFloat(t.columns[name][r], 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (t *Table) Header() []string { return append([]string(nil), t.header...) }

func (t *Table) Len() int { return t.rows }

func (t *Table) Has(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Column 返回指定列，调用方不得修改
func (t *Table) Column(name string) ([]float64, error) {
	col, ok := t.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return col, nil
}

// Unique 返回指定列去重排序后的值
func (t *Table) Unique(name string) ([]float64, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[float64]struct{}, len(col))
	out := make([]float64, 0)
	for _, v := range col {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out, nil
}
