package model

import (
	"errors"
	"net/url"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func formValues(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func baseForm() url.Values {
	return formValues(
		"Correlation", "true",
		"Chebyshev", "false",
		"thermal", "false",
		"N", "4",
		"Delta", "0.1",
		"time", "1",
		"MaxDim", "50",
	)
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams(baseForm())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if !p.Correlation || p.Chebyshev || p.Thermal {
		t.Errorf("unexpected flags: %+v", p)
	}
	if p.N != 4 || p.Delta != 0.1 || p.Time != 1 || p.MaxDim != 50 {
		t.Errorf("unexpected values: %+v", p)
	}
	if p.Extra != nil {
		t.Errorf("expected no extra params, got %v", p.Extra)
	}
}

func TestParseParamsMissing(t *testing.T) {
	for _, key := range []string{"thermal", "N", "Delta", "time", "MaxDim"} {
		form := baseForm()
		form.Del(key)

		_, err := ParseParams(form)
		if !errors.Is(err, ErrMissingParameter) {
			t.Errorf("%s: expected ErrMissingParameter, got %v", key, err)
			continue
		}
		if !strings.Contains(err.Error(), key) {
			t.Errorf("%s: error should name the key, got %v", key, err)
		}
	}
}

func TestParseParamsInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"N", "four"},
		{"N", "0"},
		{"Delta", "NaN"},
		{"MaxDim", "-1"},
		{"thermal", "maybe"},
		{"nSweeps", "x"},
	}

	for _, tt := range tests {
		form := baseForm()
		form.Set(tt.key, tt.value)
		if _, err := ParseParams(form); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%s=%s: expected ErrInvalidParameter, got %v", tt.key, tt.value, err)
		}
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name:   "correlation",
			params: Params{Correlation: true, N: 4, Delta: 0.1, Time: 1, MaxDim: 50},
			want:   "Correlation_false_4_0.1_1_50.csv",
		},
		{
			name:   "chebyshev wins",
			params: Params{Correlation: true, Chebyshev: true, Thermal: true, N: 10, Delta: 0.05, Time: 2.5, MaxDim: 100},
			want:   "Chebyshev_true_10_0.05_2.5_100.csv",
		},
		{
			name:   "no mode",
			params: Params{N: 3, Delta: 1, Time: 10, MaxDim: 8},
			want:   "false_3_1_10_8.csv",
		},
	}

	for _, tt := range tests {
		got, err := tt.params.CacheKey()
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestCacheKeyIgnoresIrrelevantParams(t *testing.T) {
	a := baseForm()
	b := baseForm()
	b.Set("nSweeps", "9")
	b.Set("Evolver", "TDVP")
	b.Set("comment", "hello")

	pa, err := ParseParams(a)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := ParseParams(b)
	if err != nil {
		t.Fatal(err)
	}

	ka, _ := pa.CacheKey()
	kb, _ := pb.CacheKey()
	if ka != kb {
		t.Errorf("keys differ for irrelevant params: %s vs %s", ka, kb)
	}
}

func TestCacheKeyZeroValue(t *testing.T) {
	if _, err := (Params{}).CacheKey(); !errors.Is(err, ErrMissingParameter) {
		t.Errorf("expected ErrMissingParameter, got %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs([]Flag{{"N", "4"}, {"weird key", "a=b"}, {"empty", ""}})
	want := []string{"--N=4", "--weird key=a=b", "--empty="}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("expected %v, got %v", want, args)
	}
}

func TestSchedule(t *testing.T) {
	if got := Schedule(5, 100); !reflect.DeepEqual(got, []int{20, 40, 60, 80, 100}) {
		t.Errorf("unexpected schedule %v", got)
	}
	if got := Schedule(5, 2); !reflect.DeepEqual(got, []int{1, 1, 1, 2, 2}) {
		t.Errorf("expected floor of 1, got %v", got)
	}
	if got := Schedule(0, 100); got != nil {
		t.Errorf("expected nil schedule, got %v", got)
	}
	if got := FormatSchedule([]int{20, 40, 60}); got != "20,40,60" {
		t.Errorf("unexpected format %q", got)
	}
}

func TestWithDefaultsDoesNotMutate(t *testing.T) {
	p := Params{Correlation: true, N: 4, Delta: 0.1, Time: 1, MaxDim: 100,
		Extra: map[string]string{"Model": "Ising", "tag": "x"}}
	defaults := []Flag{{"save", "false"}, {"Model", "XXZ"}, {"Evolver", "Trotter"}}

	inv := p.WithDefaults(defaults, "code/", 5)

	if p.Extra["Model"] != "Ising" || len(p.Extra) != 2 {
		t.Errorf("caller params mutated: %v", p.Extra)
	}
	if inv.Model != "XXZ" {
		t.Errorf("default model should win, got %s", inv.Model)
	}
	if !reflect.DeepEqual(inv.Schedule, []int{20, 40, 60, 80, 100}) {
		t.Errorf("unexpected schedule %v", inv.Schedule)
	}

	args := inv.Args()
	want := []string{
		"--thermal=false", "--N=4", "--Delta=0.1", "--time=1", "--MaxDim=100",
		"--Correlation=true", "--Chebyshev=false", "--tag=x",
		"--resDir=code/", "--save=false", "--Model=XXZ", "--Evolver=Trotter",
		"--nSweeps=5", "--sweeps_maxdim=20,40,60,80,100",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("unexpected args:\n got %v\nwant %v", args, want)
	}
}

func TestWithDefaultsRequestSweeps(t *testing.T) {
	p := Params{N: 4, Delta: 0.1, Time: 1, MaxDim: 30, NSweeps: 3}
	inv := p.WithDefaults(nil, "code/", 5)
	if inv.Sweeps != 3 {
		t.Errorf("expected request sweeps 3, got %d", inv.Sweeps)
	}
	if !reflect.DeepEqual(inv.Schedule, []int{10, 20, 30}) {
		t.Errorf("unexpected schedule %v", inv.Schedule)
	}
}

func TestResultDir(t *testing.T) {
	tests := []struct {
		params Params
		want   string
	}{
		{Params{Correlation: true}, filepath.Join("/w", "code", ".results", "correlationx", "XXZ")},
		{Params{Chebyshev: true}, filepath.Join("/w", "code", ".results", "chebyshevx", "XXZ")},
		{Params{Correlation: true, Chebyshev: true}, filepath.Join("/w", "code", ".results", "correlationx", "chebyshevx", "XXZ")},
		{Params{}, filepath.Join("/w", "code", ".results", "XXZ")},
	}

	for _, tt := range tests {
		inv := tt.params.WithDefaults([]Flag{{"Model", "XXZ"}}, "code/", 5)
		if got := inv.ResultDir("/w"); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}

func TestCorrelationRequestParams(t *testing.T) {
	thermal, delta, tm := true, 0.2, 3.0
	req := CorrelationRequest{Thermal: &thermal, N: 6, Delta: &delta, Time: &tm, MaxDim: 40,
		Extra: map[string]string{"N": "99", "label": "run"}}

	p := req.Params()
	if !p.Correlation || p.Chebyshev || !p.Thermal {
		t.Errorf("unexpected flags %+v", p)
	}
	if p.N != 6 || p.Delta != 0.2 || p.Time != 3 {
		t.Errorf("extra must not override known keys, got %+v", p)
	}
	if p.Extra["label"] != "run" || len(p.Extra) != 1 {
		t.Errorf("unexpected extra %v", p.Extra)
	}
}
