package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"corrplot-backend/internal/model"
	"corrplot-backend/internal/plot"

	"github.com/spf13/cobra"
)

// 这些 flag 与表单字段同名，原样交给 ParseParams
var paramFlags = []string{
	model.KeyThermal,
	model.KeyN,
	model.KeyDelta,
	model.KeyTime,
	model.KeyMaxDim,
	model.KeySweeps,
	model.KeyChebyshev,
}

func newRunCmd(load loadFunc) *cobra.Command {
	var (
		outDir string
		extra  map[string]string
		width  int
		height int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation and plot the result",
		Example: "  corrplot run --thermal=false --N 4 --Delta 0.1 --time 1 --MaxDim 50 --out ./plots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setupCLI(load)
			if err != nil {
				return err
			}

			p, err := model.ParseParams(paramValues(cmd, extra))
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := a.sim.Run(ctx, p)
			if err != nil {
				return err
			}

			ds, err := plot.Prepare(res.Table, cfg.Plot.VMin, cfg.Plot.VMax)
			if err != nil {
				return err
			}

			fmt.Println(titleStyle.Render("Correlation run"))
			fmt.Println(field("cache key", res.Key))
			fmt.Println(labelStyle.Render("cache") + hitLabel(res.CacheHit))
			fmt.Println(field("sites", ds.L))
			fmt.Println(field("time steps", len(ds.Times)))
			fmt.Println(field("elapsed", res.Duration.Round(time.Millisecond)))
			fmt.Println(graphStyle.Render(plot.ASCII(ds, width, height)))

			if outDir == "" {
				return nil
			}
			return writeFigures(a.renderer, ds, outDir)
		},
	}

	cmd.Flags().Bool(model.KeyThermal, false, "thermal state")
	cmd.Flags().Int(model.KeyN, 0, "chain length")
	cmd.Flags().Float64(model.KeyDelta, 0, "anisotropy")
	cmd.Flags().Float64(model.KeyTime, 0, "total evolution time")
	cmd.Flags().Int(model.KeyMaxDim, 0, "maximum bond dimension")
	cmd.Flags().Int(model.KeySweeps, 0, "number of sweeps (default from config)")
	cmd.Flags().Bool(model.KeyChebyshev, false, "Chebyshev mode")
	cmd.Flags().StringToStringVar(&extra, "set", nil, "extra key=value passed to the simulation")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write correlation.png and auto-correlation.png")
	cmd.Flags().IntVar(&width, "width", 60, "ASCII graph width")
	cmd.Flags().IntVar(&height, "height", 12, "ASCII graph height")
	return cmd
}

// paramValues 收集命令行参数；thermal 未给出时取 flag 默认值 false，
// 其余未给出的参数交给 ParseParams 判断是否缺失
func paramValues(cmd *cobra.Command, extra map[string]string) url.Values {
	values := url.Values{}
	for _, name := range paramFlags {
		if name == model.KeyThermal || cmd.Flags().Changed(name) {
			values.Set(name, cmd.Flags().Lookup(name).Value.String())
		}
	}
	for k, v := range extra {
		values.Set(k, v)
	}
	values.Set(model.KeyCorrelation, "true")
	return values
}

func writeFigures(r *plot.Renderer, ds *plot.Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	corr, err := r.Correlation(ds)
	if err != nil {
		return err
	}
	auto, err := r.AutoCorrelation(ds)
	if err != nil {
		return err
	}

	files := map[string][]byte{
		"correlation.png":      corr,
		"auto-correlation.png": auto,
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		fmt.Println(field("wrote", path))
	}
	return nil
}
