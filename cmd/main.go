package main

import (
	"fmt"
	"os"

	"corrplot-backend/internal/config"
	"corrplot-backend/pkg/logger"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "corrplot",
		Short:         "Spin chain correlation plotting backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		newServeCmd(load),
		newRunCmd(load),
		newCacheCmd(load),
		newRunsCmd(load),
		newConfigCmd(load),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// loadFunc 延迟到子命令执行时才读取配置，保证 --config 已解析
type loadFunc func() (*config.Config, error)

// setupCLI 加载配置并把日志写到 stderr，stdout 留给命令输出
func setupCLI(load loadFunc) (*config.Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.InitWithOutput(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}
