package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corrplot-backend/internal/handler"
	"corrplot-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(load loadFunc) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 加载配置
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			// 初始化日志
			if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}

			// 设置gin模式
			if cfg.Server.Development {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			// 初始化服务
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// 初始化处理器
			correlationHandler := handler.NewCorrelationHandler(a.sim, a.renderer)

			// 创建路由
			router, err := handler.NewRouter(cfg, correlationHandler)
			if err != nil {
				return fmt.Errorf("failed to build router: %w", err)
			}

			// 创建HTTP服务器
			server := &http.Server{
				Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:        router,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
			}

			// 启动服务器
			errCh := make(chan error, 1)
			go func() {
				logger.Infof("服务器启动在端口 %d", cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// 等待信号优雅关闭
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				return fmt.Errorf("服务器启动失败: %w", err)
			case <-quit:
			}

			logger.Info("服务器正在关闭...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Errorf("服务器关闭失败: %v", err)
			}
			logger.Info("服务器已关闭")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 5000, "监听端口，覆盖配置文件")
	return cmd
}
