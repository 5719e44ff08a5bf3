package handler

import (
	"net/http"
	"time"

	"corrplot-backend/internal/config"
	"corrplot-backend/web"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter 组装页面、API 和静态文件路由
func NewRouter(cfg *config.Config, h *CorrelationHandler) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)

	// 中间件
	router.Use(RequestLogger())
	router.Use(gin.Recovery())

	// CORS配置
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	if cfg.Web.StaticDir != "" {
		router.Static("/static", cfg.Web.StaticDir)
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// 页面
	router.GET("/", h.Index)
	router.GET("/correlation", h.Page)
	router.POST("/correlation", h.Submit)

	// API路由
	api := router.Group("/api")
	{
		api.POST("/correlation", h.Compute)

		cache := api.Group("/cache")
		{
			cache.GET("", h.ListCache)
			cache.DELETE("", h.ClearCache)
			cache.DELETE("/:key", h.DeleteCacheEntry)
		}

		api.GET("/runs", h.ListRuns)
	}

	return router, nil
}
