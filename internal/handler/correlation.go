package handler

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"corrplot-backend/internal/model"
	"corrplot-backend/internal/plot"
	"corrplot-backend/internal/service"
	"corrplot-backend/internal/storage"
	"corrplot-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// GET 页面显示的静态默认图
const (
	defaultCorrelationURL     = "static/plot/correlation.png"
	defaultAutoCorrelationURL = "static/plot/auto-correlation.png"
)

type CorrelationHandler struct {
	simService *service.SimulationService
	renderer   *plot.Renderer
}

func NewCorrelationHandler(simService *service.SimulationService, renderer *plot.Renderer) *CorrelationHandler {
	return &CorrelationHandler{
		simService: simService,
		renderer:   renderer,
	}
}

type formView struct {
	N       string
	Delta   string
	Time    string
	MaxDim  string
	NSweeps string
}

type pageData struct {
	URLCor   template.URL
	URLAuto  template.URL
	Error    string
	CacheKey string
	CacheHit bool
	Form     *formView
}

// computed 是一次完整流程的产物
type computed struct {
	result  *service.SimulationResult
	figures *plot.Figures
}

func (h *CorrelationHandler) compute(ctx context.Context, p model.Params) (*computed, error) {
	res, err := h.simService.Run(ctx, p)
	if err != nil {
		return nil, err
	}
	figs, err := h.renderer.Render(res.Table)
	if err != nil {
		return nil, err
	}
	return &computed{result: res, figures: figs}, nil
}

func (h *CorrelationHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", nil)
}

// Page 显示表单和默认图
func (h *CorrelationHandler) Page(c *gin.Context) {
	c.HTML(http.StatusOK, "correlation.html", pageData{
		URLCor:  defaultCorrelationURL,
		URLAuto: defaultAutoCorrelationURL,
	})
}

// Submit 处理表单提交：关联模式固定开启，Chebyshev 固定关闭
func (h *CorrelationHandler) Submit(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.HTML(http.StatusBadRequest, "correlation.html", pageData{Error: err.Error()})
		return
	}
	values := c.Request.PostForm
	values.Set(model.KeyCorrelation, "true")
	values.Set(model.KeyChebyshev, "false")

	form := &formView{
		N:       values.Get(model.KeyN),
		Delta:   values.Get(model.KeyDelta),
		Time:    values.Get(model.KeyTime),
		MaxDim:  values.Get(model.KeyMaxDim),
		NSweeps: values.Get(model.KeySweeps),
	}

	p, err := model.ParseParams(values)
	if err != nil {
		status, _ := errorStatus(err)
		c.HTML(status, "correlation.html", pageData{Error: err.Error(), Form: form})
		return
	}

	out, err := h.compute(c.Request.Context(), p)
	if err != nil {
		status, kind := errorStatus(err)
		logRequestError(c, kind, err)
		c.HTML(status, "correlation.html", pageData{
			URLCor:  defaultCorrelationURL,
			URLAuto: defaultAutoCorrelationURL,
			Error:   err.Error(),
			Form:    form,
		})
		return
	}

	c.HTML(http.StatusOK, "correlation.html", pageData{
		URLCor:   template.URL(out.figures.Correlation),
		URLAuto:  template.URL(out.figures.AutoCorrelation),
		CacheKey: out.result.Key,
		CacheHit: out.result.CacheHit,
		Form:     form,
	})
}

// Compute 是 JSON 接口，同时接受 JSON 和表单请求体
func (h *CorrelationHandler) Compute(c *gin.Context) {
	start := time.Now()

	var p model.Params
	if c.ContentType() == gin.MIMEJSON {
		var req model.CorrelationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Error:     err.Error(),
				Kind:      "invalid_request",
				RequestID: requestID(c),
			})
			return
		}
		p = req.Params()
	} else {
		if err := c.Request.ParseForm(); err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error(), Kind: "invalid_request", RequestID: requestID(c)})
			return
		}
		values := c.Request.PostForm
		values.Set(model.KeyCorrelation, "true")
		if values.Get(model.KeyChebyshev) == "" {
			values.Set(model.KeyChebyshev, "false")
		}
		var err error
		if p, err = model.ParseParams(values); err != nil {
			h.writeError(c, err)
			return
		}
	}

	out, err := h.compute(c.Request.Context(), p)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.CorrelationResponse{
		RequestID:       requestID(c),
		CacheKey:        out.result.Key,
		CacheHit:        out.result.CacheHit,
		Correlation:     out.figures.Correlation,
		AutoCorrelation: out.figures.AutoCorrelation,
		ElapsedMs:       time.Since(start).Milliseconds(),
	})
}

func (h *CorrelationHandler) writeError(c *gin.Context, err error) {
	status, kind := errorStatus(err)
	logRequestError(c, kind, err)
	c.JSON(status, model.ErrorResponse{
		Error:     err.Error(),
		Kind:      kind,
		RequestID: requestID(c),
	})
}

// ListCache 列出缓存文件和命中统计
func (h *CorrelationHandler) ListCache(c *gin.Context) {
	cache := h.simService.Cache()
	entries, err := cache.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"stats":   cache.Stats(),
	})
}

func (h *CorrelationHandler) DeleteCacheEntry(c *gin.Context) {
	key := c.Param("key")

	err := h.simService.Cache().Delete(key)
	switch {
	case errors.Is(err, storage.ErrCacheMiss):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, storage.ErrInvalidKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cache entry deleted successfully"})
}

func (h *CorrelationHandler) ClearCache(c *gin.Context) {
	n, err := h.simService.Cache().Clear()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// ListRuns 返回最近的运行记录和汇总
func (h *CorrelationHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	ledger := h.simService.Ledger()
	runs, err := ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	summary, err := ledger.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if runs == nil {
		runs = []model.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":    runs,
		"summary": summary,
	})
}

func logRequestError(c *gin.Context, kind string, err error) {
	logger.WithFields(logger.Fields{
		"request_id": requestID(c),
		"kind":       kind,
	}).Errorf("correlation request failed: %v", err)
}
