package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tunefetch/pkg/logger"
	"tunefetch/pkg/normalize"
	"tunefetch/pkg/scheduler"
	"tunefetch/pkg/spotify"
)

// Catalog 对外暴露的领域操作，*spotify.Service 满足该接口
type Catalog interface {
	SearchArtists(ctx context.Context, q string, limit int) []normalize.Artist
	SearchAlbums(ctx context.Context, q string, limit int) spotify.AlbumSearchResult
	SearchTracks(ctx context.Context, q string, limit int) []normalize.Track
	SearchLabelReleases(ctx context.Context, label string, limit int) spotify.AlbumSearchResult
	GetSimilarArtists(ctx context.Context, artistID string, limit int) []normalize.Artist
	GetBatchArtistFollowers(ctx context.Context, ids []string) map[string]spotify.ArtistFollowers
	GetBatchTracks(ctx context.Context, ids []string) map[string]spotify.TrackDetails
	GetBatchAlbums(ctx context.Context, ids []string) map[string]spotify.AlbumDetails
	GetArtistPreviewTracks(ctx context.Context, artistID string, limit int) []spotify.PreviewTrack
}

// CircuitSource 提供熔断状态，*scheduler.CircuitReporter 满足该接口
type CircuitSource interface {
	RunOnce(ctx context.Context) []scheduler.CircuitSnapshot
}

// HealthCheck 依赖健康检查，返回 nil 表示正常
type HealthCheck func(ctx context.Context) error

// Options 路由依赖
type Options struct {
	Catalog  Catalog
	Circuits CircuitSource          // 可选
	Metrics  http.Handler           // 可选，挂载到 /metrics
	Checks   map[string]HealthCheck // 可选，/healthz 使用
	Timeout  time.Duration          // 单个请求的整体超时，默认 30s
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// maxBatchIDs 单次批量查询接受的最大 ID 数
const maxBatchIDs = 200

type handlers struct {
	catalog  Catalog
	circuits CircuitSource
	checks   map[string]HealthCheck
	timeout  time.Duration
	log      *logrus.Entry
}

// NewRouter 创建 gin 路由
func NewRouter(opts Options) *gin.Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	h := &handlers{
		catalog:  opts.Catalog,
		circuits: opts.Circuits,
		checks:   opts.Checks,
		timeout:  opts.Timeout,
		log:      logger.WithComponent("API"),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(h.requestLogger())
	router.Use(corsMiddleware())

	router.GET("/healthz", h.healthCheck)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/providers", h.getProviders)

		v1.GET("/search/artists", h.searchArtists)
		v1.GET("/search/albums", h.searchAlbums)
		v1.GET("/search/tracks", h.searchTracks)
		v1.GET("/labels/releases", h.labelReleases)

		v1.GET("/artists/followers", h.artistFollowers)
		v1.GET("/artists/:id/similar", h.similarArtists)
		v1.GET("/artists/:id/preview-tracks", h.previewTracks)

		v1.GET("/tracks", h.batchTracks)
		v1.GET("/albums", h.batchAlbums)
	}

	return router
}

func (h *handlers) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request served")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *handlers) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func (h *handlers) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	status := "ok"
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			services[name] = "error: " + err.Error()
			status = "degraded"
			continue
		}
		services[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now(),
		"services":  services,
	})
}

func (h *handlers) getProviders(c *gin.Context) {
	if h.circuits == nil {
		c.JSON(http.StatusOK, gin.H{"providers": []scheduler.CircuitSnapshot{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": h.circuits.RunOnce(c.Request.Context())})
}

func (h *handlers) searchArtists(c *gin.Context) {
	q, limit, ok := searchParams(c, "q")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{"artists": h.catalog.SearchArtists(ctx, q, limit)})
}

func (h *handlers) searchAlbums(c *gin.Context) {
	q, limit, ok := searchParams(c, "q")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	c.JSON(http.StatusOK, h.catalog.SearchAlbums(ctx, q, limit))
}

func (h *handlers) searchTracks(c *gin.Context) {
	q, limit, ok := searchParams(c, "q")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{"tracks": h.catalog.SearchTracks(ctx, q, limit)})
}

func (h *handlers) labelReleases(c *gin.Context) {
	label, limit, ok := searchParams(c, "label")
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	c.JSON(http.StatusOK, h.catalog.SearchLabelReleases(ctx, label, limit))
}

func (h *handlers) similarArtists(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{"artists": h.catalog.GetSimilarArtists(ctx, c.Param("id"), limit)})
}

func (h *handlers) previewTracks(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{"tracks": h.catalog.GetArtistPreviewTracks(ctx, c.Param("id"), limit)})
}

func (h *handlers) artistFollowers(c *gin.Context) {
	ids, ok := idsParam(c)
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{"artists": h.catalog.GetBatchArtistFollowers(ctx, ids)})
}

func (h *handlers) batchTracks(c *gin.Context) {
	ids, ok := idsParam(c)
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{"tracks": h.catalog.GetBatchTracks(ctx, ids)})
}

func (h *handlers) batchAlbums(c *gin.Context) {
	ids, ok := idsParam(c)
	if !ok {
		return
	}
	ctx, cancel := h.context(c)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{"albums": h.catalog.GetBatchAlbums(ctx, ids)})
}

// searchParams 读取必填的查询词与可选的 limit
func searchParams(c *gin.Context, name string) (string, int, bool) {
	q := strings.TrimSpace(c.Query(name))
	if q == "" {
		badRequest(c, name+" is required")
		return "", 0, false
	}
	limit, ok := limitParam(c)
	return q, limit, ok
}

// limitParam limit 缺省为 0，交给领域层使用默认值
func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

// idsParam 支持 ids=a,b 与重复的 ids=a&ids=b
func idsParam(c *gin.Context) ([]string, bool) {
	var ids []string
	for _, v := range c.QueryArray("ids") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		badRequest(c, "ids is required")
		return nil, false
	}
	if len(ids) > maxBatchIDs {
		badRequest(c, "too many ids, max "+strconv.Itoa(maxBatchIDs))
		return nil, false
	}
	return ids, true
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: message})
}
