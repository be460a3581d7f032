package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/provenance-feed/app/database"
	"github.com/lysyi3m/provenance-feed/app/feed"
	"github.com/lysyi3m/provenance-feed/app/tasks"
)

func NewHandler(itemRepo database.ItemRepository, sourceCache SourceCounter,
	scheduler tasks.TaskSchedulerInterface, version string) *Handler {
	return &Handler{
		itemRepo:    itemRepo,
		generator:   feed.NewGenerator(),
		sourceCache: sourceCache,
		scheduler:   scheduler,
		version:     version,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	items, err := h.itemRepo.ListLatest(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_latest", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]FeedItemResponse, 0, len(items))
	for _, item := range items {
		response = append(response, newFeedItemResponse(item))
	}

	c.Header("X-Feed-Items", strconv.Itoa(len(response)))
	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetFeedXML(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	items, err := h.itemRepo.ListLatest(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_latest", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	selfLink := requestScheme(c) + "://" + c.Request.Host + c.Request.URL.Path
	rss, err := h.generator.Run(feed.Channel{SelfLink: selfLink, Version: h.version}, items)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"ok":        true,
		"version":   h.version,
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if itemCount, err := h.itemRepo.Count(c.Request.Context()); err == nil {
		health["items"] = itemCount
	} else {
		slog.Warn("Failed to count items for health check", "error", err)
	}

	if h.sourceCache != nil {
		health["sources"] = h.sourceCache.GetSourceCount()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APITriggerIngest(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ingestion is not available"})
		return
	}

	id, err := h.scheduler.TriggerIngest()
	if err != nil {
		slog.Warn("Error enqueueing ingest task", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue ingest task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Ingest task enqueued",
		"task": gin.H{
			"id":   id,
			"type": tasks.TaskTypeIngest,
		},
	})
}

// parseLimit reads the limit query parameter, clamped to 1..maxFeedLimit. It
// writes a 400 response and returns false when the value is not an integer.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultFeedLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return 0, false
	}

	return min(max(limit, 1), maxFeedLimit), true
}

func requestScheme(c *gin.Context) string {
	if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		return proto
	}
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}
