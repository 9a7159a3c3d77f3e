package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *handler) checkHealth(ctx context.Context) (map[string]bool, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Health))
	for name := range h.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	res := make(map[string]bool, len(names))
	ok := true
	for _, name := range names {
		healthy := h.Health[name](ctx)
		res[name] = healthy
		ok = ok && healthy
	}
	return res, ok
}

func (h *handler) healthz(c *gin.Context) {
	deps, ok := h.checkHealth(c.Request.Context())
	status, label := http.StatusOK, "ok"
	if !ok {
		status, label = http.StatusServiceUnavailable, "degraded"
	}
	body := gin.H{"status": label}
	for name, healthy := range deps {
		body[name] = healthy
	}
	c.JSON(status, body)
}

func (h *handler) systemInfo(c *gin.Context) {
	deps, ok := h.checkHealth(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"version":        h.Version,
		"go_version":     runtime.Version(),
		"started_at":     h.Started.UTC(),
		"uptime_seconds": int64(time.Since(h.Started).Seconds()),
		"healthy":        ok,
		"dependencies":   deps,
	})
}
