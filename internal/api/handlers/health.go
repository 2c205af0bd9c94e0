package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leozw/zoom-dashboard/internal/archive"
)

// Health lists the archive streams that already have a current file.
func (h *Handler) Health(c *gin.Context) {
	var present []string
	for _, stream := range archive.Streams {
		if _, err := os.Stat(h.streamPath(stream)); err == nil {
			present = append(present, stream)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"archive_dir": h.archiveDir,
		"streams":     present,
		"time":        h.now().UTC().Format(time.RFC3339),
	})
}

// Ready requires the archive directory and, when configured, the mirror
// database.
func (h *Handler) Ready(c *gin.Context) {
	info, err := os.Stat(h.archiveDir)
	if err != nil || !info.IsDir() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "archive directory unavailable",
		})
		return
	}

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "database connection failed",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ready",
		"archive_dir": h.archiveDir,
		"mirror":      h.db != nil,
	})
}

func (h *Handler) streamPath(stream string) string {
	return filepath.Join(h.archiveDir, archive.FileName(stream))
}
