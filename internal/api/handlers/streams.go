package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leozw/zoom-dashboard/internal/archive"
	"github.com/leozw/zoom-dashboard/internal/ledger"
	"go.uber.org/zap"
)

// LatestRecord returns the most recent archived line of a stream as-is.
func (h *Handler) LatestRecord(c *gin.Context) {
	stream := c.Param("stream")
	if !archive.KnownStream(stream) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown stream"})
		return
	}

	line, err := archive.Latest(h.archiveDir, stream)
	if errors.Is(err, archive.ErrEmpty) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No records yet"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to read archive", zap.String("stream", stream), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read archive"})
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", line)
}

// LedgerStats rebuilds the dedup ledger of a stream from its archive files
// and reports its size.
func (h *Handler) LedgerStats(c *gin.Context) {
	stream := c.Param("stream")
	if !archive.KnownStream(stream) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown stream"})
		return
	}

	l, err := ledger.Load(h.archiveDir, archive.Prefix(stream), h.retentionDays, h.now())
	if err != nil {
		h.logger.Error("Failed to load ledger", zap.String("stream", stream), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load ledger"})
		return
	}
	h.metrics.SetLedgerSize(stream, l.Len())

	c.JSON(http.StatusOK, gin.H{
		"stream":         stream,
		"entries":        l.Len(),
		"retention_days": h.retentionDays,
	})
}
