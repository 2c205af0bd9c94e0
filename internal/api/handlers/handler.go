package handlers

import (
	"time"

	"github.com/leozw/zoom-dashboard/internal/licenses"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"go.uber.org/zap"
)

// Pinger reports whether an optional backing store is reachable.
type Pinger interface {
	Ping() error
}

type Handler struct {
	archiveDir    string
	retentionDays int
	zoom          licenses.Zoom
	db            Pinger
	metrics       *metrics.Collector
	logger        *zap.Logger
	now           func() time.Time
}

// NewHandler wires the handlers. db may be nil when no mirror is configured.
func NewHandler(archiveDir string, retentionDays int, z licenses.Zoom, db Pinger, m *metrics.Collector, logger *zap.Logger) *Handler {
	return &Handler{
		archiveDir:    archiveDir,
		retentionDays: retentionDays,
		zoom:          z,
		db:            db,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}
