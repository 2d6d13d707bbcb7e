package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/cache"
	"github.com/EVTKSU/ROB-Autonomous/server/control"
	"github.com/EVTKSU/ROB-Autonomous/server/processor"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProcessorStatsSource interface {
	GetStats() *processor.ProcessorStats
}

type QueueStatsSource interface {
	GetQueueStats() processor.QueueStats
}

type LinkStatsSource interface {
	Stats() control.LinkStats
}

// StatusHandler serves read-only views of the running pipeline.
type StatusHandler struct {
	processor ProcessorStatsSource
	queue     QueueStatsSource
	sender    LinkStatsSource
	receiver  LinkStatsSource
	store     cache.ReportStore
	logger    *zap.Logger
	startTime time.Time
}

func NewStatusHandler(
	processor ProcessorStatsSource,
	queue QueueStatsSource,
	sender, receiver LinkStatsSource,
	store cache.ReportStore,
	logger *zap.Logger,
) *StatusHandler {
	return &StatusHandler{
		processor: processor,
		queue:     queue,
		sender:    sender,
		receiver:  receiver,
		store:     store,
		logger:    logger,
		startTime: time.Now(),
	}
}

func (h *StatusHandler) GetStats(c *gin.Context) {
	processorStats := h.processor.GetStats()
	queueStats := h.queue.GetQueueStats()

	var detectionRate float64
	if processorStats.TotalProcessed > 0 {
		detectionRate = float64(processorStats.SuccessfullyProcessed) / float64(processorStats.TotalProcessed) * 100
	}

	var dropRate float64
	if queueStats.Pushed > 0 {
		dropRate = float64(queueStats.Dropped) / float64(queueStats.Pushed) * 100
	}

	response := gin.H{
		"processor": processorStats,
		"queue":     queueStats,
		"link": gin.H{
			"sender":   h.sender.Stats(),
			"receiver": h.receiver.Stats(),
		},
		"cache": h.store.GetStats(),
		"metrics": gin.H{
			"detection_rate": detectionRate,
			"drop_rate":      dropRate,
			"uptime_seconds": time.Since(h.startTime).Seconds(),
		},
	}

	c.JSON(http.StatusOK, response)
}

func (h *StatusHandler) GetTelemetry(c *gin.Context) {
	entries := h.store.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"peers": entries,
		"count": len(entries),
	})
}

func (h *StatusHandler) GetPeerTelemetry(c *gin.Context) {
	peer := c.Param("peer")

	entry, err := h.store.Get(peer)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No recent report from peer"})
			return
		}
		h.logger.Error("Peer lookup failed", zap.String("peer", peer), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}

	c.JSON(http.StatusOK, entry)
}
