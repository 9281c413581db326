package api

import (
	"context"
	"net/http"

	"github.com/dewei/CancelRadar/pkg/dispatcher"
	"github.com/dewei/CancelRadar/pkg/metrics"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SendReminders 立即向全部未发送提醒发送一次。
// 批次不随客户端断开而中止，每个候选都会被尝试。
func (h *Handlers) SendReminders(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := h.runner.RunBatch(ctx, dispatcher.Pending)
	if err != nil {
		h.log.Error("手动发送提醒失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"enviados": res.Sent,
		"total":    res.Total,
		"fallidos": res.Failed,
		"omitidos": res.Skipped,
		"agotados": res.Exhausted,
	})
}

// ListAlerts 列出未发送提醒
func (h *Handlers) ListAlerts(c *gin.Context) {
	alerts, err := h.alerts.ListPending(c.Request.Context())
	if err != nil {
		h.log.Error("获取提醒列表失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	views := make([]model.AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, a.View())
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   len(views),
		"alertas": views,
	})
}

// Stats 提醒统计
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.alerts.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("获取提醒统计失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	metrics.PendingAlerts.Set(float64(stats.Pending))

	c.JSON(http.StatusOK, gin.H{
		"success":                  true,
		"total_predicciones":       stats.Total,
		"recordatorios_pendientes": stats.Pending,
		"recordatorios_enviados":   stats.Sent,
	})
}
