package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dewei/CancelRadar/pkg/dispatcher"
	"github.com/dewei/CancelRadar/pkg/model"
	"github.com/dewei/CancelRadar/pkg/monitor"
	"github.com/dewei/CancelRadar/pkg/scoring"
	"github.com/dewei/CancelRadar/pkg/triage"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Predictor 评估入口
type Predictor interface {
	Evaluate(ctx context.Context, event *model.ScoredEvent) (triage.Outcome, error)
}

// AlertReader 只读提醒查询
type AlertReader interface {
	ListPending(ctx context.Context) ([]*model.Alert, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// BatchRunner 触发提醒批次
type BatchRunner interface {
	RunBatch(ctx context.Context, source dispatcher.Source) (model.BatchResult, error)
}

// ServiceInfo 服务信息
type ServiceInfo struct {
	Name             string
	Version          string
	NotificationMode string
	Threshold        float64
}

// Handlers API处理程序
type Handlers struct {
	predictor Predictor
	alerts    AlertReader
	runner    BatchRunner
	monitor   *monitor.Monitor
	info      ServiceInfo
	log       *zap.Logger
}

// NewHandlers 创建新的API处理程序
func NewHandlers(
	predictor Predictor,
	alerts AlertReader,
	runner BatchRunner,
	mon *monitor.Monitor,
	info ServiceInfo,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		predictor: predictor,
		alerts:    alerts,
		runner:    runner,
		monitor:   mon,
		info:      info,
		log:       log.Named("api"),
	}
}

// Root 服务信息
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":           h.info.Name,
		"version":           h.info.Version,
		"modo_notificacion": h.info.NotificationMode,
		"umbral_riesgo":     h.info.Threshold,
		"endpoints": []string{
			"POST /predict",
			"POST /recordatorios/enviar",
			"GET /recordatorios/alertas",
			"GET /recordatorios/estadisticas",
			"GET /health",
			"GET /metrics",
		},
	})
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	report := h.monitor.Check(ctx)
	code := http.StatusOK
	if report.Status != monitor.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":            report.Status,
		"components":        report.Components,
		"modo_notificacion": h.info.NotificationMode,
		"version":           h.info.Version,
	})
}

// PredictRequest 预测请求，客户字段齐全时才会落库
type PredictRequest struct {
	SaleID     string `json:"venta_id" binding:"required"`
	CustomerID string `json:"cliente_id" binding:"required"`

	ContactEmail string `json:"email_cliente"`
	CustomerName string `json:"nombre_cliente"`
	PackageName  string `json:"nombre_paquete"`
	Destination  string `json:"destino"`
	SaleDate     string `json:"fecha_venta"`

	Amount                *float64 `json:"monto_total" binding:"required,gt=0"`
	HighSeason            *float64 `json:"es_temporada_alta" binding:"required,gte=0,lte=1"`
	BookingWeekday        *float64 `json:"dia_semana_reserva" binding:"required,gte=0,lte=6"`
	CardPayment           *float64 `json:"metodo_pago_tarjeta" binding:"required,gte=0,lte=1"`
	HasPackage            *float64 `json:"tiene_paquete" binding:"required,gte=0,lte=1"`
	DurationDays          *float64 `json:"duracion_dias" binding:"required,gte=1"`
	DestinationCategory   *float64 `json:"destino_categoria" binding:"required,gte=0,lte=2"`
	PriorPurchases        *float64 `json:"total_compras_previas" binding:"required,gte=0"`
	PriorCancellations    *float64 `json:"total_cancelaciones_previas" binding:"required,gte=0"`
	HistoricalCancelRate  *float64 `json:"tasa_cancelacion_historica" binding:"required,gte=0,lte=1"`
	AveragePurchaseAmount *float64 `json:"monto_promedio_compras" binding:"required,gte=0"`

	// 上游已计算的结果
	Probability    *float64 `json:"probabilidad_cancelacion" binding:"omitempty,gte=0,lte=1"`
	Recommendation string   `json:"recomendacion"`
}

// PredictResponse 预测响应
type PredictResponse struct {
	Success        bool                 `json:"success"`
	SaleID         string               `json:"venta_id"`
	CustomerID     string               `json:"cliente_id"`
	Probability    float64              `json:"probabilidad_cancelacion"`
	Recommendation model.Recommendation `json:"recomendacion"`
	RiskFactors    []string             `json:"factores_riesgo"`
	AlertCreated   bool                 `json:"alerta_creada"`
}

var saleDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseSaleDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range saleDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("fecha_venta 格式无效: %q", raw)
}

// 上游可能使用西语标签
var recommendationAliases = map[string]model.Recommendation{
	"sin_accion":          model.RecommendationNoAction,
	"revisar_manual":      model.RecommendationManualReview,
	"enviar_recordatorio": model.RecommendationSendReminder,
}

func parseRecommendation(raw string) model.Recommendation {
	rec := model.Recommendation(strings.TrimSpace(raw))
	if rec.Valid() {
		return rec
	}
	return recommendationAliases[string(rec)]
}

// toEvent 转换为领域事件
func (r *PredictRequest) toEvent() (*model.ScoredEvent, error) {
	saleDate, err := parseSaleDate(r.SaleDate)
	if err != nil {
		return nil, err
	}

	return &model.ScoredEvent{
		SaleID:       strings.TrimSpace(r.SaleID),
		CustomerID:   strings.TrimSpace(r.CustomerID),
		ContactEmail: strings.TrimSpace(r.ContactEmail),
		CustomerName: strings.TrimSpace(r.CustomerName),
		PackageName:  r.PackageName,
		Destination:  r.Destination,
		Amount:       decimal.NewFromFloat(*r.Amount),
		SaleDate:     saleDate,
		Features: model.FeatureSnapshot{
			model.FeatureAmount:                *r.Amount,
			model.FeatureHighSeason:            *r.HighSeason,
			model.FeatureBookingWeekday:        *r.BookingWeekday,
			model.FeatureCardPayment:           *r.CardPayment,
			model.FeatureHasPackage:            *r.HasPackage,
			model.FeatureDurationDays:          *r.DurationDays,
			model.FeatureDestinationCategory:   *r.DestinationCategory,
			model.FeaturePriorPurchases:        *r.PriorPurchases,
			model.FeaturePriorCancellations:    *r.PriorCancellations,
			model.FeatureHistoricalCancelRate:  *r.HistoricalCancelRate,
			model.FeatureAveragePurchaseAmount: *r.AveragePurchaseAmount,
		},
		Probability:    r.Probability,
		Recommendation: parseRecommendation(r.Recommendation),
	}, nil
}

// Predict 评估一笔销售
func (h *Handlers) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "无效的请求参数: " + err.Error(),
		})
		return
	}

	event, err := req.toEvent()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	out, err := h.predictor.Evaluate(c.Request.Context(), event)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, scoring.ErrInvalidFeatures) {
			code = http.StatusUnprocessableEntity
		}
		h.log.Error("预测失败", zap.String("sale_id", event.SaleID), zap.Error(err))
		c.JSON(code, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	factors := out.RiskFactors
	if factors == nil {
		factors = []string{}
	}
	c.JSON(http.StatusOK, PredictResponse{
		Success:        true,
		SaleID:         event.SaleID,
		CustomerID:     event.CustomerID,
		Probability:    out.Probability,
		Recommendation: out.Recommendation,
		RiskFactors:    factors,
		AlertCreated:   out.AlertCreated(),
	})
}
