package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dushixiang/beacon/internal/repo"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MetricType 指标类型
type MetricType struct {
	Type string `json:"type"`
}

// MetricHandler 指标查询处理器
type MetricHandler struct {
	logger  *zap.Logger
	metrics repo.MetricRepository
}

func NewMetricHandler(logger *zap.Logger, metrics repo.MetricRepository) *MetricHandler {
	return &MetricHandler{
		logger:  logger,
		metrics: metrics,
	}
}

// ListTypes 查询探针上报过的指标类型
// GET /api/metrics/:uuid
func (h *MetricHandler) ListTypes(c echo.Context) error {
	uuid := c.Param("uuid")

	types, err := h.metrics.FindByAgentUuid(c.Request().Context(), uuid)
	if err != nil {
		h.logger.Error("查询指标类型失败", zap.String("uuid", uuid), zap.Error(err))
		return storeError(c, err, "查询指标类型失败")
	}
	if len(types) == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Metric not found for agent with uuid %s", uuid),
		})
	}

	items := make([]MetricType, 0, len(types))
	for _, t := range types {
		items = append(items, MetricType{Type: t})
	}
	return c.JSON(http.StatusOK, items)
}

// ListByType 按创建时间倒序查询探针某类指标，可选 ?limit=
// GET /api/metrics/:uuid/:type
func (h *MetricHandler) ListByType(c echo.Context) error {
	uuid := c.Param("uuid")
	metricType := c.Param("type")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "limit 参数错误",
			})
		}
		limit = n
	}

	metrics, err := h.metrics.FindByTypeAgentUuidLimit(c.Request().Context(), metricType, uuid, limit)
	if err != nil {
		h.logger.Error("查询指标失败",
			zap.String("uuid", uuid),
			zap.String("type", metricType),
			zap.Error(err))
		return storeError(c, err, "查询指标失败")
	}
	if len(metrics) == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Metric (%s) not found for agent with uuid %s", metricType, uuid),
		})
	}

	return c.JSON(http.StatusOK, metrics)
}
