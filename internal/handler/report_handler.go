package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// PermissionAgentsWrite 探针上报所需的权限
const PermissionAgentsWrite = "agents:write"

// ReportHandler 探针上报处理器
type ReportHandler struct {
	logger  *zap.Logger
	service *service.ReportService
}

func NewReportHandler(logger *zap.Logger, service *service.ReportService) *ReportHandler {
	return &ReportHandler{
		logger:  logger,
		service: service,
	}
}

// Report 探针上报状态与指标
// POST /api/report
func (h *ReportHandler) Report(c echo.Context) error {
	var req service.AgentReport
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "请求参数错误",
		})
	}

	agent, err := h.service.Report(c.Request().Context(), &req)
	if errors.Is(err, errs.ErrInvalidAgent) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}
	if err != nil {
		h.logger.Error("处理探针上报失败", zap.String("uuid", req.Agent.UUID), zap.Error(err))
		return storeError(c, err, "处理上报失败")
	}

	return c.JSON(http.StatusOK, agent)
}

// Disconnect 标记探针离线
// POST /api/agent/:uuid/disconnect
func (h *ReportHandler) Disconnect(c echo.Context) error {
	uuid := c.Param("uuid")

	agent, err := h.service.Disconnect(c.Request().Context(), uuid)
	if errors.Is(err, errs.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Agent not found with uuid %s", uuid),
		})
	}
	if err != nil {
		h.logger.Error("标记探针离线失败", zap.String("uuid", uuid), zap.Error(err))
		return storeError(c, err, "标记探针离线失败")
	}

	return c.JSON(http.StatusOK, agent)
}
