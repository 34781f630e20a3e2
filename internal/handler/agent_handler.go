package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/models"
	"github.com/dushixiang/beacon/internal/repo"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AgentHandler 探针查询处理器
type AgentHandler struct {
	logger *zap.Logger
	agents repo.AgentRepository
}

func NewAgentHandler(logger *zap.Logger, agents repo.AgentRepository) *AgentHandler {
	return &AgentHandler{
		logger: logger,
		agents: agents,
	}
}

// List 管理员返回所有在线探针，普通用户只返回自己的在线探针
// GET /api/agents
func (h *AgentHandler) List(c echo.Context) error {
	claims := CurrentClaims(c)
	if claims == nil || claims.Username == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "未登录",
		})
	}

	var (
		agents []models.Agent
		err    error
	)
	ctx := c.Request().Context()
	if claims.Admin {
		agents, err = h.agents.FindConnected(ctx)
	} else {
		agents, err = h.agents.FindByUsername(ctx, claims.Username)
	}
	if err != nil {
		h.logger.Error("查询探针失败", zap.String("username", claims.Username), zap.Error(err))
		return storeError(c, err, "查询探针失败")
	}

	return c.JSON(http.StatusOK, agents)
}

// Get 根据 uuid 查询探针
// GET /api/agent/:uuid
func (h *AgentHandler) Get(c echo.Context) error {
	uuid := c.Param("uuid")
	if uuid == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "探针 uuid 不能为空",
		})
	}

	agent, err := h.agents.FindByUuid(c.Request().Context(), uuid)
	if errors.Is(err, errs.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("Agent not found with uuid %s", uuid),
		})
	}
	if err != nil {
		h.logger.Error("查询探针失败", zap.String("uuid", uuid), zap.Error(err))
		return storeError(c, err, "查询探针失败")
	}

	return c.JSON(http.StatusOK, agent)
}

// storeError 存储超时返回 503，其他错误返回 500
func storeError(c echo.Context, err error, message string) error {
	if errors.Is(err, errs.ErrStoreTimeout) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "数据库繁忙，请稍后重试",
		})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": message,
	})
}
