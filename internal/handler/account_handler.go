package handler

import (
	"net/http"
	"sync"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"` // 毫秒
	Username  string `json:"username"`
	Admin     bool   `json:"admin"`
}

// AccountHandler 账号处理器，用户列表来自配置文件并随配置热更新
type AccountHandler struct {
	logger *zap.Logger
	issuer *TokenIssuer

	mu    sync.RWMutex
	users []config.UserConfig
}

func NewAccountHandler(logger *zap.Logger, issuer *TokenIssuer, users []config.UserConfig) *AccountHandler {
	return &AccountHandler{
		logger: logger,
		issuer: issuer,
		users:  users,
	}
}

// SetUsers 替换可登录的用户
func (h *AccountHandler) SetUsers(users []config.UserConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users = users
}

func (h *AccountHandler) findUser(username string) (config.UserConfig, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cfg := config.AppConfig{Users: h.users}
	return cfg.FindUser(username)
}

// Login 校验用户名密码并签发令牌
// POST /api/login
func (h *AccountHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "请求参数错误",
		})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "用户名和密码不能为空",
		})
	}

	user, ok := h.findUser(req.Username)
	if !ok || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		h.logger.Warn("登录失败", zap.String("username", req.Username), zap.String("ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "用户名或密码错误",
		})
	}

	token, expiresAt, err := h.issuer.Generate(user.Username, user.Admin, user.Permissions)
	if err != nil {
		h.logger.Error("签发令牌失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "登录失败",
		})
	}

	h.logger.Info("用户登录", zap.String("username", user.Username))
	return c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UnixMilli(),
		Username:  user.Username,
		Admin:     user.Admin,
	})
}
