package handler

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const claimsKey = "claims"

// PermissionMetricsRead 查询探针指标类型所需的权限
const PermissionMetricsRead = "metrics:read"

// Claims JWT 载荷
type Claims struct {
	Username    string   `json:"username"`
	Admin       bool     `json:"admin"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// HasPermission 是否拥有指定权限
func (c *Claims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

// TokenIssuer 签发与校验 HS256 令牌
type TokenIssuer struct {
	secret     []byte
	expiration time.Duration
}

func NewTokenIssuer(secret string, expiration time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// Generate 为用户签发令牌，返回令牌与过期时间
func (i *TokenIssuer) Generate(username string, admin bool, permissions []string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.expiration)
	claims := &Claims{
		Username:    username,
		Admin:       admin,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    "beacon",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("签发令牌失败: %w", err)
	}
	return token, expiresAt, nil
}

// Parse 校验令牌并返回载荷
func (i *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Username == "" {
		return nil, errors.New("missing username")
	}
	return claims, nil
}

// Auth 校验 Authorization: Bearer 令牌，WebSocket 连接可以通过 ?token= 传递
func Auth(issuer *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := bearerToken(c)
			if tokenString == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "未登录",
				})
			}

			claims, err := issuer.Parse(tokenString)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "令牌无效或已过期",
				})
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// RequirePermission 要求当前用户拥有指定权限
func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := CurrentClaims(c)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "未登录",
				})
			}
			if !claims.HasPermission(permission) {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "权限不足",
				})
			}
			return next(c)
		}
	}
}

// CurrentClaims 返回 Auth 中间件写入的载荷
func CurrentClaims(c echo.Context) *Claims {
	claims, _ := c.Get(claimsKey).(*Claims)
	return claims
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.QueryParam("token")
}
