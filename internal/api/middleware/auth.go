package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/live-commerce/pkg/response"
)

// 角色
const (
	RoleAdmin     = "ADMIN"
	RolePartner   = "PARTNER"
	RoleModerator = "MODERATOR"
	RoleUser      = "USER"
)

const claimsKey = "claims"

// Claims 由账号服务签发，这里只做校验
type Claims struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	PartnerID string `json:"partnerId,omitempty"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken 校验 HS256 签名与有效期
func ParseToken(secret, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// tokenFromRequest 依次查找 ?token=、Authorization: Bearer、cookie
func tokenFromRequest(c *gin.Context, cookieName string) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookieName != "" {
		if t, err := c.Cookie(cookieName); err == nil {
			return t
		}
	}
	return ""
}

// Auth 校验 token，传入 roles 时要求角色匹配其一
func Auth(secret, cookieName string, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFromRequest(c, cookieName)
		if tokenStr == "" {
			response.Unauthorized(c, "missing token")
			return
		}
		claims, err := ParseToken(secret, tokenStr)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			response.Forbidden(c, "forbidden")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func hasRole(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// CurrentClaims 取出 Auth 写入的身份，未认证时返回 nil
func CurrentClaims(c *gin.Context) *Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}
