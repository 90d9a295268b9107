package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/shopapp/internal/auth"
	apperrors "github.com/charlesng35/shopapp/pkg/errors"
	"github.com/charlesng35/shopapp/pkg/response"
)

const (
	CtxUserIDKey = "userID"
	CtxRoleKey   = "userRole"
	CtxBearerKey = "bearerToken"
)

// Auth enforces bearer authentication. The decoded principal is stored in the
// request context and mirrored into gin keys; no session lookup happens here.
func Auth(codec *iauth.TokenCodec) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, apperrors.ErrUnauthorized)
			return
		}

		subject, err := codec.Decode(token)
		if err != nil {
			if errors.Is(err, iauth.ErrTokenExpired) {
				unauthorized(c, apperrors.ErrTokenExpired)
				return
			}
			// malformed and forged bearers are indistinguishable to the client
			unauthorized(c, apperrors.ErrUnauthorized)
			return
		}

		principal := iauth.Principal{UserID: subject.ID, Role: subject.Role}
		c.Request = c.Request.WithContext(iauth.WithPrincipal(c.Request.Context(), principal))
		c.Set(CtxUserIDKey, principal.UserID)
		c.Set(CtxRoleKey, principal.Role)
		c.Set(CtxBearerKey, token)

		c.Next()
	}
}

// RequireRole lets the request through only when the authenticated principal
// holds one of roles. It must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := iauth.PrincipalFrom(c.Request.Context())
		if !ok {
			unauthorized(c, apperrors.ErrUnauthorized)
			return
		}
		if !principal.HasRole(roles...) {
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func unauthorized(c *gin.Context, err *apperrors.AppError) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, err)
	c.Abort()
}
