package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/shopapp/internal/auth"
	"github.com/charlesng35/shopapp/internal/models"
	"github.com/charlesng35/shopapp/internal/services"
	"github.com/charlesng35/shopapp/pkg/errors"
	"github.com/charlesng35/shopapp/pkg/logger"
	"github.com/charlesng35/shopapp/pkg/response"
)

const birthDateLayout = "2006-01-02"

// AuthHandler manages registration and the session lifecycle (login/refresh/logout).
type AuthHandler struct {
	users    *services.UserService
	sessions *iauth.SessionManager
}

func NewAuthHandler(users *services.UserService, sessions *iauth.SessionManager) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions}
}

type registerRequest struct {
	PhoneNumber    string `json:"phone_number" validate:"required,phone"`
	Password       string `json:"password" validate:"required,min=6,max=72"`
	RetypePassword string `json:"retype_password" validate:"required,eqfield=Password"`
	FullName       string `json:"full_name" validate:"max=100"`
	Address        string `json:"address" validate:"max=200"`
	DateOfBirth    string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Role           string `json:"role" validate:"omitempty,oneof=user admin"`
}

type loginRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	Password    string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type loginResponse struct {
	Message      string `json:"message"`
	Token        string `json:"token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ID           string `json:"id"`
	PhoneNumber  string `json:"phone_number"`
	Role         string `json:"role"`
}

func newLoginResponse(message string, session *models.Session, user *models.User) loginResponse {
	return loginResponse{
		Message:      message,
		Token:        session.AccessToken,
		TokenType:    session.TokenType,
		RefreshToken: session.RefreshToken,
		ID:           user.ID,
		PhoneNumber:  user.PhoneNumber,
		Role:         user.RoleName(),
	}
}

// POST /api/users/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	var dob *time.Time
	if req.DateOfBirth != "" {
		parsed, err := time.Parse(birthDateLayout, req.DateOfBirth)
		if err != nil {
			response.Error(c, errors.NewBadRequest("date of birth must use YYYY-MM-DD"))
			return
		}
		dob = &parsed
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		FullName:    req.FullName,
		Address:     req.Address,
		DateOfBirth: dob,
		Role:        req.Role,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"message": "Register successfully",
		"user":    user,
	})
}

// POST /api/users/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.users.Authenticate(ctx, strings.TrimSpace(req.PhoneNumber), req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	device := models.ClassifyDevice(c.Request.UserAgent())
	session, err := h.sessions.Open(ctx, iauth.Subject{ID: user.ID, Role: user.RoleName()}, device)
	if err != nil {
		logger.WithModule("auth").Error("failed to open session", zap.String("user_id", user.ID), zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, newLoginResponse("Login successfully", session, user))
}

// POST /api/users/refresh-token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	session, err := h.sessions.Rotate(ctx, req.RefreshToken)
	switch {
	case stderrors.Is(err, iauth.ErrSessionNotFound):
		response.Error(c, errors.ErrRefreshNotFound)
		return
	case stderrors.Is(err, iauth.ErrRotationExpired):
		response.Error(c, errors.ErrRefreshExpired)
		return
	case err != nil:
		logger.WithModule("auth").Error("failed to rotate session", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	user, err := h.users.GetByID(ctx, session.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newLoginResponse("Refresh token successfully", session, user))
}

// POST /api/users/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}

	err := h.sessions.Revoke(requestContext(c), principal.UserID, currentBearer(c))
	if err != nil && !stderrors.Is(err, iauth.ErrSessionNotFound) {
		logger.WithModule("auth").Error("failed to revoke session", zap.String("user_id", principal.UserID), zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	// a bearer whose session was already evicted or rotated logs out cleanly
	response.Success(c, http.StatusOK, gin.H{"revoked": err == nil})
}

type sessionView struct {
	ID               uint64    `json:"id"`
	DeviceClass      string    `json:"device_class"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	Current          bool      `json:"current"`
}

// GET /api/users/sessions
func (h *AuthHandler) Sessions(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}

	sessions, err := h.sessions.Sessions(requestContext(c), principal.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	bearer := currentBearer(c)
	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionView{
			ID:               session.ID,
			DeviceClass:      string(session.DeviceClass),
			AccessExpiresAt:  session.AccessExpiresAt,
			RefreshExpiresAt: session.RefreshExpiresAt,
			CreatedAt:        session.CreatedAt,
			Current:          bearer != "" && session.AccessToken == bearer,
		})
	}

	response.Success(c, http.StatusOK, views)
}
