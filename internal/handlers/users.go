package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shopapp/internal/models"
	"github.com/charlesng35/shopapp/internal/services"
	"github.com/charlesng35/shopapp/pkg/errors"
	"github.com/charlesng35/shopapp/pkg/response"
)

// UserHandler exposes account details and the administrator operations on accounts.
type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

type userView struct {
	ID          string     `json:"id"`
	PhoneNumber string     `json:"phone_number"`
	FullName    string     `json:"full_name"`
	Address     string     `json:"address"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	IsActive    bool       `json:"is_active"`
	Role        string     `json:"role"`
}

func newUserView(user *models.User) userView {
	return userView{
		ID:          user.ID,
		PhoneNumber: user.PhoneNumber,
		FullName:    user.FullName,
		Address:     user.Address,
		DateOfBirth: user.DateOfBirth,
		IsActive:    user.IsActive,
		Role:        user.RoleName(),
	}
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	limit := parseIntQuery(c, "limit", 10)

	users, total, err := h.service.List(requestContext(c), services.ListUsersOptions{
		Page:     page,
		PageSize: limit,
		Keyword:  c.Query("keyword"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, newUserView(&users[i]))
	}

	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	response.Success(c, http.StatusOK, gin.H{
		"users":       views,
		"total":       total,
		"total_pages": totalPages,
	})
}

// GET /api/users/details
func (h *UserHandler) Details(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}

	user, err := h.service.GetByID(requestContext(c), principal.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newUserView(user))
}

type updateDetailsRequest struct {
	PhoneNumber *string `json:"phone_number" validate:"omitempty,phone"`
	FullName    *string `json:"full_name" validate:"omitempty,max=100"`
	Address     *string `json:"address" validate:"omitempty,max=200"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Password    *string `json:"password" validate:"omitempty,min=6,max=72"`
}

// PUT /api/users/details/:id
func (h *UserHandler) UpdateDetails(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id != principal.UserID {
		response.Error(c, errors.New(errors.ErrForbidden.Code, "You have no permission", http.StatusForbidden))
		return
	}

	var req updateDetailsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateDetailsInput{
		PhoneNumber: req.PhoneNumber,
		FullName:    req.FullName,
		Address:     req.Address,
		Password:    req.Password,
	}
	if req.DateOfBirth != nil && *req.DateOfBirth != "" {
		parsed, err := time.Parse(birthDateLayout, *req.DateOfBirth)
		if err != nil {
			response.Error(c, errors.NewBadRequest("date of birth must use YYYY-MM-DD"))
			return
		}
		input.DateOfBirth = &parsed
	}

	user, err := h.service.UpdateDetails(requestContext(c), id, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newUserView(user))
}

// PUT /api/users/reset-password/:id
func (h *UserHandler) ResetPassword(c *gin.Context) {
	password, err := h.service.ResetPassword(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"new_password": password})
}

// PUT /api/users/block/:id/:active
func (h *UserHandler) SetActive(c *gin.Context) {
	flag, err := strconv.Atoi(c.Param("active"))
	if err != nil {
		response.Error(c, errors.NewBadRequest("active must be 0 or 1"))
		return
	}
	active := flag > 0

	if _, err := h.service.SetActive(requestContext(c), c.Param("id"), active); err != nil {
		response.Error(c, err)
		return
	}

	message := "Successfully blocked the user."
	if active {
		message = "Successfully enabled the user."
	}
	response.Success(c, http.StatusOK, gin.H{"message": message})
}
