package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kioskwatch/backend/internal/auth"
	"github.com/kioskwatch/backend/internal/models"
	"github.com/kioskwatch/backend/internal/repository"
)

type AuthHandler struct {
	operatorRepo *repository.OperatorRepository
	jwtService   *auth.JWTService
}

func NewAuthHandler(operatorRepo *repository.OperatorRepository, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		operatorRepo: operatorRepo,
		jwtService:   jwtService,
	}
}

// Login verifies an operator and mints the client identity token carried on
// signaling connections and API calls
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	operator, err := h.operatorRepo.GetByClientID(req.ClientID)
	if err != nil {
		ErrorResponse(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := auth.CheckPassword(operator.PasswordHash, req.Password); err != nil {
		ErrorResponse(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.jwtService.GenerateClientToken(operator.ClientID, operator.Role)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Token:    token,
		ClientID: operator.ClientID,
		Role:     operator.Role,
	})
}

// CreateOperator provisions a new kiosk or monitor identity
func (h *AuthHandler) CreateOperator(c *gin.Context) {
	var req models.CreateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	operator := &models.Operator{
		ID:           uuid.New(),
		ClientID:     req.ClientID,
		Role:         req.Role,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := operator.Validate(); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.operatorRepo.Create(operator); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Failed to create operator")
		return
	}

	c.JSON(http.StatusCreated, operator)
}

// GetMe returns the identity bound to the request token
func (h *AuthHandler) GetMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"clientId": c.GetString("client_id"),
		"role":     c.GetString("role"),
	})
}
