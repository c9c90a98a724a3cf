package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"hyodream/api/logging"
	"hyodream/api/middleware"
	"hyodream/api/models"
	"hyodream/api/store"
)

const jwtCookie = "jwt_token"

type UserStore interface {
	CreateUser(ctx context.Context, email string, hashedPassword []byte) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type TokenIssuer interface {
	Generate(user *models.User) (string, error)
	TTL() time.Duration
}

type AuthHandlers struct {
	users  UserStore
	issuer TokenIssuer
}

func NewAuthHandlers(users UserStore, issuer TokenIssuer) *AuthHandlers {
	return &AuthHandlers{users: users, issuer: issuer}
}

func (h *AuthHandlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logging.Error().Err(err).Msg("failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
			return
		}
		logging.Error().Err(err).Msg("failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	logging.Info().Int64("user_id", user.ID).Msg("user registered")
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user_email": user.Email})
}

// Login checks credentials and sets the JWT as an http-only cookie.
// The token is also returned in the body for Bearer clients.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Error().Err(err).Msg("failed to look up user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to authenticate"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := h.issuer.Generate(user)
	if err != nil {
		logging.Error().Err(err).Int64("user_id", user.ID).Msg("failed to generate jwt")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetCookie(jwtCookie, tokenString, int(h.issuer.TTL()/time.Second), "/", "", false, true)

	logging.Info().Int64("user_id", user.ID).Msg("user logged in")
	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"user_email": user.Email,
		"token":      tokenString,
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(jwtCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *AuthHandlers) Me(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	c.JSON(http.StatusOK, gin.H{
		"user_id":    userID,
		"user_email": c.GetString(middleware.CtxUserEmail),
	})
}
