package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/neuroscan/internal/auth"
	"github.com/example/neuroscan/internal/domain"
	"github.com/example/neuroscan/internal/repository"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type userSummary struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsApproved bool   `json:"is_approved"`
}

func summarizeUser(u *repository.User) userSummary {
	return userSummary{ID: u.ID, Name: u.Name, Email: u.Email, IsApproved: u.IsApproved}
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing email or password"})
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch statusFor(err) {
		case http.StatusBadRequest:
			c.JSON(http.StatusBadRequest, gin.H{"message": "Missing email or password"})
		case http.StatusUnauthorized:
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		default:
			h.logInternal(c, "handlers.login", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "An error occurred during login"})
		}
		return
	}

	h.setSessionCookie(c, result.SessionID, h.auth.SessionTTL())
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    summarizeUser(result.User),
	})
}

func (h *Handler) logout(c *gin.Context) {
	if id, ok := auth.SessionID(c); ok {
		if err := h.auth.Logout(c.Request.Context(), id); err != nil {
			h.logInternal(c, "handlers.logout", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "An error occurred during logout"})
			return
		}
	}
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

func (h *Handler) me(c *gin.Context) {
	principal := auth.PrincipalFrom(c.Request.Context())
	user, err := h.accounts.GetUser(c.Request.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		h.logInternal(c, "handlers.me", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": summarizeUser(user)})
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing required fields"})
		return
	}

	if _, err := h.accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password); err != nil {
		h.logInternal(c, "handlers.register", err)
		c.JSON(statusFor(err), gin.H{"message": messageFor(err, "An error occurred during registration")})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful"})
}

func (h *Handler) submitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid feedback"})
		return
	}

	var userID *uint
	if p := auth.PrincipalFrom(c.Request.Context()); p.IsUser() {
		id := p.UserID
		userID = &id
	}
	fb, err := h.accounts.SubmitFeedback(c.Request.Context(), userID, req.Rating, req.Comment)
	if err != nil {
		h.logInternal(c, "handlers.feedback", err)
		c.JSON(statusFor(err), gin.H{"message": messageFor(err, "An error occurred while saving feedback")})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Feedback submitted", "id": fb.ID})
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, ttl time.Duration) {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.SessionCookie, value, maxAge, "/", "", h.cfg.SecureCookies, true)
}
