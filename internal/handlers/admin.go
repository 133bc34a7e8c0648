package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/neuroscan/internal/auth"
)

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// approveRequest accepts user_id as a JSON number or a numeric string.
type approveRequest struct {
	UserID json.RawMessage `json:"user_id"`
	Action string          `json:"action"`
}

type adminUser struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
	IsApproved bool      `json:"is_approved"`
}

type feedbackAuthor struct {
	Name string `json:"name"`
}

type adminFeedback struct {
	ID        uint           `json:"id"`
	Rating    int            `json:"rating"`
	Comment   string         `json:"comment"`
	CreatedAt time.Time      `json:"createdAt"`
	User      feedbackAuthor `json:"user"`
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing username or password"})
		return
	}

	token, err := h.auth.AdminLogin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch statusFor(err) {
		case http.StatusBadRequest:
			c.JSON(http.StatusBadRequest, gin.H{"message": "Missing username or password"})
		case http.StatusUnauthorized:
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid admin credentials"})
		default:
			h.logInternal(c, "handlers.admin_login", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "An error occurred during admin login"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Admin login successful",
		"token":      token.Token,
		"expires_at": token.ExpiresAt.UTC(),
	})
}

func (h *Handler) adminLogout(c *gin.Context) {
	claims, ok := auth.AdminClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid token"})
		return
	}
	if err := h.auth.AdminLogout(c.Request.Context(), claims); err != nil {
		h.logInternal(c, "handlers.admin_logout", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error revoking token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.accounts.ListAccounts(c.Request.Context())
	if err != nil {
		h.logInternal(c, "handlers.list_users", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error fetching users"})
		return
	}

	out := make([]adminUser, 0, len(users))
	for _, u := range users {
		out = append(out, adminUser{
			ID:         u.ID,
			Name:       u.Name,
			Email:      u.Email,
			CreatedAt:  u.CreatedAt,
			IsApproved: u.IsApproved,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": out, "user_count": len(out)})
}

func (h *Handler) listFeedback(c *gin.Context) {
	feedback, err := h.accounts.ListFeedback(c.Request.Context())
	if err != nil {
		h.logInternal(c, "handlers.list_feedback", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error fetching feedbacks"})
		return
	}

	out := make([]adminFeedback, 0, len(feedback))
	for _, f := range feedback {
		author := feedbackAuthor{Name: "Anonymous"}
		if f.User != nil {
			author.Name = f.User.Name
		}
		out = append(out, adminFeedback{
			ID:        f.ID,
			Rating:    f.Rating,
			Comment:   f.Comment,
			CreatedAt: f.CreatedAt,
			User:      author,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "feedbacks": out, "feedback_count": len(out)})
}

func (h *Handler) approveUser(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidApproval(c)
		return
	}
	userID, ok := parseUserID(req.UserID)
	verb, known := approvalVerbs[req.Action]
	if !ok || !known {
		invalidApproval(c)
		return
	}

	user, err := h.accounts.SetApproval(c.Request.Context(), userID, req.Action == "approve")
	if err != nil {
		status := statusFor(err)
		switch status {
		case http.StatusNotFound:
			c.JSON(status, gin.H{"success": false, "message": "User not found"})
		case http.StatusBadRequest:
			invalidApproval(c)
		default:
			h.logInternal(c, "handlers.approve_user", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error " + verb.progressive + " user"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "User successfully " + verb.past,
		"user_id":     user.ID,
		"is_approved": user.IsApproved,
	})
}

func (h *Handler) stats(c *gin.Context) {
	summary, err := h.accounts.Stats(c.Request.Context())
	if err != nil {
		h.logInternal(c, "handlers.stats", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error fetching stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": summary})
}

var approvalVerbs = map[string]struct{ past, progressive string }{
	"approve": {"approved", "approving"},
	"reject":  {"rejected", "rejecting"},
}

func invalidApproval(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request parameters"})
}

// parseUserID reads a positive id from a JSON number or numeric string.
func parseUserID(raw json.RawMessage) (uint, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		n = json.Number(s)
	}
	id, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
