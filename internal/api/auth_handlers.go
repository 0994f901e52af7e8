package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nvrd/internal/apperr"
	"nvrd/internal/auth"
	"nvrd/internal/store"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type userResponse struct {
	ID          uint      `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u store.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, CreatedAt: u.CreatedAt}
}

// Register handles POST /register: {email, password} -> 201 + user.
func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(err.Error()))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, apperr.Fatal("hash password", err))
		return
	}

	user := store.User{
		Email:           req.Email,
		Password:        hash,
		DisplayName:     req.Email,
		TokensValidFrom: time.Now(),
	}
	if err := s.repo.DB().Create(&user).Error; err != nil {
		respondError(c, apperr.Conflict("an account with that email already exists"))
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Token handles POST /token: form username/password -> {access_token, refresh_token}.
func (s *Server) Token(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	var user store.User
	if err := s.repo.DB().Where("email = ?", username).First(&user).Error; err != nil {
		respondError(c, apperr.Auth("invalid credentials"))
		return
	}
	if !auth.VerifyPassword(user.Password, password) {
		respondError(c, apperr.Auth("invalid credentials"))
		return
	}

	s.issueTokenPair(c, user)
}

// RefreshToken handles POST /token/refresh: bearer refresh -> rotated tokens.
func (s *Server) RefreshToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenString := ""
	if len(header) > 7 && header[:7] == "Bearer " {
		tokenString = header[7:]
	}
	if tokenString == "" {
		respondError(c, apperr.Auth("refresh token required"))
		return
	}

	claims, err := s.issuer.Parse(tokenString)
	if err != nil || claims.Type != "refresh" {
		respondError(c, apperr.Auth("invalid refresh token"))
		return
	}

	valid, sess, err := s.repo.SessionValid(claims.ID, time.Now())
	if err != nil {
		respondError(c, apperr.Fatal("load session", err))
		return
	}
	if !valid {
		respondError(c, apperr.Auth("refresh token no longer valid"))
		return
	}

	var user store.User
	if err := s.repo.DB().First(&user, sess.UserID).Error; err != nil {
		respondError(c, apperr.Auth("invalid refresh token"))
		return
	}

	// Rotate: revoke the used refresh session and mint a fresh pair.
	s.repo.DB().Model(&store.Session{}).Where("jti = ?", claims.ID).Update("revoked", true)
	s.issueTokenPair(c, user)
}

func (s *Server) issueTokenPair(c *gin.Context, user store.User) {
	access, err := s.issuer.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		respondError(c, apperr.Fatal("issue access token", err))
		return
	}
	refresh, err := s.issuer.IssueRefreshToken(user.ID, user.Email)
	if err != nil {
		respondError(c, apperr.Fatal("issue refresh token", err))
		return
	}

	sess := store.Session{
		JTI:       refresh.JTI,
		UserID:    user.ID,
		CreatedAt: time.Now(),
		ExpiresAt: refresh.ExpiresAt,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if err := s.repo.DB().Create(&sess).Error; err != nil {
		respondError(c, apperr.Fatal("create session", err))
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh.Signed,
		TokenType:    "bearer",
	})
}

// Me handles GET /users/me.
func (s *Server) Me(c *gin.Context) {
	var user store.User
	if err := s.repo.DB().First(&user, currentUserID(c)).Error; err != nil {
		respondError(c, apperr.Ownership("user not found"))
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

type updateMeRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// UpdateMe handles PUT /api/users/me: {display_name} -> user.
func (s *Server) UpdateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(err.Error()))
		return
	}

	var user store.User
	if err := s.repo.DB().First(&user, currentUserID(c)).Error; err != nil {
		respondError(c, apperr.Ownership("user not found"))
		return
	}
	user.DisplayName = req.DisplayName
	s.repo.DB().Save(&user)
	c.JSON(http.StatusOK, toUserResponse(user))
}

type changePasswordRequest struct {
	Current string `json:"current" binding:"required"`
	New     string `json:"new" binding:"required,min=8"`
}

// ChangePassword handles POST /api/users/change-password: invalidates all
// sessions on success (spec.md §6 "204 + session invalidation").
func (s *Server) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(err.Error()))
		return
	}

	var user store.User
	if err := s.repo.DB().First(&user, currentUserID(c)).Error; err != nil {
		respondError(c, apperr.Ownership("user not found"))
		return
	}
	if !auth.VerifyPassword(user.Password, req.Current) {
		respondError(c, apperr.Auth("current password is incorrect"))
		return
	}

	hash, err := auth.HashPassword(req.New)
	if err != nil {
		respondError(c, apperr.Fatal("hash password", err))
		return
	}
	now := time.Now()
	s.repo.DB().Model(&user).Updates(map[string]interface{}{
		"password":          hash,
		"tokens_valid_from": now,
	})
	s.repo.DB().Model(&store.Session{}).Where("user_id = ?", user.ID).Update("revoked", true)

	c.Status(http.StatusNoContent)
}

// LogoutAll handles POST /api/users/logout-all: bumps tokens_valid_from.
func (s *Server) LogoutAll(c *gin.Context) {
	if err := s.repo.BumpTokensValidFrom(currentUserID(c), time.Now()); err != nil {
		respondError(c, apperr.Fatal("bump tokens_valid_from", err))
		return
	}
	s.repo.DB().Model(&store.Session{}).Where("user_id = ?", currentUserID(c)).Update("revoked", true)
	c.Status(http.StatusNoContent)
}
