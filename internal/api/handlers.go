package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"legaladvisor/internal/auth"
	"legaladvisor/internal/consultation"
	"legaladvisor/internal/i18n"
	"legaladvisor/internal/logger"
	"legaladvisor/internal/models"
	"legaladvisor/internal/redis"
	"legaladvisor/internal/service/account"
	"legaladvisor/internal/upload"
)

// ConsultationReader is the read side of the consultation store.
type ConsultationReader interface {
	Get(ctx context.Context, id string) (*models.Consultation, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Consultation, error)
}

type Deps struct {
	Accounts      *account.Service
	Auth          *auth.Service
	Workspaces    *consultation.Manager
	Consultations ConsultationReader
	Feedback      *consultation.FeedbackRecorder
	Previews      upload.PreviewStore
	Signer        *upload.URLSigner
	Limiter       *redis.RateLimiter
	Logger        *logger.Logger
	// MaxFileBytes caps a single uploaded file. Zero means 10 MB.
	MaxFileBytes int64
}

// Handler wires HTTP routes to the account service and the consultation workspaces.
type Handler struct {
	accounts      *account.Service
	auth          *auth.Service
	workspaces    *consultation.Manager
	consultations ConsultationReader
	feedback      *consultation.FeedbackRecorder
	previews      upload.PreviewStore
	signer        *upload.URLSigner
	limiter       *redis.RateLimiter
	log           *logger.Logger
	maxFileBytes  int64
}

const defaultMaxFileBytes = 10 << 20 // 10 MB

// NewHandler constructs a Handler instance.
func NewHandler(deps Deps) *Handler {
	maxBytes := deps.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	return &Handler{
		accounts:      deps.Accounts,
		auth:          deps.Auth,
		workspaces:    deps.Workspaces,
		consultations: deps.Consultations,
		feedback:      deps.Feedback,
		previews:      deps.Previews,
		signer:        deps.Signer,
		limiter:       deps.Limiter,
		log:           logger.OrNop(deps.Logger).Named("api"),
		maxFileBytes:  maxBytes,
	}
}

// check token userID is match with param userID
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		paramID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || paramID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if paramID != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
			return
		}
		c.Next()
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)
	api.GET("/previews/:token", h.servePreview)

	authMW := h.auth.Middleware()
	userRoutes := api.Group("/users/:id")
	userRoutes.Use(authMW, h.requirePathUser(), h.auth.CSRFMiddleware())
	userRoutes.POST("/logout", h.logoutUser)
	userRoutes.DELETE("", h.deleteUser)
	userRoutes.GET("/settings", h.getSettings)
	userRoutes.PUT("/settings", h.updateSettings)

	userRoutes.GET("/workspaces", h.listWorkspaces)
	userRoutes.POST("/workspaces", h.openWorkspace)
	ws := userRoutes.Group("/workspaces/:wid")
	ws.GET("", h.getWorkspace)
	ws.DELETE("", h.closeWorkspace)
	ws.PUT("/draft", h.updateDraft)
	ws.GET("/messages", h.listMessages)
	ws.GET("/notifications", h.listNotifications)
	ws.GET("/events", h.streamEvents)
	ws.GET("/files", h.listFiles)
	ws.POST("/files", h.uploadFiles)
	ws.DELETE("/files/:fid", h.removeFile)
	ws.POST("/files/:fid/analysis", h.analyzeFile)
	ws.POST("/submit", h.rateLimit("submit"), h.submit)
	ws.POST("/feedback", h.workspaceFeedback)

	userRoutes.GET("/consultations", h.listConsultations)
	userRoutes.GET("/consultations/:cid", h.getConsultation)
	userRoutes.POST("/consultations/:cid/feedback", h.consultationFeedback)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLocale resolves the locale for this request: the user's saved setting,
// then Accept-Language, then the configured default.
func (h *Handler) requestLocale(c *gin.Context) models.Locale {
	def := h.accounts.Defaults().Locale
	if userID, ok := auth.UserIDFromContext(c); ok && userID > 0 {
		user, err := h.accounts.Get(c.Request.Context(), userID)
		if err == nil && user.Locale.Valid() {
			return user.Locale
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			h.log.Warn("load user locale", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return i18n.Negotiate(c.GetHeader("Accept-Language"), def)
}

// User create&login interface
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Locale   string `json:"locale"`
	Theme    string `json:"theme"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	prefs := models.Settings{Locale: models.Locale(req.Locale), Theme: models.Theme(req.Theme)}
	if !prefs.Locale.Valid() {
		prefs.Locale = h.requestLocale(c)
	}
	user, err := h.accounts.Register(c.Request.Context(), req.Email, req.Password, prefs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"settings":   user.Settings(),
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"settings":   user.Settings(),
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	h.workspaces.CloseUser(c.Request.Context(), userID)
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.workspaces.CloseUser(c.Request.Context(), id)
	if err := h.accounts.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) getSettings(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.accounts.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user.Settings().WithDefaults(h.accounts.Defaults()))
}

// updateSettings changes locale and/or theme. Open workspaces follow the new locale.
func (h *Handler) updateSettings(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Locale string `json:"locale"`
		Theme  string `json:"theme"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.accounts.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	prefs := user.Settings().WithDefaults(h.accounts.Defaults())
	if v := strings.TrimSpace(req.Locale); v != "" {
		prefs.Locale = models.Locale(v)
	}
	if v := strings.TrimSpace(req.Theme); v != "" {
		prefs.Theme = models.Theme(v)
	}
	updated, err := h.accounts.UpdateSettings(c.Request.Context(), userID, prefs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, w := range h.workspaces.List(userID) {
		w.SetLocale(updated.Locale)
	}
	c.JSON(http.StatusOK, updated.Settings())
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
