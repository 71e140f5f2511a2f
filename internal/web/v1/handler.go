package v1

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/duynhne/onboarding-service/internal/core/domain"
	logicv1 "github.com/duynhne/onboarding-service/internal/logic/v1"
	"github.com/duynhne/onboarding-service/middleware"
)

// OnboardingHandler handles HTTP requests for onboarding sessions
type OnboardingHandler struct {
	service *logicv1.OnboardingService
}

// NewOnboardingHandler creates a new onboarding handler
func NewOnboardingHandler(service *logicv1.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{service: service}
}

// RegisterRoutes mounts the onboarding API. auth resolves the caller's user id.
func (h *OnboardingHandler) RegisterRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	onboarding := api.Group("/onboarding")
	onboarding.Use(auth)
	{
		onboarding.POST("/sessions", h.StartSession)
		onboarding.GET("/sessions/:id", h.GetSession)
		onboarding.PATCH("/sessions/:id/fields", h.UpdateField)
		onboarding.POST("/sessions/:id/tags", h.AddTag)
		onboarding.DELETE("/sessions/:id/tags/:tag", h.RemoveTag)
		onboarding.POST("/sessions/:id/advance", h.Advance)
		onboarding.POST("/sessions/:id/back", h.Back)
		onboarding.POST("/sessions/:id/avatar", h.UploadAvatar)
		onboarding.POST("/sessions/:id/verification", h.SendVerificationCode)
		onboarding.POST("/sessions/:id/verification/confirm", h.VerifyEmail)
		onboarding.GET("/usernames/:name/availability", h.CheckUsername)
	}

	api.GET("/avatars/:ref", h.GetAvatar)
}

// begin opens the request span and resolves the request logger.
func begin(c *gin.Context) (context.Context, trace.Span, *zap.Logger) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("route", c.FullPath()),
	))
	if id := c.Param("id"); id != "" {
		span.SetAttributes(attribute.String("session.id", id))
	}
	return ctx, span, middleware.GetLoggerFromGinContext(c)
}

// owner returns the authenticated user id, writing 401 when there is none.
func owner(c *gin.Context) (string, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return "", false
	}
	return userID, true
}

func bindJSON(c *gin.Context, span trace.Span, logger *zap.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Warn("Invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": sanitizeValidationError(err)})
		return false
	}
	span.SetAttributes(attribute.Bool("request.valid", true))
	return true
}

// StartSession handles POST /api/v1/onboarding/sessions
func (h *OnboardingHandler) StartSession(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	var req startSessionRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, span, logger, &req) {
		return
	}

	view, err := h.service.Start(ctx, userID, domain.FlowName(req.Flow))
	if err != nil {
		writeError(c, span, logger, "Failed to start onboarding", err)
		return
	}

	logger.Info("Onboarding session started",
		zap.String("session_id", view.ID),
		zap.String("flow", string(view.Flow)),
	)
	c.JSON(http.StatusCreated, view)
}

// GetSession handles GET /api/v1/onboarding/sessions/:id
func (h *OnboardingHandler) GetSession(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	view, err := h.service.Get(ctx, userID, c.Param("id"))
	if err != nil {
		writeError(c, span, logger, "Failed to get onboarding session", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateField handles PATCH /api/v1/onboarding/sessions/:id/fields.
// A rejected value is not an error: the response carries applied=false and
// the unchanged session.
func (h *OnboardingHandler) UpdateField(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	var req updateFieldRequest
	if !bindJSON(c, span, logger, &req) {
		return
	}
	span.SetAttributes(attribute.String("field", req.Field))

	view, applied, err := h.service.UpdateField(ctx, userID, c.Param("id"), domain.Field(req.Field), req.Value)
	if err != nil {
		writeError(c, span, logger, "Failed to update field", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "session": view})
}

// AddTag handles POST /api/v1/onboarding/sessions/:id/tags
func (h *OnboardingHandler) AddTag(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	var req addTagRequest
	if !bindJSON(c, span, logger, &req) {
		return
	}

	view, applied, err := h.service.AddTag(ctx, userID, c.Param("id"), req.Tag)
	if err != nil {
		writeError(c, span, logger, "Failed to add tag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "session": view})
}

// RemoveTag handles DELETE /api/v1/onboarding/sessions/:id/tags/:tag
func (h *OnboardingHandler) RemoveTag(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	view, applied, err := h.service.RemoveTag(ctx, userID, c.Param("id"), c.Param("tag"))
	if err != nil {
		writeError(c, span, logger, "Failed to remove tag", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "session": view})
}

// Advance handles POST /api/v1/onboarding/sessions/:id/advance
func (h *OnboardingHandler) Advance(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	var req advanceRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, span, logger, &req) {
		return
	}

	var input logicv1.AdvanceInput
	if req.Credentials != nil {
		input.Credentials = &domain.AccountCredentials{
			Username: req.Credentials.Username,
			Password: req.Credentials.Password,
		}
	}

	view, err := h.service.Advance(ctx, userID, c.Param("id"), input)
	if err != nil {
		writeError(c, span, logger, "Failed to advance onboarding", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Back handles POST /api/v1/onboarding/sessions/:id/back
func (h *OnboardingHandler) Back(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	view, err := h.service.Back(ctx, userID, c.Param("id"))
	if err != nil {
		writeError(c, span, logger, "Failed to go back", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UploadAvatar handles POST /api/v1/onboarding/sessions/:id/avatar (multipart "file")
func (h *OnboardingHandler) UploadAvatar(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	span.SetAttributes(attribute.Int64("upload.size", header.Size))

	file, err := header.Open()
	if err != nil {
		writeError(c, span, logger, "Failed to read upload", err)
		return
	}
	defer file.Close()

	view, err := h.service.UploadAvatar(ctx, userID, c.Param("id"), file)
	if err != nil {
		writeError(c, span, logger, "Failed to upload avatar", err)
		return
	}

	logger.Info("Avatar uploaded", zap.String("session_id", view.ID))
	c.JSON(http.StatusOK, view)
}

// GetAvatar handles GET /api/v1/avatars/:ref
func (h *OnboardingHandler) GetAvatar(c *gin.Context) {
	_, span, logger := begin(c)
	defer span.End()

	path, err := h.service.AvatarPath(c.Param("ref"))
	if err != nil {
		writeError(c, span, logger, "Failed to resolve avatar", err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400, immutable")
	c.File(path)
}

// SendVerificationCode handles POST /api/v1/onboarding/sessions/:id/verification
func (h *OnboardingHandler) SendVerificationCode(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	if err := h.service.SendVerificationCode(ctx, userID, c.Param("id")); err != nil {
		writeError(c, span, logger, "Failed to send verification code", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// VerifyEmail handles POST /api/v1/onboarding/sessions/:id/verification/confirm
func (h *OnboardingHandler) VerifyEmail(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	userID, ok := owner(c)
	if !ok {
		return
	}

	var req verifyEmailRequest
	if !bindJSON(c, span, logger, &req) {
		return
	}

	view, err := h.service.VerifyEmail(ctx, userID, c.Param("id"), req.Code)
	if err != nil {
		writeError(c, span, logger, "Failed to verify email", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CheckUsername handles GET /api/v1/onboarding/usernames/:name/availability
func (h *OnboardingHandler) CheckUsername(c *gin.Context) {
	ctx, span, logger := begin(c)
	defer span.End()

	name := c.Param("name")
	available, err := h.service.CheckUsername(ctx, name)
	if err != nil {
		writeError(c, span, logger, "Failed to check username", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": name, "available": available})
}

// writeError maps service errors to HTTP responses. Unknown errors become 500
// without exposing their message.
func writeError(c *gin.Context, span trace.Span, logger *zap.Logger, msg string, err error) {
	middleware.RecordError(span, err)

	var incomplete *domain.StepIncompleteError
	if errors.As(err, &incomplete) {
		logger.Info(msg, zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":         domain.ErrStepIncomplete.Error(),
			"step":          incomplete.Step,
			"missingFields": incomplete.Missing,
		})
		return
	}

	var cooldown *domain.CooldownError
	if errors.As(err, &cooldown) {
		seconds := int(math.Ceil(cooldown.Remaining.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":             cooldown.Error(),
			"retryAfterSeconds": seconds,
		})
		return
	}

	status, public := http.StatusInternalServerError, "Internal server error"
	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			status, public = m.status, m.err.Error()
			break
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
	} else {
		logger.Info(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": public})
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrSessionNotFound, http.StatusNotFound},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrSessionCompleted, http.StatusConflict},
	{domain.ErrInvalidFlow, http.StatusBadRequest},
	{domain.ErrUsernameTaken, http.StatusConflict},
	{domain.ErrInvalidEmail, http.StatusBadRequest},
	{domain.ErrInvalidCode, http.StatusBadRequest},
	{domain.ErrCodeExpired, http.StatusGone},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests},
	{domain.ErrInvalidImage, http.StatusBadRequest},
	{domain.ErrImageTooLarge, http.StatusRequestEntityTooLarge},
	{domain.ErrAvatarNotFound, http.StatusNotFound},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrAccountAlreadyLinked, http.StatusConflict},
	{domain.ErrLinkingUnavailable, http.StatusServiceUnavailable},
}
