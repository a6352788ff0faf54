package public

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ncecere/speech_analysis/backend/internal/analysis"
	"github.com/ncecere/speech_analysis/backend/internal/app"
	"github.com/ncecere/speech_analysis/backend/internal/httpserver/httputil"
	"github.com/ncecere/speech_analysis/backend/internal/limits"
	"github.com/ncecere/speech_analysis/backend/internal/logging"
	"github.com/ncecere/speech_analysis/backend/internal/models"
)

type analyzeHandler struct {
	container *app.Container
}

func (h *analyzeHandler) analyzeAudio(c *fiber.Ctx) error {
	logger := logging.OrNop(h.container.Logger).With(zap.String("request_id", requestID(c)))

	fh, err := c.FormFile("audio")
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "Audio file is required")
	}
	contentType := fh.Header.Get("Content-Type")
	if err := analysis.ValidateClip(contentType, int(fh.Size), h.container.Analyzer.MaxBytes()); err != nil {
		return httputil.WriteError(c, analysis.StatusCode(err), analysis.Message(err))
	}

	ctx := c.UserContext()
	release, err := h.container.AcquireRateLimits(ctx, c.IP(), int(fh.Size))
	if err != nil {
		if errors.Is(err, limits.ErrLimitExceeded) {
			return httputil.WriteError(c, fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		logger.Error("rate limiter unavailable", zap.Error(err))
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}
	defer release()

	src, err := fh.Open()
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "failed to open file")
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "failed to read file")
	}
	h.container.Observability.RecordUpload(len(data))

	clip := models.AudioClip{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: contentType,
	}
	target := strings.TrimSpace(c.FormValue("target_language"))

	logger.Info("analyzing audio",
		zap.String("file", clip.Filename),
		zap.String("content_type", clip.ContentType),
		zap.Int("size", clip.Size()),
		zap.String("target_language", target),
	)
	result, err := h.container.Analyzer.Analyze(ctx, clip, target)
	if err != nil {
		status := analysis.StatusCode(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("audio analysis failed", zap.Error(err))
		} else {
			logger.Info("audio analysis rejected", zap.Error(err))
		}
		return httputil.WriteError(c, status, analysis.Message(err))
	}
	logger.Info("audio analysis complete", zap.String("path", string(result.Path)))
	return c.JSON(result)
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
