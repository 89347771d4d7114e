package service

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mhilgert/docdepot/internal/depot/biz"
	apperrors "github.com/mhilgert/docdepot/internal/pkg/errors"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/mhilgert/docdepot/internal/pkg/response"
	"go.uber.org/zap"
)

// PublicService exposes the token-facing endpoints. No authentication:
// the token itself is the capability.
type PublicService struct {
	access    *biz.AccessUseCase
	pipeline  *biz.PipelineUseCase
	analytics *biz.AnalyticsUseCase
	logger    *logger.Logger
}

func NewPublicService(
	access *biz.AccessUseCase,
	pipeline *biz.PipelineUseCase,
	analytics *biz.AnalyticsUseCase,
	log *logger.Logger,
) *PublicService {
	return &PublicService{
		access:    access,
		pipeline:  pipeline,
		analytics: analytics,
		logger:    log,
	}
}

// resolve maps the token to its view, writing 404 for unknown tokens
// and 410 for expired ones.
func (s *PublicService) resolve(c *gin.Context) *biz.TokenView {
	view, err := s.access.GetDocumentFromToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		if err == biz.ErrTokenNotFound {
			response.HandleError(c, apperrors.New(apperrors.ErrTokenNotFound))
			return nil
		}
		s.logger.Error("token resolution failed", zap.Error(err))
		response.InternalError(c, "failed to resolve token")
		return nil
	}
	if view.Expired(time.Now().UTC()) {
		response.HandleError(c, apperrors.New(apperrors.ErrTokenExpired))
		return nil
	}
	return view
}

// GetDocument serves the document body and records a download event.
func (s *PublicService) GetDocument(c *gin.Context) {
	view := s.resolve(c)
	if view == nil {
		return
	}

	data, err := s.access.GetDocumentBody(c.Request.Context(), view)
	if err != nil {
		s.logger.Error("document body read failed",
			zap.String("did", view.Document.DID), zap.Error(err))
		response.InternalError(c, "failed to read document")
		return
	}

	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", view.Document.Filename))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// GetInfo returns the token summary: document metadata, access counts
// and the owner's clustered average access latency.
func (s *PublicService) GetInfo(c *gin.Context) {
	view := s.resolve(c)
	if view == nil {
		return
	}
	ctx := c.Request.Context()

	count, err := s.access.GetDownloadEventCount(ctx, view.Token.Token)
	if err != nil {
		s.logger.Error("event count failed", zap.Error(err))
		response.InternalError(c, "failed to load token info")
		return
	}
	first, err := s.access.GetFirstEventDatetime(ctx, view.Token.Token)
	if err != nil {
		s.logger.Error("first event lookup failed", zap.Error(err))
		response.InternalError(c, "failed to load token info")
		return
	}

	info := gin.H{
		"title":           view.Document.Title,
		"filename":        view.Document.Filename,
		"upload_datetime": view.Document.UploadDatetime,
		"valid_until":     view.EffectiveValidUntil,
		"download_count":  count,
	}
	if first != nil {
		info["first_download"] = first
	}
	if span, ok, err := s.analytics.AverageTimeForToken(ctx, view.Token.Token); err == nil && ok {
		info["average_access_time"] = span
	}
	response.Success(c, info)
}

// PostAttachment runs the upload through the validation pipeline. The
// response always carries the full check history.
func (s *PublicService) PostAttachment(c *gin.Context) {
	var (
		filename string
		body     []byte
	)
	if fileHeader, err := c.FormFile("file"); err == nil {
		file, err := fileHeader.Open()
		if err == nil {
			body, _ = io.ReadAll(file)
			file.Close()
			filename = fileHeader.Filename
		}
	}

	result, err := s.pipeline.Deposit(c.Request.Context(), c.Param("token"), filename, body)
	if err != nil {
		s.logger.Error("attachment deposit failed", zap.Error(err))
		response.InternalError(c, "failed to process attachment")
		return
	}
	if !result.Accepted {
		c.JSON(http.StatusUnprocessableEntity, response.Response{
			Code:    apperrors.ErrValidationFailed,
			Message: apperrors.GetMessage(apperrors.ErrValidationFailed),
			Data:    result,
		})
		return
	}
	response.Created(c, result)
}

// Redirect resolves the token's redirect target.
func (s *PublicService) Redirect(c *gin.Context) {
	redirect, err := s.access.GetRedirect(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch err {
		case biz.ErrTokenNotFound:
			response.HandleError(c, apperrors.New(apperrors.ErrTokenNotFound))
		case biz.ErrRedirectNotFound:
			response.HandleError(c, apperrors.New(apperrors.ErrRedirectNotFound))
		default:
			s.logger.Error("redirect resolution failed", zap.Error(err))
			response.InternalError(c, "failed to resolve redirect")
		}
		return
	}
	c.Redirect(http.StatusFound, redirect.URL)
}
