package service

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mhilgert/docdepot/internal/depot/biz"
	apperrors "github.com/mhilgert/docdepot/internal/pkg/errors"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/mhilgert/docdepot/internal/pkg/response"
	"go.uber.org/zap"
)

// Version is stamped at build time.
var Version = "dev"

// AdminService exposes the management API. Every route sits behind the
// shared-secret middleware.
type AdminService struct {
	lifecycle *biz.LifecycleUseCase
	access    *biz.AccessUseCase
	analytics *biz.AnalyticsUseCase
	users     biz.UserRepo
	docs      biz.DocumentRepo
	events    biz.EventRepo
	redirects biz.RedirectRepo
	logger    *logger.Logger
}

func NewAdminService(
	lifecycle *biz.LifecycleUseCase,
	access *biz.AccessUseCase,
	analytics *biz.AnalyticsUseCase,
	users biz.UserRepo,
	docs biz.DocumentRepo,
	events biz.EventRepo,
	redirects biz.RedirectRepo,
	log *logger.Logger,
) *AdminService {
	return &AdminService{
		lifecycle: lifecycle,
		access:    access,
		analytics: analytics,
		users:     users,
		docs:      docs,
		events:    events,
		redirects: redirects,
		logger:    log,
	}
}

type DocumentResponse struct {
	DID                string     `json:"did"`
	Title              string     `json:"title"`
	Filename           string     `json:"filename"`
	Checksum           string     `json:"checksum"`
	UploadDatetime     time.Time  `json:"upload_datetime"`
	ValidUntil         time.Time  `json:"valid_until"`
	UserUID            string     `json:"user_uid"`
	AllowAttachment    bool       `json:"allow_attachment"`
	AttachmentDeadline *time.Time `json:"attachment_deadline,omitempty"`
}

func toDocumentResponse(doc *biz.Document) DocumentResponse {
	return DocumentResponse{
		DID:                doc.DID,
		Title:              doc.Title,
		Filename:           doc.Filename,
		Checksum:           doc.Checksum,
		UploadDatetime:     doc.UploadDatetime,
		ValidUntil:         doc.ValidUntil,
		UserUID:            doc.UserUID,
		AllowAttachment:    doc.AllowAttachment,
		AttachmentDeadline: doc.AttachmentDeadline,
	}
}

// AddDocument accepts a multipart deposit: title, user_uid, optional
// checksum and valid_until, plus the file part.
func (s *AdminService) AddDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file part is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "unreadable file part")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		response.InternalError(c, "failed to read upload")
		return
	}

	in := biz.AddDocumentInput{
		UID:              c.PostForm("user_uid"),
		Title:            c.PostForm("title"),
		Filename:         c.DefaultPostForm("filename", fileHeader.Filename),
		Body:             body,
		DeclaredChecksum: c.PostForm("checksum"),
		AllowAttachment:  c.DefaultPostForm("allow_attachment", "true") == "true",
	}
	if raw := c.PostForm("valid_until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, "valid_until must be RFC 3339")
			return
		}
		in.ValidUntil = &t
	}

	doc, err := s.lifecycle.AddDocument(c.Request.Context(), in)
	if err != nil {
		switch err {
		case biz.ErrChecksumMismatch:
			response.HandleError(c, apperrors.New(apperrors.ErrChecksumMismatch))
		case biz.ErrDuplicateContent:
			response.HandleError(c, apperrors.New(apperrors.ErrDuplicateContent))
		default:
			s.logger.Error("add document failed", zap.Error(err))
			response.InternalError(c, "failed to add document")
		}
		return
	}
	// The first token is issued with the deposit so the caller can hand
	// out a working link right away.
	token, err := s.lifecycle.AddToken(c.Request.Context(), doc.DID)
	if err != nil {
		s.logger.Error("initial token failed", zap.String("did", doc.DID), zap.Error(err))
		response.InternalError(c, "failed to issue token")
		return
	}

	response.Created(c, gin.H{
		"did":      doc.DID,
		"token":    token.Token,
		"document": toDocumentResponse(doc),
	})
}

type GenerateTokenRequest struct {
	DID string `json:"did" binding:"required"`
}

func (s *AdminService) GenerateToken(c *gin.Context) {
	var req GenerateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	token, err := s.lifecycle.AddToken(c.Request.Context(), req.DID)
	if err != nil {
		if err == biz.ErrDocumentNotFound {
			response.HandleError(c, apperrors.New(apperrors.ErrDocumentNotFound))
			return
		}
		s.logger.Error("generate token failed", zap.Error(err))
		response.InternalError(c, "failed to generate token")
		return
	}
	response.Created(c, gin.H{
		"token":       token.Token,
		"did":         token.DID,
		"valid_until": token.ValidUntil,
	})
}

type DeleteDocumentRequest struct {
	DID string `json:"did" binding:"required"`
}

func (s *AdminService) DeleteDocument(c *gin.Context) {
	var req DeleteDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.lifecycle.DeleteDocument(c.Request.Context(), req.DID); err != nil {
		s.logger.Error("delete document failed", zap.Error(err))
		response.InternalError(c, "failed to delete document")
		return
	}
	response.Success(c, gin.H{"did": req.DID})
}

type DeleteTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *AdminService) DeleteToken(c *gin.Context) {
	var req DeleteTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.lifecycle.DeleteToken(c.Request.Context(), req.Token); err != nil {
		s.logger.Error("delete token failed", zap.Error(err))
		response.InternalError(c, "failed to delete token")
		return
	}
	response.Success(c, gin.H{"token": req.Token})
}

type DeleteUserRequest struct {
	UID string `json:"uid" binding:"required"`
}

func (s *AdminService) DeleteUser(c *gin.Context) {
	var req DeleteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.lifecycle.DeleteUser(c.Request.Context(), req.UID); err != nil {
		s.logger.Error("delete user failed", zap.Error(err))
		response.InternalError(c, "failed to delete user")
		return
	}
	response.Success(c, gin.H{"uid": req.UID})
}

type UpdateTokenValidUntilRequest struct {
	Token      string    `json:"token" binding:"required"`
	ValidUntil time.Time `json:"valid_until" binding:"required"`
}

func (s *AdminService) UpdateTokenValidUntil(c *gin.Context) {
	var req UpdateTokenValidUntilRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.lifecycle.UpdateTokenValidUntil(c.Request.Context(), req.Token, req.ValidUntil); err != nil {
		if err == biz.ErrTokenNotFound {
			response.HandleError(c, apperrors.New(apperrors.ErrTokenNotFound))
			return
		}
		s.logger.Error("update token validity failed", zap.Error(err))
		response.InternalError(c, "failed to update token")
		return
	}
	response.Success(c, gin.H{"token": req.Token, "valid_until": req.ValidUntil})
}

type UpdateUserExpiryRequest struct {
	UID        string    `json:"uid" binding:"required"`
	ValidUntil time.Time `json:"valid_until" binding:"required"`
}

func (s *AdminService) UpdateUserExpiryDate(c *gin.Context) {
	var req UpdateUserExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.lifecycle.UpdateUserValidUntil(c.Request.Context(), req.UID, req.ValidUntil); err != nil {
		if err == biz.ErrUserNotFound {
			response.HandleError(c, apperrors.New(apperrors.ErrUserNotFound))
			return
		}
		s.logger.Error("update user expiry failed", zap.Error(err))
		response.InternalError(c, "failed to update user")
		return
	}
	response.Success(c, gin.H{"uid": req.UID, "valid_until": req.ValidUntil})
}

type SetAllUsersExpiryRequest struct {
	ValidUntil time.Time `json:"valid_until" binding:"required"`
}

func (s *AdminService) SetAllUsersExpiryDate(c *gin.Context) {
	var req SetAllUsersExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.lifecycle.SetAllUsersValidUntil(c.Request.Context(), req.ValidUntil); err != nil {
		s.logger.Error("set all users expiry failed", zap.Error(err))
		response.InternalError(c, "failed to update users")
		return
	}
	response.Success(c, gin.H{"valid_until": req.ValidUntil})
}

type RenameUsersRequest struct {
	Mapping map[string]string `json:"mapping" binding:"required"`
}

func (s *AdminService) RenameUsers(c *gin.Context) {
	var req RenameUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.lifecycle.RenameUsers(c.Request.Context(), req.Mapping); err != nil {
		s.logger.Error("rename users failed", zap.Error(err))
		response.InternalError(c, "failed to rename users")
		return
	}
	response.Success(c, gin.H{"renamed": len(req.Mapping)})
}

type CheckTokenValidityRequest struct {
	Tokens []string `json:"tokens" binding:"required"`
}

func (s *AdminService) CheckTokenValidity(c *gin.Context) {
	var req CheckTokenValidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	valid, err := s.access.AreTokensValid(c.Request.Context(), req.Tokens)
	if err != nil {
		s.logger.Error("token validity check failed", zap.Error(err))
		response.InternalError(c, "failed to check tokens")
		return
	}
	response.Success(c, gin.H{"valid": valid})
}

func (s *AdminService) AverageTimeForAllUsers(c *gin.Context) {
	averages, err := s.analytics.AverageTimeForAllUsers(c.Request.Context())
	if err != nil {
		s.logger.Error("analytics failed", zap.Error(err))
		response.InternalError(c, "failed to compute averages")
		return
	}
	response.Success(c, averages)
}

func (s *AdminService) GetEvents(c *gin.Context) {
	events, err := s.events.List(c.Request.Context())
	if err != nil {
		s.logger.Error("list events failed", zap.Error(err))
		response.InternalError(c, "failed to list events")
		return
	}
	out := make([]gin.H, len(events))
	for i, e := range events {
		out[i] = gin.H{"eid": e.EID, "tid": e.TID, "date": e.Date, "event": e.Kind}
	}
	response.Success(c, out)
}

func (s *AdminService) GetDocuments(c *gin.Context) {
	docs, err := s.docs.List(c.Request.Context())
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		response.InternalError(c, "failed to list documents")
		return
	}
	out := make([]DocumentResponse, len(docs))
	for i, doc := range docs {
		out[i] = toDocumentResponse(doc)
	}
	response.Success(c, out)
}

func (s *AdminService) GetUsers(c *gin.Context) {
	users, err := s.users.List(c.Request.Context())
	if err != nil {
		s.logger.Error("list users failed", zap.Error(err))
		response.InternalError(c, "failed to list users")
		return
	}
	out := make([]gin.H, len(users))
	for i, u := range users {
		out[i] = gin.H{"uid": u.UID, "valid_until": u.ValidUntil}
	}
	response.Success(c, out)
}

type AddRedirectRequest struct {
	UID         string    `json:"uid"`
	DID         string    `json:"did"`
	URL         string    `json:"url" binding:"required"`
	Description string    `json:"description"`
	ValidUntil  time.Time `json:"valid_until" binding:"required"`
}

func (s *AdminService) AddRedirect(c *gin.Context) {
	var req AddRedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	redirect := &biz.Redirect{
		UID:         req.UID,
		DID:         req.DID,
		URL:         req.URL,
		Description: req.Description,
		ValidUntil:  req.ValidUntil,
	}
	if err := s.redirects.Create(c.Request.Context(), redirect); err != nil {
		if err == biz.ErrInvalidRedirect {
			response.BadRequest(c, err.Error())
			return
		}
		s.logger.Error("add redirect failed", zap.Error(err))
		response.InternalError(c, "failed to add redirect")
		return
	}
	response.Created(c, gin.H{"rid": redirect.RID})
}

type DeleteRedirectRequest struct {
	RID string `json:"rid" binding:"required"`
}

func (s *AdminService) DeleteRedirect(c *gin.Context) {
	var req DeleteRedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.redirects.Delete(c.Request.Context(), req.RID); err != nil {
		if err == biz.ErrRedirectNotFound {
			response.HandleError(c, apperrors.New(apperrors.ErrRedirectNotFound))
			return
		}
		s.logger.Error("delete redirect failed", zap.Error(err))
		response.InternalError(c, "failed to delete redirect")
		return
	}
	response.Success(c, gin.H{"rid": req.RID})
}

func (s *AdminService) GetVersion(c *gin.Context) {
	response.Success(c, gin.H{"version": Version})
}
