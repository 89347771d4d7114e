package data

import (
	"time"

	"github.com/mhilgert/docdepot/internal/depot/biz"
)

// UserPO 用户数据库模型
type UserPO struct {
	UID        string    `gorm:"column:uid;primarykey;size:255"`
	ValidUntil time.Time `gorm:"column:valid_until;not null;index:idx_user_valid_until"`
}

func (UserPO) TableName() string {
	return "users"
}

// DocumentPO 文档数据库模型
//
// Checksum is nullable so rows awaiting backfill never collide under the
// unique index; a second identical deposit fails on insert instead of
// silently storing duplicate content.
type DocumentPO struct {
	DID                string     `gorm:"column:did;type:uuid;primarykey"`
	Title              string     `gorm:"column:title;size:255;not null"`
	Filename           string     `gorm:"column:filename;size:255;not null"`
	Checksum           *string    `gorm:"column:checksum;size:64;uniqueIndex:idx_doc_checksum"`
	UploadDatetime     time.Time  `gorm:"column:upload_datetime;not null"`
	ValidUntil         time.Time  `gorm:"column:valid_until;not null"`
	UserUID            string     `gorm:"column:user_uid;size:255;not null;index:idx_doc_user_uid"`
	AllowAttachment    bool       `gorm:"column:allow_attachment;not null;default:true"`
	AttachmentDeadline *time.Time `gorm:"column:attachment_deadline"`
}

func (DocumentPO) TableName() string {
	return "documents"
}

// TokenPO 令牌数据库模型
type TokenPO struct {
	TID        int64     `gorm:"column:tid;primarykey;autoIncrement"`
	Token      string    `gorm:"column:token;type:uuid;uniqueIndex:idx_token_value;not null"`
	DID        string    `gorm:"column:did;type:uuid;not null;index:idx_token_did"`
	ValidUntil time.Time `gorm:"column:valid_until;not null;index:idx_token_valid_until"`
	Created    time.Time `gorm:"column:created;not null"`
}

func (TokenPO) TableName() string {
	return "tokens"
}

// EventPO 事件数据库模型
type EventPO struct {
	EID  int64     `gorm:"column:eid;primarykey;autoIncrement"`
	TID  int64     `gorm:"column:tid;not null;index:idx_event_tid"`
	Date time.Time `gorm:"column:date;not null"`
	Kind string    `gorm:"column:event;size:32;not null"`
}

func (EventPO) TableName() string {
	return "events"
}

// AttachmentPO 附件数据库模型
type AttachmentPO struct {
	AID      string    `gorm:"column:aid;type:uuid;primarykey"`
	DID      string    `gorm:"column:did;type:uuid;not null;index:idx_att_did"`
	Name     string    `gorm:"column:name;size:255;not null"`
	Checksum string    `gorm:"column:checksum;size:64;not null;uniqueIndex:idx_att_checksum"`
	Uploaded time.Time `gorm:"column:uploaded;not null"`
}

func (AttachmentPO) TableName() string {
	return "attachments"
}

// RedirectPO 跳转数据库模型
type RedirectPO struct {
	RID         string    `gorm:"column:rid;type:uuid;primarykey"`
	UID         string    `gorm:"column:uid;size:255;index:idx_redirect_uid"`
	DID         string    `gorm:"column:did;type:uuid;index:idx_redirect_did"`
	URL         string    `gorm:"column:url;type:text;not null"`
	Description string    `gorm:"column:description;size:255"`
	ValidUntil  time.Time `gorm:"column:valid_until;not null"`
}

func (RedirectPO) TableName() string {
	return "redirects"
}

// AllModels lists every persistent model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&UserPO{},
		&DocumentPO{},
		&TokenPO{},
		&EventPO{},
		&AttachmentPO{},
		&RedirectPO{},
	}
}

func userToDomain(po *UserPO) *biz.User {
	return &biz.User{
		UID:        po.UID,
		ValidUntil: po.ValidUntil.UTC(),
	}
}

func documentToDomain(po *DocumentPO) *biz.Document {
	doc := &biz.Document{
		DID:             po.DID,
		Title:           po.Title,
		Filename:        po.Filename,
		UploadDatetime:  po.UploadDatetime.UTC(),
		ValidUntil:      po.ValidUntil.UTC(),
		UserUID:         po.UserUID,
		AllowAttachment: po.AllowAttachment,
	}
	if po.Checksum != nil {
		doc.Checksum = *po.Checksum
	}
	if po.AttachmentDeadline != nil {
		deadline := po.AttachmentDeadline.UTC()
		doc.AttachmentDeadline = &deadline
	}
	return doc
}

func tokenToDomain(po *TokenPO) *biz.Token {
	return &biz.Token{
		TID:        po.TID,
		Token:      po.Token,
		DID:        po.DID,
		ValidUntil: po.ValidUntil.UTC(),
		Created:    po.Created.UTC(),
	}
}

func eventToDomain(po *EventPO) *biz.Event {
	return &biz.Event{
		EID:  po.EID,
		TID:  po.TID,
		Date: po.Date.UTC(),
		Kind: po.Kind,
	}
}

func attachmentToDomain(po *AttachmentPO) *biz.Attachment {
	return &biz.Attachment{
		AID:      po.AID,
		DID:      po.DID,
		Name:     po.Name,
		Checksum: po.Checksum,
		Uploaded: po.Uploaded.UTC(),
	}
}

func redirectToDomain(po *RedirectPO) *biz.Redirect {
	return &biz.Redirect{
		RID:         po.RID,
		UID:         po.UID,
		DID:         po.DID,
		URL:         po.URL,
		Description: po.Description,
		ValidUntil:  po.ValidUntil.UTC(),
	}
}
