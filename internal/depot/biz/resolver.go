package biz

import (
	"context"
	"time"

	"github.com/mhilgert/docdepot/internal/pkg/logger"
)

// TokenView is a token resolved to its document with the effective
// validity applied.
type TokenView struct {
	Token    *Token
	Document *Document
	Owner    *User
	// EffectiveValidUntil is the minimum of the token, document and user
	// validities. The token grants nothing past it.
	EffectiveValidUntil time.Time
}

// Expired reports whether the view grants access at the given instant.
func (v *TokenView) Expired(now time.Time) bool {
	return v.EffectiveValidUntil.Before(now.UTC())
}

// AccessUseCase resolves capability tokens to documents and redirects.
type AccessUseCase struct {
	users     UserRepo
	docs      DocumentRepo
	tokens    TokenRepo
	events    EventRepo
	atts      AttachmentRepo
	redirects RedirectRepo
	docStore  ContentStore
	attStore  ContentStore
	log       *logger.Logger
}

func NewAccessUseCase(
	users UserRepo,
	docs DocumentRepo,
	tokens TokenRepo,
	events EventRepo,
	atts AttachmentRepo,
	redirects RedirectRepo,
	docStore ContentStore,
	attStore ContentStore,
	log *logger.Logger,
) *AccessUseCase {
	return &AccessUseCase{
		users:     users,
		docs:      docs,
		tokens:    tokens,
		events:    events,
		atts:      atts,
		redirects: redirects,
		docStore:  docStore,
		attStore:  attStore,
		log:       log,
	}
}

// GetDocumentFromToken resolves the token chain. A token whose document
// or owner has vanished behaves like an unknown token.
func (uc *AccessUseCase) GetDocumentFromToken(ctx context.Context, tokenValue string) (*TokenView, error) {
	token, err := uc.tokens.Get(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	doc, err := uc.docs.Get(ctx, token.DID)
	if err != nil {
		if err == ErrDocumentNotFound {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	owner, err := uc.users.Get(ctx, doc.UserUID)
	if err != nil {
		if err == ErrUserNotFound {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	effective := token.ValidUntil
	if doc.ValidUntil.Before(effective) {
		effective = doc.ValidUntil
	}
	if owner.ValidUntil.Before(effective) {
		effective = owner.ValidUntil
	}

	return &TokenView{
		Token:               token,
		Document:            doc,
		Owner:               owner,
		EffectiveValidUntil: effective,
	}, nil
}

// GetDocumentBody returns the stored document bytes and records a
// download event.
func (uc *AccessUseCase) GetDocumentBody(ctx context.Context, view *TokenView) ([]byte, error) {
	data, err := uc.docStore.Get(ctx, view.Document.DID)
	if err != nil {
		return nil, err
	}
	if err := uc.events.Append(ctx, view.Token.Token, EventKindDownload); err != nil {
		// The download already succeeded; losing the event is acceptable.
		uc.log.Warn("event append failed after download")
	}
	return data, nil
}

// GetRedirect resolves the token's redirect. A redirect scoped to the
// document strictly precedes one scoped to the owning user.
func (uc *AccessUseCase) GetRedirect(ctx context.Context, tokenValue string) (*Redirect, error) {
	view, err := uc.GetDocumentFromToken(ctx, tokenValue)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	redirect, err := uc.redirects.ValidByDocument(ctx, view.Document.DID, now)
	if err != nil {
		return nil, err
	}
	if redirect == nil {
		redirect, err = uc.redirects.ValidByUser(ctx, view.Owner.UID, now)
		if err != nil {
			return nil, err
		}
	}
	if redirect == nil {
		return nil, ErrRedirectNotFound
	}
	return redirect, nil
}

// GetDownloadEventCount counts accesses recorded against the token.
func (uc *AccessUseCase) GetDownloadEventCount(ctx context.Context, tokenValue string) (int64, error) {
	token, err := uc.tokens.Get(ctx, tokenValue)
	if err != nil {
		return 0, err
	}
	return uc.events.CountByToken(ctx, token.TID)
}

// GetFirstEventDatetime returns the first recorded access, nil when the
// token was never used.
func (uc *AccessUseCase) GetFirstEventDatetime(ctx context.Context, tokenValue string) (*time.Time, error) {
	token, err := uc.tokens.Get(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	return uc.events.FirstDateByToken(ctx, token.TID)
}

// AreTokensValid reports whether every listed token resolves and is
// unexpired. Unknown tokens count as invalid, not as errors.
func (uc *AccessUseCase) AreTokensValid(ctx context.Context, tokenValues []string) (bool, error) {
	now := time.Now().UTC()
	for _, value := range tokenValues {
		view, err := uc.GetDocumentFromToken(ctx, value)
		if err != nil {
			if err == ErrTokenNotFound {
				return false, nil
			}
			return false, err
		}
		if view.Expired(now) {
			return false, nil
		}
	}
	return true, nil
}

// ListAttachments returns the attachments deposited against the token's
// document.
func (uc *AccessUseCase) ListAttachments(ctx context.Context, view *TokenView) ([]*Attachment, error) {
	return uc.atts.ListByDocument(ctx, view.Document.DID)
}

// GetAttachmentBody returns the stored attachment bytes.
func (uc *AccessUseCase) GetAttachmentBody(ctx context.Context, aid string) (*Attachment, []byte, error) {
	att, err := uc.atts.Get(ctx, aid)
	if err != nil {
		return nil, nil, err
	}
	data, err := uc.attStore.Get(ctx, att.AID)
	if err != nil {
		return nil, nil, err
	}
	return att, data, nil
}
