package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"github.com/mhilgert/docdepot/internal/pkg/classifier"
	"github.com/mhilgert/docdepot/internal/pkg/compressor"
	"github.com/mhilgert/docdepot/internal/pkg/locker"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/mhilgert/docdepot/internal/pkg/notifier"
	"go.uber.org/zap"
)

// DefaultMaxAttachmentSize bounds uploaded attachment bodies.
const DefaultMaxAttachmentSize = 15 << 20

// CheckResult is one pipeline step's verdict.
type CheckResult struct {
	Label       string `json:"label"`
	Passed      bool   `json:"passed"`
	Description string `json:"description"`
}

// DepositResult carries the full check history of one upload attempt.
// Checks run in a fixed order and stop at the first failure, so the last
// entry is either the failed check or the final passed one.
type DepositResult struct {
	Accepted   bool          `json:"accepted"`
	Checks     []CheckResult `json:"checks"`
	Attachment *Attachment   `json:"attachment,omitempty"`
}

func (r *DepositResult) fail(label, description string) *DepositResult {
	r.Checks = append(r.Checks, CheckResult{Label: label, Passed: false, Description: description})
	r.Accepted = false
	return r
}

func (r *DepositResult) pass(label, description string) {
	r.Checks = append(r.Checks, CheckResult{Label: label, Passed: true, Description: description})
}

// PipelineConfig tunes the attachment checks.
type PipelineConfig struct {
	MaxSize      int64
	DeadlineDays int
}

// PipelineUseCase validates and commits attachment uploads.
type PipelineUseCase struct {
	access    *AccessUseCase
	atts      AttachmentRepo
	checksums ChecksumIndex
	attStore  ContentStore
	classify  classifier.Classifier
	compress  compressor.Compressor
	notify    notifier.Notifier
	locks     locker.Locker
	cfg       PipelineConfig
	log       *logger.Logger
}

func NewPipelineUseCase(
	access *AccessUseCase,
	atts AttachmentRepo,
	checksums ChecksumIndex,
	attStore ContentStore,
	classify classifier.Classifier,
	compress compressor.Compressor,
	notify notifier.Notifier,
	locks locker.Locker,
	cfg PipelineConfig,
	log *logger.Logger,
) *PipelineUseCase {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxAttachmentSize
	}
	if locks == nil {
		locks = locker.Noop{}
	}
	return &PipelineUseCase{
		access:    access,
		atts:      atts,
		checksums: checksums,
		attStore:  attStore,
		classify:  classify,
		compress:  compress,
		notify:    notify,
		locks:     locks,
		cfg:       cfg,
		log:       log,
	}
}

// Deposit runs the ordered checks against the upload and, when all pass,
// commits the attachment: row first, then file. The returned result
// always contains the full check history.
func (uc *PipelineUseCase) Deposit(ctx context.Context, tokenValue, filename string, data []byte) (*DepositResult, error) {
	result := &DepositResult{Accepted: true}

	view, err := uc.access.GetDocumentFromToken(ctx, tokenValue)
	if err != nil {
		if err == ErrTokenNotFound {
			return result.fail("Dokument", "Kein gültiges Dokument zu diesem Token gefunden."), nil
		}
		return nil, err
	}
	now := time.Now().UTC()
	if view.Expired(now) {
		return result.fail("Dokument", "Das Dokument ist nicht mehr gültig."), nil
	}
	result.pass("Dokument", "Dokument gefunden.")

	if !view.Document.AllowAttachment {
		return result.fail("Anhang", "Für dieses Dokument sind keine Anhänge erlaubt."), nil
	}
	result.pass("Anhang", "Anhänge sind erlaubt.")

	deadline := view.Document.UploadDatetime.AddDate(0, 0, uc.cfg.DeadlineDays)
	if view.Document.AttachmentDeadline != nil {
		deadline = *view.Document.AttachmentDeadline
	}
	if uc.cfg.DeadlineDays > 0 || view.Document.AttachmentDeadline != nil {
		if now.After(deadline) {
			return result.fail("Abgabefrist", "Die Abgabefrist ist abgelaufen."), nil
		}
	}
	result.pass("Abgabefrist", "Die Abgabefrist läuft noch.")

	if filename == "" || len(data) == 0 {
		return result.fail("Datei", "Es wurde keine Datei übermittelt."), nil
	}
	result.pass("Datei", "Datei empfangen.")

	if int64(len(data)) > uc.cfg.MaxSize {
		return result.fail("Dateigröße",
			fmt.Sprintf("Die Datei ist zu groß (maximal %d MiB).", uc.cfg.MaxSize>>20)), nil
	}
	result.pass("Dateigröße", "Dateigröße in Ordnung.")

	contentType := http.DetectContentType(data)
	isImage := strings.HasPrefix(contentType, "image/")
	isPDF := contentType == "application/pdf"
	switch {
	case isImage:
		result.pass("Dateityp", "Bilddatei erkannt.")
	case isPDF:
		if !pdfReadable(data) {
			return result.fail("Dateityp", "Die PDF-Datei konnte nicht gelesen werden."), nil
		}
		result.pass("Dateityp", "PDF-Datei erkannt.")
	default:
		return result.fail("Dateityp", "Nur Bilder und PDF-Dateien sind erlaubt."), nil
	}

	// Identical concurrent uploads serialize on the checksum from here
	// through the row insert; the unique index is the backstop when no
	// lock backend is configured.
	checksum := hashBytes(data)
	err = uc.locks.WithLock(ctx, "attachment:checksum:"+checksum, func() error {
		exists, err := uc.checksums.Exists(ctx, checksum)
		if err != nil {
			return err
		}
		if exists {
			result.fail("Duplikat", "Diese Datei wurde bereits eingereicht.")
			return nil
		}
		result.pass("Duplikat", "Keine doppelte Einreichung.")

		if isImage && uc.classify != nil {
			verdict, err := uc.classify.Classify(ctx, data, filename)
			switch {
			case err == classifier.ErrUnavailable:
				uc.log.Warn("classifier unavailable, skipping quality checks")
			case err != nil:
				return err
			case !verdict.Blur:
				result.fail("Bildschärfe", "Das Bild ist zu unscharf.")
				return nil
			case !verdict.Pass || !verdict.CNN:
				result.fail("AI-Check", "Das Bild wurde von der automatischen Prüfung abgelehnt.")
				return nil
			default:
				result.pass("Bildschärfe", "Bildschärfe in Ordnung.")
				result.pass("AI-Check", "Automatische Prüfung bestanden.")
			}
		}

		if uc.compress != nil {
			var processed []byte
			var err error
			if isImage {
				processed, err = uc.compress.ResizeImage(ctx, data, filename)
			} else {
				processed, err = uc.compress.CompressPDF(ctx, data)
			}
			if err != nil {
				uc.log.Warn("compression failed", zap.String("filename", filename), zap.Error(err))
				result.fail("Komprimierung", "Die Datei konnte nicht verarbeitet werden.")
				return nil
			}
			data = processed
			checksum = hashBytes(data)
			result.pass("Komprimierung", "Datei verarbeitet.")
		}

		return uc.commit(ctx, view, filename, data, checksum, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// commit inserts the row first so the file key is final, then writes the
// body. A failed write deletes the row; the orphan sweep is the backstop.
func (uc *PipelineUseCase) commit(ctx context.Context, view *TokenView, filename string, data []byte, checksum string, result *DepositResult) error {
	att := &Attachment{
		AID:      uuid.NewString(),
		DID:      view.Document.DID,
		Name:     filename,
		Checksum: checksum,
		Uploaded: time.Now().UTC(),
	}
	if err := uc.atts.Create(ctx, att); err != nil {
		if err == ErrDuplicateContent {
			result.fail("Duplikat", "Diese Datei wurde bereits eingereicht.")
			return nil
		}
		return err
	}

	if _, err := uc.attStore.Put(ctx, att.AID, data); err != nil {
		if derr := uc.atts.Delete(ctx, att.AID); derr != nil && derr != ErrAttachmentNotFound {
			uc.log.Error("attachment row rollback failed", zap.String("aid", att.AID), zap.Error(derr))
		}
		return err
	}

	result.Attachment = att
	uc.log.Info("attachment deposited",
		zap.String("aid", att.AID),
		zap.String("did", att.DID),
		zap.String("name", att.Name),
	)

	if uc.notify != nil {
		message := fmt.Sprintf("Neuer Anhang %q für Dokument %q (%s).",
			att.Name, view.Document.Title, view.Document.DID)
		if !uc.notify.Send(ctx, message) {
			uc.log.Warn("deposit notification failed", zap.String("aid", att.AID))
		}
	}
	return nil
}

// pdfReadable probes the document structure; a renderable first page is
// required.
func pdfReadable(data []byte) bool {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return false
	}
	defer doc.Close()
	return doc.NumPage() > 0
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
