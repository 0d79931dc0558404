package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"prodtrack-backend/internal/pending"
)

var (
	// ErrNotStaged is returned for unknown, consumed or expired tokens.
	ErrNotStaged = errors.New("scanned sheet not found or expired")
	// ErrNotAnImage is returned when the upload is not an image.
	ErrNotAnImage = errors.New("upload is not an image")
	// ErrExtractionFailed is returned when the model could not be reached.
	ErrExtractionFailed = errors.New("extraction service failed")
	// ErrDisabled is returned when no extraction model is configured.
	ErrDisabled = errors.New("sheet extraction is not configured")
)

// Staged is a sheet waiting for the operator to confirm it.
type Staged struct {
	Token     string    `json:"token"`
	Sheet     Sheet     `json:"sheet"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service extracts sheets and keeps them staged until they become orders.
type Service struct {
	model  Model
	staged *pending.Store[Sheet]
}

// NewService creates a scan service. model may be nil, in which case Scan
// reports ErrDisabled.
func NewService(model Model, ttl time.Duration) *Service {
	return &Service{model: model, staged: pending.New[Sheet](ttl)}
}

// Scan extracts the sheet in image and stages it.
func (s *Service) Scan(ctx context.Context, image []byte) (Staged, error) {
	if s.model == nil {
		return Staged{}, ErrDisabled
	}

	mime := mimetype.Detect(image)
	if !strings.HasPrefix(mime.String(), "image/") {
		return Staged{}, fmt.Errorf("%w: %s", ErrNotAnImage, mime.String())
	}

	text, err := s.model.Extract(ctx, image, mime.String())
	if err != nil {
		log.Printf("Sheet extraction failed: %v", err)
		return Staged{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	sheet, err := Decode(text)
	if err != nil {
		log.Printf("Unusable extraction answer (%d bytes): %v", len(text), err)
		return Staged{}, err
	}

	token := s.staged.Put(sheet)
	log.Printf("Staged sheet #%d for client %s", sheet.Sheet, sheet.ClientID)
	return s.Lookup(token)
}

// Lookup returns a staged sheet without consuming it.
func (s *Service) Lookup(token string) (Staged, error) {
	sheet, exp, ok := s.staged.Get(token)
	if !ok {
		return Staged{}, ErrNotStaged
	}
	return Staged{Token: token, Sheet: sheet, ExpiresAt: exp}, nil
}

// Update replaces a staged sheet with the operator's corrections.
func (s *Service) Update(token string, edited Sheet) (Staged, error) {
	if !s.staged.Replace(token, edited.Normalize()) {
		return Staged{}, ErrNotStaged
	}
	return s.Lookup(token)
}

// Discard drops a staged sheet.
func (s *Service) Discard(token string) error {
	if !s.staged.Drop(token) {
		return ErrNotStaged
	}
	return nil
}

// Claim consumes a staged sheet. Callers that fail to persist it hand it
// back with Restore.
func (s *Service) Claim(token string) (Sheet, error) {
	sheet, ok := s.staged.Take(token)
	if !ok {
		return Sheet{}, ErrNotStaged
	}
	return sheet, nil
}

// Restore re-stages a claimed sheet under its token.
func (s *Service) Restore(token string, sheet Sheet) {
	s.staged.Restore(token, sheet)
}
