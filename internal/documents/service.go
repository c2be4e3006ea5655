// Package documents covers the heavy tier: work-order sheet rendering,
// client PDF attachment, and site photo uploads. None of these take the
// store-wide lock; writes are compare-and-set on one record, and the
// render path is deduplicated with an idempotency key instead.
package documents

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/shared"
	"github.com/foamcrew/foamcrew/internal/warehouse"
	"github.com/foamcrew/foamcrew/report"
)

// JobStore is the record surface the document operations need.
type JobStore interface {
	Get(ctx context.Context, tenantID, id string) (jobrecord.Record, bool, error)
	Update(ctx context.Context, tenantID, id string, fn func(*jobrecord.Record) (bool, error)) (jobrecord.Record, error)
}

// ProfileReader supplies the tenant's company letterhead details.
type ProfileReader interface {
	Profile(ctx context.Context, tenantID string) (warehouse.CompanyProfile, error)
}

// Renderer turns the work-order HTML into a PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Deducter charges the planned load-out against stock when the work
// order is issued.
type Deducter interface {
	DeductForWorkOrder(ctx context.Context, tenantID string, rec *jobrecord.Record) error
}

// IdempotencyStore gates duplicate render requests.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// DirtyMarker refreshes the change-notification cache.
type DirtyMarker interface {
	Touch(ctx context.Context, tenantID string, at time.Time) error
}

// Service runs the heavy-tier operations.
type Service struct {
	jobs     JobStore
	profiles ProfileReader
	renderer Renderer
	media    *MediaStore
	engine   Deducter
	idem     IdempotencyStore
	marker   DirtyMarker
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(jobs JobStore, profiles ProfileReader, renderer Renderer, media *MediaStore, engine Deducter, idem IdempotencyStore, marker DirtyMarker, logger *slog.Logger) *Service {
	return &Service{
		jobs:     jobs,
		profiles: profiles,
		renderer: renderer,
		media:    media,
		engine:   engine,
		idem:     idem,
		marker:   marker,
		logger:   logger,
		now:      time.Now,
	}
}

// WorkOrderResult is the payload returned to the client after a render.
type WorkOrderResult struct {
	URL string `json:"url"`
}

// CreateWorkOrder renders the printable crew sheet for an estimate,
// stores it, attaches the link, and charges the planned materials
// against stock. A repeat request for the same estimate returns the
// previously stored sheet instead of rendering and deducting again.
func (s *Service) CreateWorkOrder(ctx context.Context, tenantID, estimateID, crewNotes string) (WorkOrderResult, error) {
	rec, ok, err := s.jobs.Get(ctx, tenantID, estimateID)
	if err != nil {
		return WorkOrderResult{}, err
	}
	if !ok {
		return WorkOrderResult{}, shared.ErrNotFound
	}

	key := fmt.Sprintf("workorder:%s:%s", tenantID, estimateID)
	if err := s.idem.CheckAndInsert(ctx, key, "documents"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) && rec.WorkOrderSheetURL != "" {
			return WorkOrderResult{URL: rec.WorkOrderSheetURL}, nil
		}
		if !errors.Is(err, shared.ErrIdempotencyConflict) {
			return WorkOrderResult{}, err
		}
		// Conflict but no stored link: the first attempt died between
		// the gate and the attach. Fall through and render again.
	}

	profile, err := s.profiles.Profile(ctx, tenantID)
	if err != nil {
		return WorkOrderResult{}, err
	}
	html, err := report.WorkOrderHTML(report.WorkOrderData{
		Company:   profile,
		Job:       rec,
		CrewNotes: crewNotes,
	})
	if err != nil {
		return WorkOrderResult{}, err
	}
	pdf, err := s.renderer.RenderHTML(ctx, html)
	if err != nil {
		return WorkOrderResult{}, fmt.Errorf("documents: render work order: %w", err)
	}
	url, err := s.media.Save(tenantID, fmt.Sprintf("workorder-%s.pdf", estimateID), pdf)
	if err != nil {
		return WorkOrderResult{}, err
	}

	now := s.now().UTC()
	updated, err := s.jobs.Update(ctx, tenantID, estimateID, func(rec *jobrecord.Record) (bool, error) {
		rec.WorkOrderSheetURL = url
		if rec.Status == jobrecord.StatusDraft || rec.Status == "" {
			rec.Status = jobrecord.StatusWorkOrder
		}
		rec.Touch(now)
		return true, nil
	})
	if err != nil {
		return WorkOrderResult{}, err
	}

	if err := s.engine.DeductForWorkOrder(ctx, tenantID, &updated); err != nil {
		return WorkOrderResult{}, err
	}
	s.touch(ctx, tenantID)
	return WorkOrderResult{URL: url}, nil
}

// SavePDF stores a client-rendered PDF and attaches its link to the
// record slot matching the file name.
func (s *Service) SavePDF(ctx context.Context, tenantID, estimateID, fileName, dataURL string) (string, error) {
	data, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	url, err := s.media.Save(tenantID, fileName, data)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	_, err = s.jobs.Update(ctx, tenantID, estimateID, func(rec *jobrecord.Record) (bool, error) {
		attachLink(rec, fileName, url)
		rec.Touch(now)
		return true, nil
	})
	if err != nil {
		return "", err
	}
	s.touch(ctx, tenantID)
	return url, nil
}

// UploadImage stores a site photo and, when an estimate id is given,
// appends it to the record's photo list.
func (s *Service) UploadImage(ctx context.Context, tenantID, estimateID, fileName, dataURL string) (string, error) {
	data, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	url, err := s.media.Save(tenantID, "photo-"+fileName, data)
	if err != nil {
		return "", err
	}
	if estimateID != "" {
		now := s.now().UTC()
		_, err = s.jobs.Update(ctx, tenantID, estimateID, func(rec *jobrecord.Record) (bool, error) {
			rec.SitePhotos = append(rec.SitePhotos, url)
			rec.Touch(now)
			return true, nil
		})
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return "", err
		}
		s.touch(ctx, tenantID)
	}
	return url, nil
}

func (s *Service) touch(ctx context.Context, tenantID string) {
	if s.marker == nil {
		return
	}
	if err := s.marker.Touch(ctx, tenantID, s.now().UTC()); err != nil {
		s.logger.Warn("dirty marker refresh failed", "tenant_id", tenantID, "error", err)
	}
}

// attachLink picks the record slot for a stored PDF from its file name.
// Clients send "Invoice_1042.pdf" or "Completion_Report.pdf"; anything
// unrecognized lands in the generic estimate link.
func attachLink(rec *jobrecord.Record, fileName, url string) {
	lower := strings.ToLower(fileName)
	switch {
	case strings.Contains(lower, "invoice"):
		rec.InvoicePDFLink = url
	case strings.Contains(lower, "completion"), strings.Contains(lower, "report"):
		rec.CompletionReportLink = url
	default:
		rec.PDFLink = url
	}
}

// decodeDataURL accepts both a bare base64 payload and the full
// "data:...;base64," form browsers produce.
func decodeDataURL(dataURL string) ([]byte, error) {
	raw := dataURL
	if idx := strings.IndexByte(raw, ','); idx >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: file payload is not valid base64", shared.ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file payload", shared.ErrValidation)
	}
	return data, nil
}
