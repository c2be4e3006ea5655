package documents

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foamcrew/foamcrew/internal/jobrecord"
	"github.com/foamcrew/foamcrew/internal/shared"
	"github.com/foamcrew/foamcrew/internal/warehouse"
)

type memDeps struct {
	jobs    map[string]jobrecord.Record
	profile warehouse.CompanyProfile

	renders int
	deducts int
	touched int
	keys    map[string]bool
}

func newMemDeps() *memDeps {
	return &memDeps{jobs: map[string]jobrecord.Record{}, keys: map[string]bool{}}
}

func (m *memDeps) Get(_ context.Context, _, id string) (jobrecord.Record, bool, error) {
	rec, ok := m.jobs[id]
	return rec, ok, nil
}

func (m *memDeps) Update(_ context.Context, _, id string, fn func(*jobrecord.Record) (bool, error)) (jobrecord.Record, error) {
	rec, ok := m.jobs[id]
	if !ok {
		return jobrecord.Record{}, shared.ErrNotFound
	}
	write, err := fn(&rec)
	if err != nil {
		return jobrecord.Record{}, err
	}
	if write {
		m.jobs[id] = rec
	}
	return rec, nil
}

func (m *memDeps) Profile(context.Context, string) (warehouse.CompanyProfile, error) {
	return m.profile, nil
}

func (m *memDeps) RenderHTML(_ context.Context, html string) ([]byte, error) {
	m.renders++
	return []byte("%PDF " + html[:20]), nil
}

func (m *memDeps) DeductForWorkOrder(_ context.Context, _ string, rec *jobrecord.Record) error {
	m.deducts++
	rec.InventoryDeducted = true
	m.jobs[rec.ID] = *rec
	return nil
}

func (m *memDeps) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memDeps) Touch(context.Context, string, time.Time) error {
	m.touched++
	return nil
}

func testService(t *testing.T) (*Service, *memDeps, string) {
	t.Helper()
	deps := newMemDeps()
	deps.profile = warehouse.CompanyProfile{CompanyName: "Tundra Foam LLC", Phone: "555-0101"}
	root := t.TempDir()
	media := NewMediaStore(root, "/media")
	svc := NewService(deps, deps, deps, media, deps, deps, deps, slog.New(slog.DiscardHandler))
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC) }
	return svc, deps, root
}

func TestCreateWorkOrder(t *testing.T) {
	svc, deps, root := testService(t)
	deps.jobs["est-1"] = jobrecord.Record{
		ID:     "est-1",
		Status: jobrecord.StatusDraft,
		Materials: jobrecord.Materials{
			OpenCellSets: 3,
		},
	}

	res, err := svc.CreateWorkOrder(context.Background(), "tenant-a", "est-1", "gate code 4411")
	require.NoError(t, err)
	require.Equal(t, "/media/tenant-a/workorder-est-1.pdf", res.URL)

	rec := deps.jobs["est-1"]
	require.Equal(t, res.URL, rec.WorkOrderSheetURL)
	require.Equal(t, jobrecord.StatusWorkOrder, rec.Status)
	require.True(t, rec.InventoryDeducted)
	require.Equal(t, 1, deps.renders)
	require.Equal(t, 1, deps.deducts)
	require.Equal(t, 1, deps.touched)

	data, err := os.ReadFile(filepath.Join(root, "tenant-a", "workorder-est-1.pdf"))
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestCreateWorkOrderIsIdempotent(t *testing.T) {
	svc, deps, _ := testService(t)
	deps.jobs["est-1"] = jobrecord.Record{ID: "est-1", Status: jobrecord.StatusDraft}

	first, err := svc.CreateWorkOrder(context.Background(), "tenant-a", "est-1", "")
	require.NoError(t, err)

	second, err := svc.CreateWorkOrder(context.Background(), "tenant-a", "est-1", "")
	require.NoError(t, err)
	require.Equal(t, first.URL, second.URL)
	require.Equal(t, 1, deps.renders, "repeat request must not render again")
	require.Equal(t, 1, deps.deducts, "repeat request must not deduct stock again")
}

func TestCreateWorkOrderMissingEstimate(t *testing.T) {
	svc, _, _ := testService(t)
	_, err := svc.CreateWorkOrder(context.Background(), "tenant-a", "nope", "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSavePDFAttachesByFileName(t *testing.T) {
	svc, deps, _ := testService(t)
	deps.jobs["est-1"] = jobrecord.Record{ID: "est-1"}
	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-1.7"))

	cases := []struct {
		fileName string
		slot     func(jobrecord.Record) string
	}{
		{"Invoice_1042.pdf", func(r jobrecord.Record) string { return r.InvoicePDFLink }},
		{"Completion_Report.pdf", func(r jobrecord.Record) string { return r.CompletionReportLink }},
		{"Estimate_1042.pdf", func(r jobrecord.Record) string { return r.PDFLink }},
	}
	for _, tc := range cases {
		url, err := svc.SavePDF(context.Background(), "tenant-a", "est-1", tc.fileName, "data:application/pdf;base64,"+payload)
		require.NoError(t, err, tc.fileName)
		require.Equal(t, url, tc.slot(deps.jobs["est-1"]), tc.fileName)
	}
}

func TestSavePDFRejectsBadPayload(t *testing.T) {
	svc, deps, _ := testService(t)
	deps.jobs["est-1"] = jobrecord.Record{ID: "est-1"}

	_, err := svc.SavePDF(context.Background(), "tenant-a", "est-1", "Invoice.pdf", "not base64!!!")
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.SavePDF(context.Background(), "tenant-a", "est-1", "Invoice.pdf", "data:application/pdf;base64,")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUploadImageAppendsSitePhoto(t *testing.T) {
	svc, deps, _ := testService(t)
	deps.jobs["est-1"] = jobrecord.Record{ID: "est-1", SitePhotos: []string{"/media/tenant-a/photo-old.jpg"}}
	payload := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})

	url, err := svc.UploadImage(context.Background(), "tenant-a", "est-1", "attic.jpg", payload)
	require.NoError(t, err)
	require.Equal(t, "/media/tenant-a/photo-attic.jpg", url)
	require.Equal(t, []string{"/media/tenant-a/photo-old.jpg", url}, deps.jobs["est-1"].SitePhotos)
}

func TestUploadImageWithoutEstimate(t *testing.T) {
	svc, deps, _ := testService(t)
	payload := base64.StdEncoding.EncodeToString([]byte{0x89, 0x50})

	url, err := svc.UploadImage(context.Background(), "tenant-a", "", "truck.png", payload)
	require.NoError(t, err)
	require.NotEmpty(t, url)
	require.Zero(t, deps.touched)
}

func TestSanitizeFileName(t *testing.T) {
	require.Equal(t, "passwd", sanitizeFileName("../../etc/passwd"))
	require.Equal(t, "job_sheet-1.pdf", sanitizeFileName("job sheet-1.pdf"))
	require.Equal(t, "", sanitizeFileName("   "))
}
