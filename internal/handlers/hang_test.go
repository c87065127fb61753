package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/medviewer/hanging-protocols/internal/cache"
	"github.com/medviewer/hanging-protocols/internal/middleware"
	"github.com/medviewer/hanging-protocols/internal/models"
	"github.com/medviewer/hanging-protocols/internal/repository"
	"github.com/medviewer/hanging-protocols/internal/services"
	"github.com/medviewer/hanging-protocols/pkg/hp"
	"github.com/rs/zerolog"
)

// memoryProtocolStore backs the service stack without a database.
type memoryProtocolStore struct {
	records []*models.ProtocolRecord
}

func (m *memoryProtocolStore) Create(_ context.Context, record *models.ProtocolRecord) error {
	m.records = append(m.records, record)
	return nil
}

func (m *memoryProtocolStore) GetByProtocolID(_ context.Context, tenantID uuid.UUID, protocolID string) (*models.ProtocolRecord, error) {
	for _, r := range m.records {
		if r.TenantID == tenantID && r.ProtocolID == protocolID {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryProtocolStore) GetByTenantID(_ context.Context, tenantID uuid.UUID) ([]models.ProtocolRecord, error) {
	var out []models.ProtocolRecord
	for _, r := range m.records {
		if r.TenantID == tenantID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memoryProtocolStore) Update(_ context.Context, record *models.ProtocolRecord) error {
	for i, r := range m.records {
		if r.TenantID == record.TenantID && r.ProtocolID == record.ProtocolID {
			m.records[i] = record
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memoryProtocolStore) Delete(_ context.Context, tenantID uuid.UUID, protocolID string) error {
	for i, r := range m.records {
		if r.TenantID == tenantID && r.ProtocolID == protocolID {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type memoryAuditStore struct{}

func (memoryAuditStore) Create(context.Context, *models.AuditLog) error { return nil }

func newTestRouter() *chi.Mux {
	protocolService := services.NewProtocolService(&memoryProtocolStore{}, memoryAuditStore{}, cache.NewMemoryCache(), time.Minute)
	engine := hp.NewEngine(hp.NewResolver(), zerolog.Nop())
	hangingService := services.NewHangingService(protocolService, engine)

	protocolHandler := NewProtocolHandler(protocolService)
	hangHandler := NewHangHandler(hangingService)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.TenantID)
		r.Use(middleware.UserID)
		r.Post("/protocols", protocolHandler.CreateProtocol)
		r.Get("/protocols/{id}", protocolHandler.GetProtocol)
		r.Post("/protocols/{id}/clone", protocolHandler.CloneProtocol)
		r.Post("/hang", hangHandler.Hang)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHangEndpoint(t *testing.T) {
	router := newTestRouter()
	tenantID := uuid.NewString()

	protocol := hp.NewProtocol("Chest CT")
	protocol.ID = "chest-ct"
	protocol.ProtocolMatchingRules = []hp.Rule{
		{Attribute: "ModalitiesInStudy", Constraint: hp.Constraint{"contains": "CT"}, Required: true, Weight: 20},
	}
	protocol.DisplaySetSelectors = map[string]*hp.DisplaySetSelector{
		"ct": {
			ID: "ct",
			SeriesMatchingRules: []hp.Rule{
				{Attribute: "Modality", Constraint: hp.Constraint{"equals": "CT"}, Required: true},
			},
		},
	}
	stage := hp.NewStage(hp.ViewportStructure{
		Type:       hp.GridLayout,
		Properties: hp.LayoutProperties{Rows: 1, Columns: 1},
	}, "single")
	stage.Viewports = []*hp.Viewport{
		{DisplaySets: []hp.DisplaySetRef{{ID: "ct"}}},
	}
	protocol.AddStage(stage)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/protocols", tenantID, models.ProtocolRequest{Definition: protocol})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create protocol: got status %d, body %s", rec.Code, rec.Body.String())
	}

	hangReq := models.HangRequest{
		Studies: []*hp.Study{
			{
				Attributes: hp.Attributes{
					"StudyInstanceUID":  "1.2.3",
					"ModalitiesInStudy": []string{"CT"},
				},
				Series: []*hp.Series{
					{Attributes: hp.Attributes{"SeriesInstanceUID": "1.2.3.1", "Modality": "CT"}},
				},
			},
		},
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/hang", tenantID, hangReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("hang: got status %d, body %s", rec.Code, rec.Body.String())
	}

	var result hp.HangResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode hang result: %v", err)
	}
	if result.ProtocolID != "chest-ct" {
		t.Errorf("protocol id: got %q, want %q", result.ProtocolID, "chest-ct")
	}
	if result.ProtocolScore != 20 {
		t.Errorf("protocol score: got %v, want 20", result.ProtocolScore)
	}
	if len(result.Viewports) != 1 {
		t.Fatalf("viewports: got %d, want 1", len(result.Viewports))
	}
	if !result.Viewports[0].Matched {
		t.Error("viewport 0 should be matched")
	}
	if got := result.Viewports[0].SeriesInstanceUID; got != "1.2.3.1" {
		t.Errorf("series uid: got %q, want %q", got, "1.2.3.1")
	}
}

func TestHangEndpointFallsBackToDefault(t *testing.T) {
	router := newTestRouter()
	tenantID := uuid.NewString()

	hangReq := models.HangRequest{
		Studies: []*hp.Study{
			{
				Attributes: hp.Attributes{"StudyInstanceUID": "9.9"},
				Series: []*hp.Series{
					{Attributes: hp.Attributes{"SeriesInstanceUID": "9.9.1"}},
				},
			},
		},
	}

	rec := doJSON(t, router, http.MethodPost, "/api/v1/hang", tenantID, hangReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("hang: got status %d, body %s", rec.Code, rec.Body.String())
	}

	var result hp.HangResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode hang result: %v", err)
	}
	if !result.ProtocolFallback {
		t.Error("expected fallback to the default protocol")
	}
	if result.ProtocolID != hp.DefaultProtocolID {
		t.Errorf("protocol id: got %q, want %q", result.ProtocolID, hp.DefaultProtocolID)
	}
	if len(result.Viewports) != 1 || !result.Viewports[0].Matched {
		t.Error("default protocol should hang the first series")
	}
}

func TestHangEndpointRequiresTenantHeader(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/hang", "", models.HangRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCloneEndpointUnlocksProtocol(t *testing.T) {
	router := newTestRouter()
	tenantID := uuid.NewString()

	locked := hp.NewProtocol("Template")
	locked.ID = "template"
	locked.Locked = true

	rec := doJSON(t, router, http.MethodPost, "/api/v1/protocols", tenantID, models.ProtocolRequest{Definition: locked})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create protocol: got status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/protocols/template/clone", tenantID, models.CloneRequest{Name: "Mine"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("clone protocol: got status %d, body %s", rec.Code, rec.Body.String())
	}

	var clone hp.Protocol
	if err := json.Unmarshal(rec.Body.Bytes(), &clone); err != nil {
		t.Fatalf("decode clone: %v", err)
	}
	if clone.ID == "template" {
		t.Error("clone should mint a fresh id")
	}
	if clone.Locked {
		t.Error("clone should be unlocked")
	}
	if clone.Name != "Mine" {
		t.Errorf("clone name: got %q, want %q", clone.Name, "Mine")
	}
}
