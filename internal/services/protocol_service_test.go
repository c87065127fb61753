package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medviewer/hanging-protocols/internal/cache"
	"github.com/medviewer/hanging-protocols/internal/models"
	"github.com/medviewer/hanging-protocols/internal/repository"
	"github.com/medviewer/hanging-protocols/pkg/hp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProtocolStore is an in-memory ProtocolStore keyed by tenant+protocol id.
type fakeProtocolStore struct {
	records []*models.ProtocolRecord
	listed  int
}

func (f *fakeProtocolStore) Create(_ context.Context, record *models.ProtocolRecord) error {
	f.records = append(f.records, record)
	return nil
}

func (f *fakeProtocolStore) GetByProtocolID(_ context.Context, tenantID uuid.UUID, protocolID string) (*models.ProtocolRecord, error) {
	for _, r := range f.records {
		if r.TenantID == tenantID && r.ProtocolID == protocolID {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProtocolStore) GetByTenantID(_ context.Context, tenantID uuid.UUID) ([]models.ProtocolRecord, error) {
	f.listed++
	var out []models.ProtocolRecord
	for _, r := range f.records {
		if r.TenantID == tenantID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeProtocolStore) Update(_ context.Context, record *models.ProtocolRecord) error {
	for i, r := range f.records {
		if r.TenantID == record.TenantID && r.ProtocolID == record.ProtocolID {
			f.records[i] = record
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeProtocolStore) Delete(_ context.Context, tenantID uuid.UUID, protocolID string) error {
	for i, r := range f.records {
		if r.TenantID == tenantID && r.ProtocolID == protocolID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeAuditStore struct {
	entries []*models.AuditLog
}

func (f *fakeAuditStore) Create(_ context.Context, entry *models.AuditLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

func newTestService() (*ProtocolService, *fakeProtocolStore, *fakeAuditStore) {
	store := &fakeProtocolStore{}
	audit := &fakeAuditStore{}
	svc := NewProtocolService(store, audit, cache.NewMemoryCache(), 5*time.Minute)
	return svc, store, audit
}

func samplePriorProtocol(name string) *hp.Protocol {
	p := hp.NewProtocol(name)
	stage := hp.NewStage(hp.ViewportStructure{
		Type:       hp.GridLayout,
		Properties: hp.LayoutProperties{Rows: 1, Columns: 2},
	}, "compare")
	vp := hp.NewViewport()
	vp.AddRule(hp.NewRule(hp.RuleKindStudy, "abstractPriorValue", hp.Constraint{"equals": 1}, true, 1))
	stage.Viewports = []*hp.Viewport{vp}
	p.AddStage(stage)
	return p
}

func TestCreateProtocolPersistsDerivedFields(t *testing.T) {
	svc, store, audit := newTestService()
	tenantID := uuid.New()

	created, err := svc.CreateProtocol(context.Background(), tenantID, samplePriorProtocol("MG Compare"), "dr.a")
	require.NoError(t, err)
	assert.Equal(t, "dr.a", created.CreatedBy)

	require.Len(t, store.records, 1)
	record := store.records[0]
	assert.Equal(t, created.ID, record.ProtocolID)
	assert.Equal(t, "MG Compare", record.Name)
	assert.Equal(t, 1, record.NumberOfPriorsReferenced)
	assert.NotEmpty(t, record.Definition)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "protocol.create", audit.entries[0].Action)
	assert.Equal(t, "success", audit.entries[0].Status)
}

func TestUpdateProtocolLockedRejected(t *testing.T) {
	svc, store, _ := newTestService()
	tenantID := uuid.New()

	locked := hp.NewProtocol("Site Default")
	locked.Locked = true
	created, err := svc.CreateProtocol(context.Background(), tenantID, locked, "admin")
	require.NoError(t, err)

	_, err = svc.UpdateProtocol(context.Background(), tenantID, created.ID, hp.NewProtocol("renamed"), "dr.b")
	assert.ErrorIs(t, err, ErrLocked)

	err = svc.DeleteProtocol(context.Background(), tenantID, created.ID, "dr.b")
	assert.ErrorIs(t, err, ErrLocked)
	assert.Len(t, store.records, 1)
}

func TestUpdateProtocolIDMismatch(t *testing.T) {
	svc, _, _ := newTestService()
	tenantID := uuid.New()

	definition := hp.NewProtocol("x")
	_, err := svc.UpdateProtocol(context.Background(), tenantID, "some-other-id", definition, "dr.b")
	assert.ErrorIs(t, err, ErrIDMismatch)
}

func TestUpdateProtocolNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	definition := hp.NewProtocol("x")
	definition.ID = "missing"
	_, err := svc.UpdateProtocol(context.Background(), uuid.New(), "missing", definition, "dr.b")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCloneProtocolUnlocksAndMintsID(t *testing.T) {
	svc, store, _ := newTestService()
	tenantID := uuid.New()

	locked := samplePriorProtocol("Template")
	locked.Locked = true
	created, err := svc.CreateProtocol(context.Background(), tenantID, locked, "admin")
	require.NoError(t, err)

	clone, err := svc.CloneProtocol(context.Background(), tenantID, created.ID, "My Copy", "dr.c")
	require.NoError(t, err)

	assert.NotEqual(t, created.ID, clone.ID)
	assert.False(t, clone.Locked)
	assert.Equal(t, "My Copy", clone.Name)
	assert.Equal(t, "dr.c", clone.CreatedBy)
	assert.Equal(t, 1, clone.NumberOfPriorsReferenced)
	assert.Len(t, store.records, 2)
}

func TestLibraryCachesAndInvalidates(t *testing.T) {
	svc, store, _ := newTestService()
	tenantID := uuid.New()

	_, err := svc.CreateProtocol(context.Background(), tenantID, hp.NewProtocol("A"), "u")
	require.NoError(t, err)

	library, err := svc.Library(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, library, 1)
	listedAfterFirst := store.listed

	// Second read is served from cache without touching the store.
	library, err = svc.Library(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, library, 1)
	assert.Equal(t, listedAfterFirst, store.listed)

	// A mutation invalidates the cached library.
	_, err = svc.CreateProtocol(context.Background(), tenantID, hp.NewProtocol("B"), "u")
	require.NoError(t, err)

	library, err = svc.Library(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Len(t, library, 2)
	assert.Greater(t, store.listed, listedAfterFirst)
}

func TestLibrarySkipsMalformedDefinitions(t *testing.T) {
	svc, store, _ := newTestService()
	tenantID := uuid.New()

	_, err := svc.CreateProtocol(context.Background(), tenantID, hp.NewProtocol("good"), "u")
	require.NoError(t, err)
	store.records = append(store.records, &models.ProtocolRecord{
		TenantID:   tenantID,
		ProtocolID: "broken",
		Definition: []byte("{not json"),
	})

	library, err := svc.Library(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, library, 1)
	assert.Equal(t, "good", library[0].Name)
}

func TestLibraryIsTenantScoped(t *testing.T) {
	svc, _, _ := newTestService()
	tenantA := uuid.New()
	tenantB := uuid.New()

	_, err := svc.CreateProtocol(context.Background(), tenantA, hp.NewProtocol("A only"), "u")
	require.NoError(t, err)

	library, err := svc.Library(context.Background(), tenantB)
	require.NoError(t, err)
	assert.Empty(t, library)
}
