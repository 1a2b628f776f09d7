package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinmail/dnsguard/interfaces"
	"github.com/robinmail/dnsguard/internal/enum"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/repository"
)

type fakeDomainRepo struct {
	repository.DomainRepository
	byName map[string]*models.Domain
	byID   map[uint64]*models.Domain
	nextID uint64
}

func (f *fakeDomainRepo) RegisterDomain(ctx context.Context, domain string) (*models.Domain, error) {
	f.nextID++
	record := &models.Domain{ID: f.nextID, Domain: domain, Status: enum.DomainStatusPending}
	f.byName[domain] = record
	f.byID[record.ID] = record
	return record, nil
}

func (f *fakeDomainRepo) GetDomain(ctx context.Context, domain string) (*models.Domain, error) {
	return f.byName[domain], nil
}

func (f *fakeDomainRepo) GetDomainByID(ctx context.Context, id uint64) (*models.Domain, error) {
	return f.byID[id], nil
}

func (f *fakeDomainRepo) SetProviders(ctx context.Context, id uint64, dnsProviderID, nsProviderID *uint64) error {
	f.byID[id].DnsProviderID = dnsProviderID
	f.byID[id].NsProviderID = nsProviderID
	return nil
}

func (f *fakeDomainRepo) DeleteDomain(ctx context.Context, id uint64) error {
	record := f.byID[id]
	delete(f.byID, id)
	delete(f.byName, record.Domain)
	return nil
}

type fakeProviderRepo struct {
	repository.DnsProviderRepository
	providers map[uint64]*models.DnsProvider
}

func (f *fakeProviderRepo) GetByID(ctx context.Context, id uint64) (*models.DnsProvider, error) {
	return f.providers[id], nil
}

type fakeHealthRepo struct {
	repository.DomainHealthRepository
	deletedFor []uint64
}

func (f *fakeHealthRepo) DeleteByDomain(ctx context.Context, domainID uint64) error {
	f.deletedFor = append(f.deletedFor, domainID)
	return nil
}

type fakeRecordRepo struct {
	repository.DomainDnsRecordRepository
	saved      []models.DomainDnsRecord
	failFor    string
	deletedFor []uint64
}

func (f *fakeRecordRepo) Save(ctx context.Context, record *models.DomainDnsRecord) error {
	if f.failFor != "" && record.Name == f.failFor {
		return errors.New("db down")
	}
	f.saved = append(f.saved, *record)
	return nil
}

func (f *fakeRecordRepo) DeleteByDomain(ctx context.Context, domainID uint64) error {
	f.deletedFor = append(f.deletedFor, domainID)
	return nil
}

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestService() (interfaces.DomainService, *fakeDomainRepo, *fakeHealthRepo, *fakeRecordRepo) {
	domainRepo := &fakeDomainRepo{byName: map[string]*models.Domain{}, byID: map[uint64]*models.Domain{}}
	providerRepo := &fakeProviderRepo{providers: map[uint64]*models.DnsProvider{
		7: {ID: 7, Name: "cf-main", ProviderType: enum.DnsProviderCloudflare},
	}}
	healthRepo := &fakeHealthRepo{}
	recordRepo := &fakeRecordRepo{}

	svc := NewDomainService(testLogger(), &repository.Repositories{
		DomainRepository:          domainRepo,
		DnsProviderRepository:     providerRepo,
		DomainHealthRepository:    healthRepo,
		DomainDnsRecordRepository: recordRepo,
	})
	return svc, domainRepo, healthRepo, recordRepo
}

func TestRegisterDomain_NormalizesName(t *testing.T) {
	svc, repo, _, _ := newTestService()

	record, err := svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{Domain: "  Example.COM. "})
	require.NoError(t, err)
	assert.Equal(t, "example.com", record.Domain)
	assert.Equal(t, enum.DomainStatusPending, record.Status)
	assert.Contains(t, repo.byName, "example.com")
}

func TestRegisterDomain_RejectsInvalidName(t *testing.T) {
	svc, repo, _, _ := newTestService()

	for _, name := range []string{"", "not a domain", "-leading.example.com", "nodots"} {
		_, err := svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{Domain: name})
		assert.ErrorIs(t, err, er.ErrInvalidDomain, "name %q", name)
	}
	assert.Empty(t, repo.byName)
}

func TestRegisterDomain_RejectsDuplicate(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{Domain: "example.com"})
	require.NoError(t, err)

	_, err = svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{Domain: "EXAMPLE.com"})
	assert.ErrorIs(t, err, er.ErrDomainExists)
}

func TestRegisterDomain_WithProviders(t *testing.T) {
	svc, _, _, _ := newTestService()
	providerID := uint64(7)

	record, err := svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{Domain: "example.com", DnsProviderID: &providerID, NsProviderID: &providerID})
	require.NoError(t, err)
	require.NotNil(t, record.DnsProviderID)
	assert.Equal(t, providerID, *record.DnsProviderID)
	require.NotNil(t, record.NsProviderID)
}

func TestRegisterDomain_UnknownProviderRejected(t *testing.T) {
	svc, repo, _, _ := newTestService()
	providerID := uint64(99)

	_, err := svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{Domain: "example.com", DnsProviderID: &providerID})
	assert.ErrorIs(t, err, er.ErrProviderNotFound)
	assert.Empty(t, repo.byName)
}

func TestRegisterDomain_PersistsUnmanagedSnapshot(t *testing.T) {
	svc, _, _, recordRepo := newTestService()
	priority := 10

	record, err := svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{
		Domain: "example.com",
		InitialRecords: []interfaces.InitialDnsRecord{
			{RecordType: "MX", Name: "example.com", Value: "mx1.example.com", TTL: 3600, Priority: &priority},
			{RecordType: "TXT", Name: "example.com", Value: "v=spf1 -all", TTL: 3600},
		},
	})
	require.NoError(t, err)
	require.Len(t, recordRepo.saved, 2)

	mx := recordRepo.saved[0]
	assert.Equal(t, record.ID, mx.DomainID)
	assert.Equal(t, "MX", mx.RecordType)
	require.NotNil(t, mx.Priority)
	assert.Equal(t, 10, *mx.Priority)
	assert.False(t, mx.Managed)
	assert.False(t, recordRepo.saved[1].Managed)
}

func TestRegisterDomain_SnapshotSaveFailureDoesNotAbort(t *testing.T) {
	svc, repo, _, recordRepo := newTestService()
	recordRepo.failFor = "bad.example.com"

	_, err := svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{
		Domain: "example.com",
		InitialRecords: []interfaces.InitialDnsRecord{
			{RecordType: "TXT", Name: "bad.example.com", Value: "x"},
			{RecordType: "TXT", Name: "example.com", Value: "v=spf1 -all"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, repo.byName, "example.com")
	require.Len(t, recordRepo.saved, 1)
	assert.Equal(t, "example.com", recordRepo.saved[0].Name)
}

func TestGetDomain_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.GetDomain(context.Background(), "missing.example")
	assert.ErrorIs(t, err, er.ErrDomainNotFound)

	_, err = svc.GetDomainByID(context.Background(), 42)
	assert.ErrorIs(t, err, er.ErrDomainNotFound)
}

func TestSetProviders_ValidatesDomainAndProvider(t *testing.T) {
	svc, _, _, _ := newTestService()
	record, err := svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{Domain: "example.com"})
	require.NoError(t, err)

	badProvider := uint64(99)
	err = svc.SetProviders(context.Background(), record.ID, &badProvider, nil)
	assert.ErrorIs(t, err, er.ErrProviderNotFound)

	goodProvider := uint64(7)
	err = svc.SetProviders(context.Background(), record.ID, &goodProvider, nil)
	require.NoError(t, err)

	err = svc.SetProviders(context.Background(), 42, &goodProvider, nil)
	assert.ErrorIs(t, err, er.ErrDomainNotFound)
}

func TestDeleteDomain_CascadesHealthAndRecords(t *testing.T) {
	svc, repo, healthRepo, recordRepo := newTestService()
	record, err := svc.RegisterDomain(context.Background(), interfaces.RegisterDomainRequest{Domain: "example.com"})
	require.NoError(t, err)

	err = svc.DeleteDomain(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Empty(t, repo.byName)
	assert.Equal(t, []uint64{record.ID}, healthRepo.deletedFor)
	assert.Equal(t, []uint64{record.ID}, recordRepo.deletedFor)

	err = svc.DeleteDomain(context.Background(), record.ID)
	assert.ErrorIs(t, err, er.ErrDomainNotFound)
}
