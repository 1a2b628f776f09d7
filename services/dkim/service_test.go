package dkim

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinmail/dnsguard/internal/enum"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/services/crypto"
)

type fakeDomainRepo struct {
	repository.DomainRepository
	domains map[uint64]*models.Domain
}

func (f *fakeDomainRepo) GetDomainByID(ctx context.Context, id uint64) (*models.Domain, error) {
	return f.domains[id], nil
}

type fakeDkimRepo struct {
	repository.DkimKeyRepository
	keys   map[uint64]*models.DkimKey
	nextID uint64
}

func (f *fakeDkimRepo) Create(ctx context.Context, key *models.DkimKey) error {
	f.nextID++
	key.ID = f.nextID
	stored := *key
	f.keys[key.ID] = &stored
	return nil
}

func (f *fakeDkimRepo) GetByID(ctx context.Context, id uint64) (*models.DkimKey, error) {
	if key, ok := f.keys[id]; ok {
		copied := *key
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeDkimRepo) GetActiveByDomain(ctx context.Context, domainID uint64) ([]models.DkimKey, error) {
	var active []models.DkimKey
	for _, key := range f.keys {
		if key.DomainID == domainID && key.Status == enum.DkimKeyStatusActive {
			active = append(active, *key)
		}
	}
	return active, nil
}

func (f *fakeDkimRepo) GetByDomain(ctx context.Context, domainID uint64) ([]models.DkimKey, error) {
	var keys []models.DkimKey
	for _, key := range f.keys {
		if key.DomainID == domainID {
			keys = append(keys, *key)
		}
	}
	return keys, nil
}

func (f *fakeDkimRepo) UpdateStatusIf(ctx context.Context, id uint64, expected, next enum.DkimKeyStatus) (bool, error) {
	key, ok := f.keys[id]
	if !ok || key.Status != expected {
		return false, nil
	}
	key.Status = next
	return true, nil
}

func (f *fakeDkimRepo) MarkRetired(ctx context.Context, id uint64) error {
	if key, ok := f.keys[id]; ok {
		key.Status = enum.DkimKeyStatusRetired
	}
	return nil
}

type fakeMtaClient struct {
	configured []string
	fail       bool
}

func (f *fakeMtaClient) ConfigureSigning(ctx context.Context, domain, selector, privateKeyBase64 string, algorithm enum.DkimAlgorithm) error {
	if f.fail {
		return er.ErrUpstreamUnavailable
	}
	f.configured = append(f.configured, selector)
	return nil
}

func (f *fakeMtaClient) ReloadConfig(ctx context.Context) error {
	return nil
}

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestService(t *testing.T) (*dkimService, *fakeDomainRepo, *fakeDkimRepo, *fakeMtaClient) {
	t.Helper()

	vault, err := crypto.NewSecretVault("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	domainRepo := &fakeDomainRepo{domains: map[uint64]*models.Domain{
		1: {ID: 1, Domain: "example.com", Status: enum.DomainStatusActive},
	}}
	dkimRepo := &fakeDkimRepo{keys: map[uint64]*models.DkimKey{}}
	mta := &fakeMtaClient{}

	svc := NewDkimService(testLogger(), &repository.Repositories{
		DomainRepository:  domainRepo,
		DkimKeyRepository: dkimRepo,
	}, vault, nil, mta).(*dkimService)

	return svc, domainRepo, dkimRepo, mta
}

func TestGenerateKeyPair_UnknownDomain(t *testing.T) {
	svc, _, dkimRepo, _ := newTestService(t)

	_, err := svc.GenerateKeyPair(context.Background(), 99, enum.DkimAlgorithmRSA2048, "")

	assert.ErrorIs(t, err, er.ErrDomainNotFound)
	assert.Empty(t, dkimRepo.keys)
}

func TestGenerateKeyPair_PersistsActiveAndMasks(t *testing.T) {
	svc, _, dkimRepo, mta := newTestService(t)

	result, err := svc.GenerateKeyPair(context.Background(), 1, enum.DkimAlgorithmRSA2048, "myselector")
	require.NoError(t, err)

	assert.Equal(t, "myselector", result.Key.Selector)
	assert.Equal(t, enum.DkimKeyStatusActive, result.Key.Status)
	assert.Equal(t, models.PrivateKeyMask, result.Key.PrivateKey)
	assert.NotEmpty(t, result.Key.PublicKey)

	stored := dkimRepo.keys[result.Key.ID]
	require.NotNil(t, stored)
	// stored private key is an encrypted envelope, never plaintext
	assert.Regexp(t, `^v1\.`, stored.PrivateKey)

	// no DNS provider on the domain: publish reported as failed, MTA ok
	assert.False(t, result.SideEffects.DnsPublished)
	assert.Contains(t, result.SideEffects.DnsPublishError, "no dns provider")
	assert.True(t, result.SideEffects.MtaConfigured)
	assert.Equal(t, []string{"myselector"}, mta.configured)
}

func TestGenerateKeyPair_MtaFailureDoesNotFailOperation(t *testing.T) {
	svc, _, dkimRepo, mta := newTestService(t)
	mta.fail = true

	result, err := svc.GenerateKeyPair(context.Background(), 1, enum.DkimAlgorithmEd25519, "")
	require.NoError(t, err)

	assert.False(t, result.SideEffects.MtaConfigured)
	assert.NotEmpty(t, result.SideEffects.MtaConfigureError)
	assert.Len(t, dkimRepo.keys, 1)
}

func TestGenerateKeyPair_AutoSelectorShape(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	rsaResult, err := svc.GenerateKeyPair(context.Background(), 1, enum.DkimAlgorithmRSA2048, "")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}r[a-z0-9]{6}$`), rsaResult.Key.Selector)

	edResult, err := svc.GenerateKeyPair(context.Background(), 1, enum.DkimAlgorithmEd25519, "")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}e[a-z0-9]{6}$`), edResult.Key.Selector)
}

func TestInitiateRotation_NoActiveKey(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.InitiateRotation(context.Background(), 1)

	assert.ErrorIs(t, err, er.ErrNoActiveDkimKey)
}

func TestInitiateRotation_FlipsOldAndLinksNew(t *testing.T) {
	svc, _, dkimRepo, _ := newTestService(t)

	original, err := svc.GenerateKeyPair(context.Background(), 1, enum.DkimAlgorithmRSA2048, "202501roldkey")
	require.NoError(t, err)

	rotated, err := svc.InitiateRotation(context.Background(), 1)
	require.NoError(t, err)

	oldKey := dkimRepo.keys[original.Key.ID]
	assert.Equal(t, enum.DkimKeyStatusRotating, oldKey.Status)

	require.NotNil(t, rotated.Key.CnameSelector)
	assert.Equal(t, "202501roldkey", *rotated.Key.CnameSelector)
	assert.Equal(t, enum.DkimKeyStatusActive, rotated.Key.Status)
	assert.Equal(t, enum.DkimAlgorithmRSA2048, rotated.Key.Algorithm)
	assert.NotEqual(t, original.Key.Selector, rotated.Key.Selector)
}

func TestInitiateRotation_ConcurrentFlipLoses(t *testing.T) {
	svc, _, dkimRepo, _ := newTestService(t)

	result, err := svc.GenerateKeyPair(context.Background(), 1, enum.DkimAlgorithmRSA2048, "")
	require.NoError(t, err)

	// simulate another writer winning the status flip first
	dkimRepo.keys[result.Key.ID].Status = enum.DkimKeyStatusRotating

	// GetActiveByDomain no longer returns it, so rotation reports no active key
	_, err = svc.InitiateRotation(context.Background(), 1)
	assert.ErrorIs(t, err, er.ErrNoActiveDkimKey)
}

func TestRetireKey(t *testing.T) {
	svc, _, dkimRepo, _ := newTestService(t)

	result, err := svc.GenerateKeyPair(context.Background(), 1, enum.DkimAlgorithmRSA2048, "")
	require.NoError(t, err)

	retired, err := svc.RetireKey(context.Background(), result.Key.ID)
	require.NoError(t, err)

	assert.Equal(t, enum.DkimKeyStatusRetired, retired.Status)
	assert.NotNil(t, retired.RetiredAt)
	assert.Equal(t, models.PrivateKeyMask, retired.PrivateKey)
	assert.Equal(t, enum.DkimKeyStatusRetired, dkimRepo.keys[result.Key.ID].Status)

	_, err = svc.RetireKey(context.Background(), 999)
	assert.ErrorIs(t, err, er.ErrDkimKeyNotFound)
}

func TestListKeys_MasksPrivateKeys(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.GenerateKeyPair(context.Background(), 1, enum.DkimAlgorithmRSA2048, "")
	require.NoError(t, err)

	keys, err := svc.ListKeys(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, models.PrivateKeyMask, keys[0].PrivateKey)
}
