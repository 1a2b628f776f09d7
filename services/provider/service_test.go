package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinmail/dnsguard/config"
	"github.com/robinmail/dnsguard/interfaces"
	"github.com/robinmail/dnsguard/internal/enum"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/services/crypto"
)

type fakeProviderRepo struct {
	repository.DnsProviderRepository
	providers map[uint64]*models.DnsProvider
	nextID    uint64
	deleted   []uint64
}

func (f *fakeProviderRepo) Create(ctx context.Context, provider *models.DnsProvider) error {
	f.nextID++
	provider.ID = f.nextID
	copied := *provider
	f.providers[provider.ID] = &copied
	return nil
}

func (f *fakeProviderRepo) GetByID(ctx context.Context, id uint64) (*models.DnsProvider, error) {
	if p, ok := f.providers[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeProviderRepo) GetAll(ctx context.Context) ([]models.DnsProvider, error) {
	var out []models.DnsProvider
	for _, p := range f.providers {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProviderRepo) UpdateCredentials(ctx context.Context, id uint64, credentials string) error {
	f.providers[id].Credentials = credentials
	return nil
}

func (f *fakeProviderRepo) Delete(ctx context.Context, id uint64) error {
	delete(f.providers, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeDomainRepo struct {
	repository.DomainRepository
	referencing map[uint64]int64
}

func (f *fakeDomainRepo) CountByProvider(ctx context.Context, providerID uint64) (int64, error) {
	return f.referencing[providerID], nil
}

type fakeResolver struct {
	ns map[string][]string
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) []string { return nil }
func (f *fakeResolver) LookupMX(ctx context.Context, name string) []interfaces.MXRecord {
	return nil
}
func (f *fakeResolver) LookupNS(ctx context.Context, name string) []string  { return f.ns[name] }
func (f *fakeResolver) LookupCNAME(ctx context.Context, name string) string { return "" }
func (f *fakeResolver) LookupA(ctx context.Context, name string) []string   { return nil }

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type testEnv struct {
	svc       interfaces.ProviderService
	vault     interfaces.SecretVault
	providers *fakeProviderRepo
	domains   *fakeDomainRepo
	resolver  *fakeResolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	vault, err := crypto.NewSecretVault("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	providers := &fakeProviderRepo{providers: map[uint64]*models.DnsProvider{}}
	domains := &fakeDomainRepo{referencing: map[uint64]int64{}}
	resolver := &fakeResolver{ns: map[string][]string{}}

	svc := NewProviderService(
		&config.CloudflareConfig{Url: "https://api.cloudflare.test/client/v4"},
		testLogger(),
		&repository.Repositories{
			DnsProviderRepository: providers,
			DomainRepository:      domains,
		},
		vault,
		resolver,
	)
	return &testEnv{svc: svc, vault: vault, providers: providers, domains: domains, resolver: resolver}
}

func TestCreateProvider_EncryptsAndMasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "cf-prod",
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"apiToken":"tok-123","accountId":"acc-9"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, CredentialMask, created.Credentials)

	stored := env.providers.providers[created.ID]
	assert.NotContains(t, stored.Credentials, "tok-123")
	plain, err := env.vault.Decrypt(stored.Credentials)
	require.NoError(t, err)
	assert.Equal(t, `{"apiToken":"tok-123","accountId":"acc-9"}`, plain)
}

func TestCreateProvider_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"apiToken":"x"}`,
	})
	assert.ErrorIs(t, err, er.ErrInvalidInput)

	_, err = env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "weird",
		ProviderType: enum.DnsProviderType("GODADDY"),
		Credentials:  `{}`,
	})
	assert.ErrorIs(t, err, er.ErrProviderNotSupported)

	_, err = env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "cf",
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"accountId":"only"}`,
	})
	assert.ErrorIs(t, err, er.ErrInvalidInput)

	_, err = env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "aws",
		ProviderType: enum.DnsProviderRoute53,
		Credentials:  `{"accessKeyId":"AKIA"}`,
	})
	assert.ErrorIs(t, err, er.ErrInvalidInput)
}

func TestGetProvider_MasksCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "cf",
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"apiToken":"tok"}`,
	})
	require.NoError(t, err)

	got, err := env.svc.GetProvider(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, CredentialMask, got.Credentials)

	list, err := env.svc.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, CredentialMask, list[0].Credentials)

	_, err = env.svc.GetProvider(ctx, 999)
	assert.ErrorIs(t, err, er.ErrProviderNotFound)
}

func TestDeleteProvider_RefusedWhileReferenced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "cf",
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"apiToken":"tok"}`,
	})
	require.NoError(t, err)
	env.domains.referencing[created.ID] = 2

	err = env.svc.DeleteProvider(ctx, created.ID)
	assert.ErrorIs(t, err, er.ErrProviderInUse)
	assert.Empty(t, env.providers.deleted)

	stored, err := env.svc.GetProvider(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestDeleteProvider_Unreferenced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "cf",
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"apiToken":"tok"}`,
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteProvider(ctx, created.ID))
	assert.Equal(t, []uint64{created.ID}, env.providers.deleted)

	err = env.svc.DeleteProvider(ctx, created.ID)
	assert.ErrorIs(t, err, er.ErrProviderNotFound)
}

func TestUpdateCredentials_ReEncrypts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "aws",
		ProviderType: enum.DnsProviderRoute53,
		Credentials:  `{"accessKeyId":"AKIA1","secretAccessKey":"old","region":"us-east-1"}`,
	})
	require.NoError(t, err)

	err = env.svc.UpdateCredentials(ctx, created.ID, `{"accessKeyId":"AKIA2","secretAccessKey":"new","region":"us-east-1"}`)
	require.NoError(t, err)

	plain, err := env.vault.Decrypt(env.providers.providers[created.ID].Credentials)
	require.NoError(t, err)
	assert.Contains(t, plain, "AKIA2")

	err = env.svc.UpdateCredentials(ctx, created.ID, `{"accessKeyId":"AKIA3"}`)
	assert.ErrorIs(t, err, er.ErrInvalidInput)
}

func TestWorkerHostFor_CloudflareOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	aws, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "aws",
		ProviderType: enum.DnsProviderRoute53,
		Credentials:  `{"accessKeyId":"AKIA","secretAccessKey":"sec","region":"us-east-1"}`,
	})
	require.NoError(t, err)

	_, err = env.svc.WorkerHostFor(ctx, aws.ID)
	assert.ErrorIs(t, err, er.ErrProviderNotSupported)

	noAccount, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "cf-no-account",
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"apiToken":"tok"}`,
	})
	require.NoError(t, err)

	_, err = env.svc.WorkerHostFor(ctx, noAccount.ID)
	assert.ErrorIs(t, err, er.ErrProviderNotConfigured)

	full, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "cf-full",
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"apiToken":"tok","accountId":"acc"}`,
	})
	require.NoError(t, err)

	host, err := env.svc.WorkerHostFor(ctx, full.ID)
	require.NoError(t, err)
	assert.NotNil(t, host)
}

func TestWorkerHostFor_ConfigAccountFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	svc := NewProviderService(
		&config.CloudflareConfig{
			Url:       "https://api.cloudflare.test/client/v4",
			AccountID: "acc-from-config",
		},
		testLogger(),
		&repository.Repositories{
			DnsProviderRepository: env.providers,
			DomainRepository:      env.domains,
		},
		env.vault,
		env.resolver,
	)

	created, err := svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "cf-no-account",
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"apiToken":"tok"}`,
	})
	require.NoError(t, err)

	host, err := svc.WorkerHostFor(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, host)
}

func TestGatewayFor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cf, err := env.svc.CreateProvider(ctx, interfaces.CreateProviderRequest{
		Name:         "cf",
		ProviderType: enum.DnsProviderCloudflare,
		Credentials:  `{"apiToken":"tok"}`,
	})
	require.NoError(t, err)

	gateway, err := env.svc.GatewayFor(ctx, cf.ID)
	require.NoError(t, err)
	assert.NotNil(t, gateway)

	_, err = env.svc.GatewayFor(ctx, 404)
	assert.ErrorIs(t, err, er.ErrProviderNotFound)
}

func TestDetectProviderType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.resolver.ns["cf.example"] = []string{"ada.ns.cloudflare.com.", "bob.ns.cloudflare.com."}
	env.resolver.ns["aws.example"] = []string{"ns-123.awsdns-45.org."}
	env.resolver.ns["other.example"] = []string{"dns1.registrar-servers.com."}

	assert.Equal(t, enum.DnsProviderCloudflare, env.svc.DetectProviderType(ctx, "cf.example"))
	assert.Equal(t, enum.DnsProviderRoute53, env.svc.DetectProviderType(ctx, "aws.example"))
	assert.Equal(t, enum.DnsProviderUnknown, env.svc.DetectProviderType(ctx, "other.example"))
	assert.Equal(t, enum.DnsProviderUnknown, env.svc.DetectProviderType(ctx, "nxdomain.example"))
}
