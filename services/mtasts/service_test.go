package mtasts

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinmail/dnsguard/interfaces"
	"github.com/robinmail/dnsguard/internal/enum"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/models"
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/internal/utils"
)

type fakeResolver struct {
	mx map[string][]interfaces.MXRecord
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) []string { return nil }
func (f *fakeResolver) LookupMX(ctx context.Context, name string) []interfaces.MXRecord {
	return f.mx[name]
}
func (f *fakeResolver) LookupNS(ctx context.Context, name string) []string  { return nil }
func (f *fakeResolver) LookupCNAME(ctx context.Context, name string) string { return "" }
func (f *fakeResolver) LookupA(ctx context.Context, name string) []string   { return nil }

type fakeDomainRepo struct {
	repository.DomainRepository
	domains map[uint64]*models.Domain
}

func (f *fakeDomainRepo) GetDomainByID(ctx context.Context, id uint64) (*models.Domain, error) {
	return f.domains[id], nil
}

type fakeProviderRepo struct {
	repository.DnsProviderRepository
	providers map[uint64]*models.DnsProvider
}

func (f *fakeProviderRepo) GetByID(ctx context.Context, id uint64) (*models.DnsProvider, error) {
	return f.providers[id], nil
}

type fakeWorkerRepo struct {
	repository.MtaStsWorkerRepository
	workers map[uint64]*models.MtaStsWorker
	nextID  uint64
}

func (f *fakeWorkerRepo) Create(ctx context.Context, worker *models.MtaStsWorker) error {
	f.nextID++
	worker.ID = f.nextID
	copied := *worker
	f.workers[worker.DomainID] = &copied
	return nil
}

func (f *fakeWorkerRepo) GetByDomain(ctx context.Context, domainID uint64) (*models.MtaStsWorker, error) {
	worker, ok := f.workers[domainID]
	if !ok {
		return nil, nil
	}
	copied := *worker
	return &copied, nil
}

func (f *fakeWorkerRepo) Update(ctx context.Context, worker *models.MtaStsWorker) error {
	copied := *worker
	f.workers[worker.DomainID] = &copied
	return nil
}

func (f *fakeWorkerRepo) byID(id uint64) *models.MtaStsWorker {
	for _, worker := range f.workers {
		if worker.ID == id {
			return worker
		}
	}
	return nil
}

func (f *fakeWorkerRepo) MarkDeployed(ctx context.Context, id uint64, policyID string) error {
	worker := f.byID(id)
	worker.Status = enum.MtaStsWorkerDeployed
	worker.PolicyID = policyID
	worker.LastError = ""
	return nil
}

func (f *fakeWorkerRepo) MarkError(ctx context.Context, id uint64, deployErr string) error {
	worker := f.byID(id)
	worker.Status = enum.MtaStsWorkerError
	worker.LastError = deployErr
	return nil
}

type fakeRecordRepo struct {
	repository.DomainDnsRecordRepository
	saved []models.DomainDnsRecord
}

func (f *fakeRecordRepo) Save(ctx context.Context, record *models.DomainDnsRecord) error {
	f.saved = append(f.saved, *record)
	return nil
}

type fakeWorkerHost struct {
	namespaces map[string]string
	kvWrites   map[string]string
	scripts    map[string]string
	routes     []string
	uploadErr  error
}

func (f *fakeWorkerHost) EnsureKVNamespace(ctx context.Context, title string) (string, error) {
	id := "ns-" + title
	f.namespaces[title] = id
	return id, nil
}

func (f *fakeWorkerHost) WriteKVValue(ctx context.Context, namespaceID, key, value string) error {
	f.kvWrites[namespaceID+"/"+key] = value
	return nil
}

func (f *fakeWorkerHost) UploadWorkerScript(ctx context.Context, scriptName, script, kvNamespaceID, kvBinding string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.scripts[scriptName] = kvNamespaceID + ":" + kvBinding
	return nil
}

func (f *fakeWorkerHost) EnsureWorkerRoute(ctx context.Context, domain, pattern, scriptName string) error {
	f.routes = append(f.routes, pattern+"->"+scriptName)
	return nil
}

type fakeGateway struct {
	upserts []interfaces.DnsRecordSpec
}

func (f *fakeGateway) ResolveZoneID(ctx context.Context, domain string) (string, error) {
	return "zone-1", nil
}

func (f *fakeGateway) UpsertRecord(ctx context.Context, zoneID string, record interfaces.DnsRecordSpec) (string, error) {
	f.upserts = append(f.upserts, record)
	return fmt.Sprintf("rec-%d", len(f.upserts)), nil
}

func (f *fakeGateway) DeleteRecord(ctx context.Context, zoneID, providerRecordID string) error {
	return nil
}

func (f *fakeGateway) ListRecords(ctx context.Context, zoneID string) ([]interfaces.ProviderRecord, error) {
	return nil, nil
}

type fakeProviderService struct {
	interfaces.ProviderService
	workerHost *fakeWorkerHost
	gateway    *fakeGateway
}

func (f *fakeProviderService) WorkerHostFor(ctx context.Context, providerID uint64) (interfaces.WorkerHost, error) {
	return f.workerHost, nil
}

func (f *fakeProviderService) GatewayFor(ctx context.Context, providerID uint64) (interfaces.DnsProviderGateway, error) {
	return f.gateway, nil
}

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type testEnv struct {
	svc        interfaces.MtaStsService
	workerRepo *fakeWorkerRepo
	recordRepo *fakeRecordRepo
	workerHost *fakeWorkerHost
	gateway    *fakeGateway
}

func newTestEnv(providerType enum.DnsProviderType) *testEnv {
	providerID := uint64(7)
	domainRepo := &fakeDomainRepo{domains: map[uint64]*models.Domain{
		1: {ID: 1, Domain: "example.com", DnsProviderID: &providerID, Status: enum.DomainStatusActive},
	}}
	providerRepo := &fakeProviderRepo{providers: map[uint64]*models.DnsProvider{
		7: {ID: 7, Name: "cf-main", ProviderType: providerType},
	}}
	workerRepo := &fakeWorkerRepo{workers: map[uint64]*models.MtaStsWorker{}}
	recordRepo := &fakeRecordRepo{}
	workerHost := &fakeWorkerHost{
		namespaces: map[string]string{},
		kvWrites:   map[string]string{},
		scripts:    map[string]string{},
	}
	gateway := &fakeGateway{}
	resolver := &fakeResolver{mx: map[string][]interfaces.MXRecord{
		"example.com": {{Host: "mx1.example.com", Priority: 10}, {Host: "mx2.example.com", Priority: 20}},
	}}

	svc := NewMtaStsService(testLogger(), &repository.Repositories{
		DomainRepository:          domainRepo,
		DnsProviderRepository:     providerRepo,
		MtaStsWorkerRepository:    workerRepo,
		DomainDnsRecordRepository: recordRepo,
	}, &fakeProviderService{workerHost: workerHost, gateway: gateway}, resolver)

	return &testEnv{svc: svc, workerRepo: workerRepo, recordRepo: recordRepo, workerHost: workerHost, gateway: gateway}
}

func TestDeploy_FullStack(t *testing.T) {
	env := newTestEnv(enum.DnsProviderCloudflare)

	worker, err := env.svc.Deploy(context.Background(), 1, enum.MtaStsPolicyTesting)
	require.NoError(t, err)
	assert.Equal(t, enum.MtaStsWorkerDeployed, worker.Status)
	assert.Equal(t, "mta-sts-example-com", worker.ScriptName)
	assert.Empty(t, worker.LastError)

	// Policy id is the deploy timestamp in unix seconds.
	policyID, err := strconv.ParseInt(worker.PolicyID, 10, 64)
	require.NoError(t, err)
	assert.InDelta(t, utils.Now().Unix(), policyID, 60)

	// KV namespace, policy value, script binding and route are all in place.
	namespaceID := env.workerHost.namespaces["mta-sts-example.com"]
	require.NotEmpty(t, namespaceID)
	policy := env.workerHost.kvWrites[namespaceID+"/policy"]
	assert.Contains(t, policy, "version: STSv1\n")
	assert.Contains(t, policy, "mode: testing\n")
	assert.Contains(t, policy, "max_age: 86400\n")
	assert.Contains(t, policy, "mx: mx1.example.com\n")
	assert.Contains(t, policy, "mx: mx2.example.com\n")
	assert.Equal(t, namespaceID+":POLICY_KV", env.workerHost.scripts["mta-sts-example-com"])
	require.Len(t, env.workerHost.routes, 1)
	assert.Equal(t, "mta-sts.example.com/.well-known/mta-sts.txt->mta-sts-example-com", env.workerHost.routes[0])

	// TXT announcement plus the best-effort A record.
	require.Len(t, env.gateway.upserts, 2)
	assert.Equal(t, "TXT", env.gateway.upserts[0].Type)
	assert.Equal(t, "_mta-sts.example.com", env.gateway.upserts[0].Name)
	assert.Equal(t, "v=STSv1; id="+worker.PolicyID, env.gateway.upserts[0].Value)
	assert.Equal(t, "A", env.gateway.upserts[1].Type)
	assert.Equal(t, "mta-sts.example.com", env.gateway.upserts[1].Name)
	assert.Equal(t, "192.0.2.1", env.gateway.upserts[1].Value)
	require.Len(t, env.recordRepo.saved, 2)
	assert.True(t, env.recordRepo.saved[0].Managed)
	assert.True(t, env.recordRepo.saved[1].Managed)
}

func TestDeploy_PolicyFallsBackWhenNoMx(t *testing.T) {
	env := newTestEnv(enum.DnsProviderCloudflare)
	svc := env.svc.(*mtaStsService)
	svc.resolver = &fakeResolver{mx: map[string][]interfaces.MXRecord{}}

	_, err := env.svc.Deploy(context.Background(), 1, enum.MtaStsPolicyEnforce)
	require.NoError(t, err)

	namespaceID := env.workerHost.namespaces["mta-sts-example.com"]
	policy := env.workerHost.kvWrites[namespaceID+"/policy"]
	assert.Contains(t, policy, "mode: enforce\n")
	assert.Contains(t, policy, "mx: mx.example.com\n")
}

func TestDeploy_RejectsNonCloudflareProvider(t *testing.T) {
	env := newTestEnv(enum.DnsProviderRoute53)

	_, err := env.svc.Deploy(context.Background(), 1, enum.MtaStsPolicyTesting)
	require.Error(t, err)
	assert.ErrorIs(t, err, er.ErrProviderNotSupported)
	assert.Empty(t, env.workerRepo.workers)
}

func TestDeploy_UnknownDomain(t *testing.T) {
	env := newTestEnv(enum.DnsProviderCloudflare)

	_, err := env.svc.Deploy(context.Background(), 42, enum.MtaStsPolicyTesting)
	require.Error(t, err)
	assert.ErrorIs(t, err, er.ErrDomainNotFound)
}

func TestDeploy_FailureRecordedOnWorker(t *testing.T) {
	env := newTestEnv(enum.DnsProviderCloudflare)
	env.workerHost.uploadErr = fmt.Errorf("script too large")

	_, err := env.svc.Deploy(context.Background(), 1, enum.MtaStsPolicyTesting)
	require.Error(t, err)

	worker := env.workerRepo.workers[1]
	require.NotNil(t, worker)
	assert.Equal(t, enum.MtaStsWorkerError, worker.Status)
	assert.Contains(t, worker.LastError, "script too large")
	// Nothing past the failed step ran.
	assert.Empty(t, env.workerHost.routes)
	assert.Empty(t, env.gateway.upserts)
}

func TestDeploy_RetryAfterFailureSucceeds(t *testing.T) {
	env := newTestEnv(enum.DnsProviderCloudflare)
	env.workerHost.uploadErr = fmt.Errorf("transient")

	_, err := env.svc.Deploy(context.Background(), 1, enum.MtaStsPolicyTesting)
	require.Error(t, err)

	env.workerHost.uploadErr = nil
	worker, err := env.svc.Deploy(context.Background(), 1, enum.MtaStsPolicyTesting)
	require.NoError(t, err)
	assert.Equal(t, enum.MtaStsWorkerDeployed, worker.Status)
	assert.Empty(t, worker.LastError)
	// The retry reuses the existing worker row.
	assert.Len(t, env.workerRepo.workers, 1)
}

func TestUpdateMode_RequiresExistingWorker(t *testing.T) {
	env := newTestEnv(enum.DnsProviderCloudflare)

	_, err := env.svc.UpdateMode(context.Background(), 1, enum.MtaStsPolicyEnforce)
	require.Error(t, err)
	assert.ErrorIs(t, err, er.ErrMtaStsWorkerNotFound)
}

func TestUpdateMode_RewritesPolicyAndBumpsId(t *testing.T) {
	env := newTestEnv(enum.DnsProviderCloudflare)

	_, err := env.svc.Deploy(context.Background(), 1, enum.MtaStsPolicyTesting)
	require.NoError(t, err)

	updated, err := env.svc.UpdateMode(context.Background(), 1, enum.MtaStsPolicyEnforce)
	require.NoError(t, err)
	assert.Equal(t, enum.MtaStsPolicyEnforce, updated.Mode)
	assert.Equal(t, enum.MtaStsWorkerDeployed, updated.Status)

	namespaceID := env.workerHost.namespaces["mta-sts-example.com"]
	policy := env.workerHost.kvWrites[namespaceID+"/policy"]
	assert.Contains(t, policy, "mode: enforce\n")

	// The script was uploaded only once; mode changes do not redeploy it.
	assert.Len(t, env.workerHost.scripts, 1)
	// A fresh TXT announcement was published.
	txtCount := 0
	for _, record := range env.gateway.upserts {
		if record.Type == "TXT" {
			txtCount++
		}
	}
	assert.Equal(t, 2, txtCount)
}

func TestGet(t *testing.T) {
	env := newTestEnv(enum.DnsProviderCloudflare)

	_, err := env.svc.Get(context.Background(), 1)
	assert.ErrorIs(t, err, er.ErrMtaStsWorkerNotFound)

	_, err = env.svc.Deploy(context.Background(), 1, enum.MtaStsPolicyTesting)
	require.NoError(t, err)

	worker, err := env.svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), worker.DomainID)
}