package cloudflare

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/robinmail/dnsguard/interfaces"
	er "github.com/robinmail/dnsguard/internal/errors"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/tracing"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

// Client talks to the Cloudflare v4 API with a bearer token. It implements
// both the generic DNS gateway and the worker-host capabilities.
type Client struct {
	baseURL    string
	apiToken   string
	accountID  string
	httpClient *http.Client
	log        logger.Logger
}

func NewClient(baseURL, apiToken, accountID string, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiToken:  apiToken,
		accountID: accountID,
		log:       log,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// envelope is Cloudflare's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []apiError      `json:"errors"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e envelope) errorText() string {
	if len(e.Errors) == 0 {
		return "unknown cloudflare error"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, apiErr := range e.Errors {
		parts = append(parts, fmt.Sprintf("%d: %s", apiErr.Code, apiErr.Message))
	}
	return strings.Join(parts, "; ")
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(er.ErrUpstreamUnavailable, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, errors.Wrapf(err, "unexpected cloudflare response (status %d)", resp.StatusCode)
	}
	if !env.Success {
		return &env, errors.Errorf("cloudflare api error: %s", env.errorText())
	}
	return &env, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload interface{}) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(body))
}

type zoneResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResolveZoneID finds the zone for the domain by exact name match.
func (c *Client) ResolveZoneID(ctx context.Context, domain string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareClient.ResolveZoneID")
	defer span.Finish()
	span.LogKV("domain", domain)

	domain = strings.TrimSuffix(domain, ".")

	env, err := c.do(ctx, http.MethodGet, "/zones?name="+url.QueryEscape(domain), "", nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	var zones []zoneResult
	if err := json.Unmarshal(env.Result, &zones); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to decode zones")
	}
	for _, zone := range zones {
		if strings.EqualFold(strings.TrimSuffix(zone.Name, "."), domain) {
			return zone.ID, nil
		}
	}

	tracing.TraceErr(span, er.ErrZoneNotFound)
	return "", errors.Wrapf(er.ErrZoneNotFound, "domain %s", domain)
}

type dnsRecordPayload struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

type dnsRecordResult struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

// UpsertRecord updates the record with the same type and name when one
// exists, otherwise creates it.
func (c *Client) UpsertRecord(ctx context.Context, zoneID string, record interfaces.DnsRecordSpec) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareClient.UpsertRecord")
	defer span.Finish()
	span.LogKV("zoneId", zoneID, "type", record.Type, "name", record.Name)

	ttl := record.TTL
	if ttl == 0 {
		ttl = 1 // automatic
	}
	payload := dnsRecordPayload{
		Type:    record.Type,
		Name:    record.Name,
		Content: record.Value,
		TTL:     ttl,
	}

	existing, err := c.findRecord(ctx, zoneID, record.Type, record.Name)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	if existing != "" {
		_, err = c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, existing), payload)
		if err != nil {
			tracing.TraceErr(span, err)
			return "", err
		}
		return existing, nil
	}

	env, err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", zoneID), payload)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	var created dnsRecordResult
	if err := json.Unmarshal(env.Result, &created); err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to decode created record")
	}
	return created.ID, nil
}

func (c *Client) findRecord(ctx context.Context, zoneID, recordType, name string) (string, error) {
	records, err := c.ListRecords(ctx, zoneID)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if rec.Type == recordType && strings.EqualFold(rec.Name, strings.TrimSuffix(name, ".")) {
			return rec.ID, nil
		}
	}
	return "", nil
}

func (c *Client) DeleteRecord(ctx context.Context, zoneID, providerRecordID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareClient.DeleteRecord")
	defer span.Finish()
	span.LogKV("zoneId", zoneID, "recordId", providerRecordID)

	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, providerRecordID), "", nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (c *Client) ListRecords(ctx context.Context, zoneID string) ([]interfaces.ProviderRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareClient.ListRecords")
	defer span.Finish()
	span.LogKV("zoneId", zoneID)

	env, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/zones/%s/dns_records", zoneID), "", nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var results []dnsRecordResult
	if err := json.Unmarshal(env.Result, &results); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to decode records")
	}

	records := make([]interfaces.ProviderRecord, 0, len(results))
	for _, rec := range results {
		records = append(records, interfaces.ProviderRecord{
			ID:    rec.ID,
			Type:  rec.Type,
			Name:  rec.Name,
			Value: rec.Content,
			TTL:   rec.TTL,
		})
	}
	return records, nil
}

type kvNamespaceResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// EnsureKVNamespace creates the namespace or returns the id of an existing
// one with the same title.
func (c *Client) EnsureKVNamespace(ctx context.Context, title string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareClient.EnsureKVNamespace")
	defer span.Finish()
	span.LogKV("title", title)

	env, err := c.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("/accounts/%s/storage/kv/namespaces", c.accountID),
		map[string]string{"title": title})
	if err == nil {
		var ns kvNamespaceResult
		if decodeErr := json.Unmarshal(env.Result, &ns); decodeErr != nil {
			tracing.TraceErr(span, decodeErr)
			return "", errors.Wrap(decodeErr, "failed to decode namespace")
		}
		return ns.ID, nil
	}

	// creation failed, look for an existing namespace with this title
	listEnv, listErr := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/accounts/%s/storage/kv/namespaces", c.accountID), "", nil)
	if listErr != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	var namespaces []kvNamespaceResult
	if decodeErr := json.Unmarshal(listEnv.Result, &namespaces); decodeErr != nil {
		tracing.TraceErr(span, decodeErr)
		return "", errors.Wrap(decodeErr, "failed to decode namespaces")
	}
	for _, ns := range namespaces {
		if ns.Title == title {
			return ns.ID, nil
		}
	}

	tracing.TraceErr(span, err)
	return "", err
}

func (c *Client) WriteKVValue(ctx context.Context, namespaceID, key, value string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareClient.WriteKVValue")
	defer span.Finish()
	span.LogKV("namespaceId", namespaceID, "key", key)

	_, err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/accounts/%s/storage/kv/namespaces/%s/values/%s", c.accountID, namespaceID, url.PathEscape(key)),
		"text/plain", strings.NewReader(value))
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

type workerBinding struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	NamespaceID string `json:"namespace_id"`
}

type workerMetadata struct {
	MainModule string          `json:"main_module"`
	Bindings   []workerBinding `json:"bindings"`
}

// UploadWorkerScript deploys an ES module worker with a KV namespace bound
// under the given binding name.
func (c *Client) UploadWorkerScript(ctx context.Context, scriptName, script, kvNamespaceID, kvBinding string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareClient.UploadWorkerScript")
	defer span.Finish()
	span.LogKV("scriptName", scriptName)

	metadata := workerMetadata{
		MainModule: "worker.js",
		Bindings: []workerBinding{
			{Type: "kv_namespace", Name: kvBinding, NamespaceID: kvNamespaceID},
		},
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to marshal worker metadata")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Disposition", `form-data; name="metadata"`)
	metaHeader.Set("Content-Type", "application/json")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to build upload")
	}
	if _, err := metaPart.Write(metadataJSON); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to build upload")
	}

	scriptHeader := textproto.MIMEHeader{}
	scriptHeader.Set("Content-Disposition", `form-data; name="worker.js"; filename="worker.js"`)
	scriptHeader.Set("Content-Type", "application/javascript+module")
	scriptPart, err := writer.CreatePart(scriptHeader)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to build upload")
	}
	if _, err := scriptPart.Write([]byte(script)); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to build upload")
	}
	if err := writer.Close(); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to build upload")
	}

	_, err = c.do(ctx, http.MethodPut,
		fmt.Sprintf("/accounts/%s/workers/scripts/%s", c.accountID, scriptName),
		writer.FormDataContentType(), &buf)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// EnsureWorkerRoute binds the route pattern to the script in the domain's
// zone. An already existing identical route is treated as success.
func (c *Client) EnsureWorkerRoute(ctx context.Context, domain, pattern, scriptName string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CloudflareClient.EnsureWorkerRoute")
	defer span.Finish()
	span.LogKV("pattern", pattern, "scriptName", scriptName)

	zoneID, err := c.ResolveZoneID(ctx, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	_, err = c.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("/zones/%s/workers/routes", zoneID),
		map[string]string{"pattern": pattern, "script": scriptName})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
