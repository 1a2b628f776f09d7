package mta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/robinmail/dnsguard/config"
	"github.com/robinmail/dnsguard/interfaces"
	"github.com/robinmail/dnsguard/internal/enum"
	"github.com/robinmail/dnsguard/internal/logger"
	"github.com/robinmail/dnsguard/internal/tracing"
)

type mtaClient struct {
	cfg        *config.MtaConfig
	log        logger.Logger
	httpClient *http.Client
}

// NewMtaClient returns a client for the mail-transfer-agent's configuration
// endpoint.
func NewMtaClient(cfg *config.MtaConfig, log logger.Logger) interfaces.MtaClient {
	return &mtaClient{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type signingConfigRequest struct {
	Domain     string `json:"domain"`
	Selector   string `json:"selector"`
	PrivateKey string `json:"privateKey"`
	Algorithm  string `json:"algorithm"`
}

// ConfigureSigning hands the decrypted private key to the MTA over a single
// authenticated request. The key is never persisted on this side of the call.
func (c *mtaClient) ConfigureSigning(ctx context.Context, domain, selector, privateKeyBase64 string, algorithm enum.DkimAlgorithm) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MtaClient.ConfigureSigning")
	defer span.Finish()
	span.LogKV("domain", domain, "selector", selector)

	if c.cfg.Url == "" {
		err := errors.New("MTA URL is not configured")
		tracing.TraceErr(span, err)
		return err
	}

	payload := signingConfigRequest{
		Domain:     domain,
		Selector:   selector,
		PrivateKey: privateKeyBase64,
		Algorithm:  algorithm.DnsTag(),
	}

	return c.post(ctx, c.cfg.Url+"/config/dkim", payload)
}

// ReloadConfig tells the MTA to re-read its configuration sections.
func (c *mtaClient) ReloadConfig(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MtaClient.ReloadConfig")
	defer span.Finish()

	if c.cfg.Url == "" {
		err := errors.New("MTA URL is not configured")
		tracing.TraceErr(span, err)
		return err
	}

	return c.post(ctx, c.cfg.Url+"/config/reload", struct{}{})
}

func (c *mtaClient) post(ctx context.Context, url string, payload interface{}) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "MtaClient.post")
	defer span.Finish()

	body, err := json.Marshal(payload)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.ApiKey != "" {
		req.Header.Set("X-API-KEY", c.cfg.ApiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "failed to call MTA"))
		return errors.Wrap(err, "failed to call MTA")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		err = fmt.Errorf("MTA returned status %d: %s", resp.StatusCode, string(respBody))
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
