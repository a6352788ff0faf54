// Package translator is a thin client for the Azure Translator REST API (v3).
package translator

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ncecere/speech_analysis/backend/internal/config"
	"github.com/ncecere/speech_analysis/backend/internal/logging"
)

const apiVersion = "3.0"

// FailedText is returned when the service answers without a translation.
const FailedText = "Translation failed"

var ErrNotConfigured = errors.New("Azure Translator credentials not configured.")

// Client translates text with a single-item batch request per call.
type Client struct {
	httpClient *http.Client
	endpoint   string
	key        string
	region     string
	logger     *zap.Logger
}

// New builds a client from the translator configuration. Missing credentials are reported by
// Translate, not here.
func New(cfg config.TranslatorConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		// Certificate verification is off only when explicitly configured.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		key:        cfg.Key,
		region:     cfg.Region,
		logger:     logging.OrNop(logger),
	}
}

type textItem struct {
	Text string `json:"Text"`
}

type translateResponse []struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// Translate converts text from sourceLanguage ("en" when empty) into targetLanguage.
// Non-2xx responses and transport failures are returned as errors.
func (c *Client) Translate(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error) {
	if c.key == "" || c.endpoint == "" {
		return "", ErrNotConfigured
	}
	if sourceLanguage == "" {
		sourceLanguage = "en"
	}

	params := url.Values{}
	params.Set("api-version", apiVersion)
	params.Set("from", sourceLanguage)
	params.Add("to", targetLanguage)

	body, err := json.Marshal([]textItem{{Text: text}})
	if err != nil {
		return "", fmt.Errorf("encode translation body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/translate?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("Translation request failed: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("translation request error", zap.Error(err))
		return "", fmt.Errorf("Translation request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("Translation request failed: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("Translation request failed: %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(payload)))
		c.logger.Error("translation request error", zap.Int("status", resp.StatusCode), zap.Error(err))
		return "", err
	}

	var decoded translateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("Translation error: decode response: %w", err)
	}
	if len(decoded) == 0 || len(decoded[0].Translations) == 0 {
		c.logger.Warn("no translation result received", zap.String("target_language", targetLanguage))
		return FailedText, nil
	}
	return decoded[0].Translations[0].Text, nil
}

// Languages fetches the supported translation languages. It doubles as a reachability probe and
// does not require credentials.
func (c *Client) Languages(ctx context.Context) ([]string, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/languages?api-version="+apiVersion+"&scope=translation", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-ClientTraceId", uuid.NewString())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("languages request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("languages request: unexpected status %d", resp.StatusCode)
	}
	var decoded struct {
		Translation map[string]json.RawMessage `json:"translation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode languages: %w", err)
	}
	codes := make([]string, 0, len(decoded.Translation))
	for code := range decoded.Translation {
		codes = append(codes, code)
	}
	return codes, nil
}

// Probe satisfies the health monitor's check signature.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Languages(ctx)
	return err
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("X-ClientTraceId", uuid.NewString())
	if c.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", c.region)
	}
}
