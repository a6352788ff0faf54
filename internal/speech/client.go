// Package speech talks to Azure AI Speech. The combined recognize-and-translate call uses the
// speech translation websocket protocol; recognize-only uses the short-audio REST endpoint.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ncecere/speech_analysis/backend/internal/config"
	"github.com/ncecere/speech_analysis/backend/internal/logging"
)

var ErrNotConfigured = errors.New("Azure Speech credentials not configured.")

const (
	recognitionPath = "/speech/recognition/conversation/cognitiveservices/v1"
	translationPath = "/speech/translation/cognitiveservices/v1"
	tokenPath       = "/sts/v1.0/issueToken"

	cognitiveHostSuffix = ".api.cognitive.microsoft.com"
)

// Client implements both speech operations against one Speech resource.
type Client struct {
	key            string
	region         string
	endpoint       string
	recognitionURL string
	timeout        time.Duration
	httpClient     *http.Client
	dialer         *websocket.Dialer
	logger         *zap.Logger
}

// New builds a client from the speech configuration. Missing credentials are reported by the
// individual operations.
func New(cfg config.SpeechConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		key:            strings.TrimSpace(cfg.Key),
		region:         strings.TrimSpace(cfg.Region),
		endpoint:       strings.TrimSuffix(strings.TrimSpace(cfg.Endpoint), "/"),
		recognitionURL: strings.TrimSuffix(strings.TrimSpace(cfg.RecognitionURL), "/"),
		timeout:        timeout,
		httpClient:     &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		logger: logging.OrNop(logger),
	}
}

// recognitionBase returns the scheme+host used by the short-audio REST call.
func (c *Client) recognitionBase() (string, error) {
	if c.recognitionURL != "" {
		return c.recognitionURL, nil
	}
	if c.region == "" {
		return "", ErrNotConfigured
	}
	return fmt.Sprintf("https://%s.stt.speech.microsoft.com", c.region), nil
}

// translationURL derives the websocket URL for the combined call. A cognitive services endpoint
// (https://<region>.api.cognitive.microsoft.com) maps to the regional s2s host; any other endpoint
// is used as given with its scheme switched to ws/wss.
func (c *Client) translationURL(sourceLanguage, targetLanguage string) (string, error) {
	var u *url.URL
	switch {
	case c.endpoint != "":
		parsed, err := url.Parse(c.endpoint)
		if err != nil {
			return "", fmt.Errorf("parse speech endpoint: %w", err)
		}
		if parsed.Host == "" {
			return "", fmt.Errorf("speech endpoint %q has no host", c.endpoint)
		}
		u = parsed
		if strings.HasSuffix(u.Hostname(), cognitiveHostSuffix) {
			region := strings.TrimSuffix(u.Hostname(), cognitiveHostSuffix)
			u.Host = region + ".s2s.speech.microsoft.com"
			u.Path = ""
		}
	case c.region != "":
		u = &url.URL{Scheme: "wss", Host: c.region + ".s2s.speech.microsoft.com"}
	default:
		return "", ErrNotConfigured
	}

	switch u.Scheme {
	case "https", "wss", "":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported speech endpoint scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = translationPath
	}

	q := u.Query()
	q.Set("from", sourceLanguage)
	q.Set("to", targetLanguage)
	q.Set("format", "simple")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Probe issues a short-lived access token, which checks both reachability and the key.
func (c *Client) Probe(ctx context.Context) error {
	if c.key == "" {
		return ErrNotConfigured
	}
	var base string
	switch {
	case c.endpoint != "":
		base = c.endpoint
	case c.region != "":
		base = "https://" + c.region + cognitiveHostSuffix
	default:
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+tokenPath, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("issue token: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// audioContentType picks the REST content type for the clip on disk.
func audioContentType(path string, head []byte) string {
	if bytes.HasPrefix(head, []byte("OggS")) || strings.EqualFold(filepath.Ext(path), ".ogg") {
		return "audio/ogg; codecs=opus"
	}
	return "audio/wav; codecs=audio/pcm; samplerate=16000"
}

func readAudio(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return data, nil
}
