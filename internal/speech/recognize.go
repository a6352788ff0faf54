package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ncecere/speech_analysis/backend/internal/models"
)

// CancellationError is the cancellation reason reported for service side failures.
const CancellationError = "Error"

type simpleRecognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Offset            int64  `json:"Offset"`
	Duration          int64  `json:"Duration"`
}

// RecognizeOnly transcribes the file at filePath. NoMatch and Canceled outcomes are reported in
// the result; an error means the call itself could not be made.
func (c *Client) RecognizeOnly(ctx context.Context, filePath, sourceLanguage string) (models.RecognitionResult, error) {
	if c.key == "" {
		return models.RecognitionResult{}, ErrNotConfigured
	}
	base, err := c.recognitionBase()
	if err != nil {
		return models.RecognitionResult{}, err
	}

	data, err := readAudio(filePath)
	if err != nil {
		return models.RecognitionResult{}, err
	}

	params := url.Values{}
	params.Set("language", sourceLanguage)
	params.Set("format", "simple")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+recognitionPath+"?"+params.Encode(), bytes.NewReader(data))
	if err != nil {
		return models.RecognitionResult{}, fmt.Errorf("build recognition request: %w", err)
	}
	head := data
	if len(head) > 4 {
		head = head[:4]
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", audioContentType(filePath, head))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.RecognitionResult{}, fmt.Errorf("speech recognition request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.RecognitionResult{}, fmt.Errorf("read recognition response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		details := fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			details += ": " + trimmed
		}
		c.logger.Error("speech recognition rejected", zap.Int("status", resp.StatusCode), zap.String("details", details))
		return models.Canceled(CancellationError, details), nil
	}

	var decoded simpleRecognitionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return models.RecognitionResult{}, fmt.Errorf("decode recognition response: %w", err)
	}
	return mapRecognitionStatus(decoded.RecognitionStatus, decoded.DisplayText), nil
}

// mapRecognitionStatus folds the service's RecognitionStatus values into the three outcomes.
func mapRecognitionStatus(status, text string) models.RecognitionResult {
	switch status {
	case "Success":
		return models.Recognized(text)
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return models.NoMatch(status)
	case "EndOfDictation":
		return models.Canceled("EndOfStream", "")
	case "Error":
		return models.Canceled(CancellationError, "recognition service reported an error")
	default:
		return models.RecognitionResult{Reason: models.RecognitionReason(strings.ToLower(status))}
	}
}
