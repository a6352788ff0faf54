package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Prefixes of the texts returned in place of a translation when the combined call does not
// recognize anything.
const (
	NoMatchPrefix  = "No speech could be recognized"
	CanceledPrefix = "Speech Recognition canceled"
)

const audioChunkSize = 32 * 1024

type translationPhrase struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	Text              string `json:"Text"`
	Offset            int64  `json:"Offset"`
	Duration          int64  `json:"Duration"`
	Translation       struct {
		TranslationStatus string `json:"TranslationStatus"`
		FailureReason     string `json:"FailureReason"`
		Translations      []struct {
			Language string `json:"Language"`
			Text     string `json:"Text"`
		} `json:"Translations"`
	} `json:"Translation"`
}

// RecognizeAndTranslate recognizes a single utterance from the file and translates it into
// targetLanguage in one service call. When nothing usable is recognized it returns an empty text
// and a message starting with NoMatchPrefix or CanceledPrefix instead of an error.
func (c *Client) RecognizeAndTranslate(ctx context.Context, filePath, sourceLanguage, targetLanguage string) (string, string, error) {
	if c.key == "" {
		return "", "", ErrNotConfigured
	}
	wsURL, err := c.translationURL(sourceLanguage, targetLanguage)
	if err != nil {
		return "", "", err
	}
	data, err := readAudio(filePath)
	if err != nil {
		return "", "", err
	}

	connectionID := newRequestID()
	header := http.Header{}
	header.Set("Ocp-Apim-Subscription-Key", c.key)
	header.Set("X-ConnectionId", connectionID)

	c.logger.Debug("processing audio file", zap.String("file", filePath), zap.String("connection_id", connectionID))

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return "", canceledMessage(CancellationError, fmt.Sprintf("websocket upgrade failed with status %d", resp.StatusCode)), nil
		}
		return "", "", fmt.Errorf("dial speech translation: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	requestID := newRequestID()
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- sendAudio(conn, requestID, data)
	}()

	phrase, err := c.awaitPhrase(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return "", canceledMessage(CancellationError, fmt.Sprintf("%d %s", closeErr.Code, closeErr.Text)), nil
		}
		select {
		case werr := <-writeErr:
			if werr != nil {
				return "", "", fmt.Errorf("send audio: %w", werr)
			}
		default:
		}
		return "", "", err
	}
	return phraseOutcome(phrase, targetLanguage)
}

// awaitPhrase reads service messages until the first final phrase or the end of the turn.
func (c *Client) awaitPhrase(conn *websocket.Conn) (*translationPhrase, error) {
	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		path, body := parseTextMessage(payload)
		switch path {
		case "translation.phrase", "speech.phrase":
			var phrase translationPhrase
			if err := json.Unmarshal(body, &phrase); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
			return &phrase, nil
		case "turn.end":
			return nil, nil
		default:
			c.logger.Debug("speech translation event", zap.String("path", path))
		}
	}
}

func phraseOutcome(phrase *translationPhrase, targetLanguage string) (string, string, error) {
	if phrase == nil {
		return "", noMatchMessage("NoMatch"), nil
	}
	switch phrase.RecognitionStatus {
	case "Success":
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return "", noMatchMessage(phrase.RecognitionStatus), nil
	default:
		return "", canceledMessage(CancellationError, "recognition status "+phrase.RecognitionStatus), nil
	}

	translations := phrase.Translation.Translations
	for _, t := range translations {
		if strings.EqualFold(t.Language, targetLanguage) {
			return phrase.Text, t.Text, nil
		}
	}
	if len(translations) == 1 {
		return phrase.Text, translations[0].Text, nil
	}
	reason := phrase.Translation.FailureReason
	if reason == "" {
		reason = "no translation returned for " + targetLanguage
	}
	return phrase.Text, canceledMessage(CancellationError, reason), nil
}

func noMatchMessage(details string) string {
	return NoMatchPrefix + ": " + details
}

func canceledMessage(reason, details string) string {
	msg := CanceledPrefix + ": " + reason
	if details != "" {
		msg += ": Error details: " + details
	}
	return msg
}

// sendAudio writes the speech.config message followed by the file in audio frames and the empty
// end-of-stream frame.
func sendAudio(conn *websocket.Conn, requestID string, data []byte) error {
	config := map[string]any{
		"context": map[string]any{
			"system": map[string]string{"version": "1.0.0"},
			"os": map[string]string{
				"platform": runtime.GOOS,
				"name":     "go",
				"version":  runtime.Version(),
			},
			"audio": map[string]any{
				"source": map[string]string{"type": "File"},
			},
		},
	}
	body, err := json.Marshal(config)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, textMessage("speech.config", requestID, "application/json", body)); err != nil {
		return err
	}

	for offset := 0; offset < len(data); offset += audioChunkSize {
		end := offset + audioChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audioMessage(requestID, data[offset:end])); err != nil {
			return err
		}
	}
	return conn.WriteMessage(websocket.BinaryMessage, audioMessage(requestID, nil))
}

func messageHeaders(path, requestID, contentType string) string {
	var b strings.Builder
	b.WriteString("Path: " + path + "\r\n")
	b.WriteString("X-RequestId: " + requestID + "\r\n")
	b.WriteString("X-Timestamp: " + time.Now().UTC().Format("2006-01-02T15:04:05.000Z") + "\r\n")
	b.WriteString("Content-Type: " + contentType)
	return b.String()
}

func textMessage(path, requestID, contentType string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(messageHeaders(path, requestID, contentType))
	buf.WriteString("\r\n\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// audioMessage frames a chunk as a 2-byte big endian header length, the header, then the audio.
func audioMessage(requestID string, chunk []byte) []byte {
	headers := messageHeaders("audio", requestID, "audio/x-wav") + "\r\n"
	buf := make([]byte, 2, 2+len(headers)+len(chunk))
	binary.BigEndian.PutUint16(buf, uint16(len(headers)))
	buf = append(buf, headers...)
	return append(buf, chunk...)
}

// parseTextMessage splits a text frame into its Path header and body.
func parseTextMessage(payload []byte) (string, []byte) {
	head, body, found := bytes.Cut(payload, []byte("\r\n\r\n"))
	if !found {
		head, body = payload, nil
	}
	var path string
	for _, line := range strings.Split(string(head), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Path") {
			path = strings.ToLower(strings.TrimSpace(value))
		}
	}
	return path, body
}

func newRequestID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
