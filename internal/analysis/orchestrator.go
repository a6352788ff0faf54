// Package analysis turns an uploaded clip into a transcription/translation pair. It tries the
// combined recognize-and-translate call first and falls back to recognize-only plus a separate
// translation.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ncecere/speech_analysis/backend/internal/config"
	"github.com/ncecere/speech_analysis/backend/internal/logging"
	"github.com/ncecere/speech_analysis/backend/internal/models"
	"github.com/ncecere/speech_analysis/backend/internal/speech"
	"github.com/ncecere/speech_analysis/backend/internal/storage/scratch"
	"github.com/ncecere/speech_analysis/backend/internal/translator"
)

const (
	msgNotAudio       = "File must be an audio file"
	msgTooLarge       = "Audio size must be less than 120MB"
	msgNoMatch        = "No speech could be recognized. Please try speaking louder or closer to the microphone."
	msgUnknownReason  = "Speech recognition failed with unknown reason"
	msgSkipped        = "Translation skipped: no text was recognized"
	translationErrPfx = "Translation error: "

	recognitionLanguage = "en-US"
)

// SpeechService performs the recognition calls.
type SpeechService interface {
	RecognizeAndTranslate(ctx context.Context, filePath, sourceLanguage, targetLanguage string) (string, string, error)
	RecognizeOnly(ctx context.Context, filePath, sourceLanguage string) (models.RecognitionResult, error)
}

// Translator translates recognized text.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error)
}

// Recorder receives per-analysis metrics. A nil Recorder is ignored.
type Recorder interface {
	RecordVendorCall(operation, outcome string, duration time.Duration)
	RecordAnalysis(path models.AnalysisPath, outcome string)
}

// Orchestrator runs analyses. It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	speech            SpeechService
	translator        Translator
	recorder          Recorder
	logger            *zap.Logger
	tempDir           string
	maxBytes          int
	sourceLanguage    string
	translationSource string
	defaultTarget     string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New builds an orchestrator from the audio configuration.
func New(speechSvc SpeechService, translatorSvc Translator, cfg config.AudioConfig, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		speech:            speechSvc,
		translator:        translatorSvc,
		logger:            logging.OrNop(logger),
		tempDir:           cfg.TempDir,
		maxBytes:          cfg.MaxUploadBytes,
		sourceLanguage:    cfg.SourceLanguage,
		translationSource: cfg.TranslationSource,
		defaultTarget:     cfg.DefaultTargetLanguage,
	}
	if o.maxBytes <= 0 {
		o.maxBytes = config.DefaultMaxUploadBytes
	}
	if o.sourceLanguage == "" {
		o.sourceLanguage = recognitionLanguage
	}
	if o.translationSource == "" {
		o.translationSource = "en"
	}
	if o.defaultTarget == "" {
		o.defaultTarget = "es"
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxBytes is the largest clip Analyze accepts.
func (o *Orchestrator) MaxBytes() int {
	return o.maxBytes
}

// ValidateClip checks the declared content type and the payload size.
func ValidateClip(contentType string, size, max int) error {
	if !strings.HasPrefix(contentType, "audio/") {
		return newError(KindInvalidInput, msgNotAudio, nil)
	}
	if size > max {
		return newError(KindInvalidInput, msgTooLarge, nil)
	}
	return nil
}

// IsUsable reports whether a combined call produced a real transcription/translation pair.
func IsUsable(transcription, translation string) bool {
	if transcription == "" || translation == "" {
		return false
	}
	return !strings.HasPrefix(translation, speech.CanceledPrefix) &&
		!strings.HasPrefix(translation, speech.NoMatchPrefix)
}

// Analyze validates the clip, stores it in a scoped temporary file and runs the combined call,
// falling back to recognize-only and a separate translation when the combined result is unusable.
func (o *Orchestrator) Analyze(ctx context.Context, clip models.AudioClip, targetLanguage string) (models.AnalysisResult, error) {
	if err := ValidateClip(clip.ContentType, clip.Size(), o.maxBytes); err != nil {
		return models.AnalysisResult{}, err
	}
	if strings.TrimSpace(targetLanguage) == "" {
		targetLanguage = o.defaultTarget
	}

	file, err := scratch.Acquire(o.tempDir, "speech-*.wav", clip.Data)
	if err != nil {
		return models.AnalysisResult{}, newError(KindInternal, "Error processing audio: "+err.Error(), err)
	}
	defer file.Release(o.logger)

	log := o.logger.With(zap.String("file", clip.Filename), zap.String("target_language", targetLanguage))

	if result, ok := o.tryCombined(ctx, log, file.Path(), targetLanguage); ok {
		o.recordAnalysis(models.AnalysisPathCombined, "success")
		return result, nil
	}

	log.Info("falling back to recognition followed by translation")
	result, err := o.fallback(ctx, log, file.Path(), targetLanguage)
	if err != nil {
		var aerr *Error
		if errors.As(err, &aerr) {
			o.recordAnalysis(models.AnalysisPathFallback, aerr.Kind.String())
		}
		return models.AnalysisResult{}, err
	}
	o.recordAnalysis(models.AnalysisPathFallback, "success")
	return result, nil
}

func (o *Orchestrator) tryCombined(ctx context.Context, log *zap.Logger, path, target string) (models.AnalysisResult, bool) {
	start := time.Now()
	text, translated, err := o.speech.RecognizeAndTranslate(ctx, path, o.sourceLanguage, target)
	if err != nil {
		o.recordVendor("recognize_translate", "error", start)
		log.Warn("combined recognition failed", zap.Error(err))
		return models.AnalysisResult{}, false
	}
	if !IsUsable(text, translated) {
		o.recordVendor("recognize_translate", "unusable", start)
		log.Info("combined recognition unusable", zap.String("result", translated))
		return models.AnalysisResult{}, false
	}
	o.recordVendor("recognize_translate", "success", start)
	log.Debug("combined recognition succeeded", zap.Int("transcription_len", len(text)))
	return models.AnalysisResult{
		Transcription:  text,
		Translation:    translated,
		TargetLanguage: target,
		Path:           models.AnalysisPathCombined,
	}, true
}

func (o *Orchestrator) fallback(ctx context.Context, log *zap.Logger, path, target string) (models.AnalysisResult, error) {
	start := time.Now()
	recognition, err := o.speech.RecognizeOnly(ctx, path, o.sourceLanguage)
	if err != nil {
		o.recordVendor("recognize", "error", start)
		return models.AnalysisResult{}, classifyCallError(err)
	}
	o.recordVendor("recognize", string(recognition.Reason), start)

	switch recognition.Reason {
	case models.RecognitionRecognized:
	case models.RecognitionNoMatch:
		log.Info("no speech recognized", zap.String("details", recognition.NoMatchDetails))
		return models.AnalysisResult{}, newError(KindNoMatch, msgNoMatch, nil)
	case models.RecognitionCanceled:
		msg := "Speech recognition canceled: " + recognition.CancellationReason
		if recognition.ErrorDetails != "" {
			msg += ". Details: " + recognition.ErrorDetails
		}
		log.Error("speech recognition canceled", zap.String("reason", recognition.CancellationReason), zap.String("details", recognition.ErrorDetails))
		return models.AnalysisResult{}, newError(KindCanceled, msg, nil)
	default:
		return models.AnalysisResult{}, newError(KindInternal, msgUnknownReason, nil)
	}

	translation := msgSkipped
	if strings.TrimSpace(recognition.Text) != "" {
		start = time.Now()
		translated, err := o.translator.Translate(ctx, recognition.Text, target, o.translationSource)
		if err != nil {
			o.recordVendor("translate", "error", start)
			log.Error("translation failed", zap.Error(err))
			translation = translationErrPfx + err.Error()
		} else {
			o.recordVendor("translate", "success", start)
			translation = translated
		}
	}

	return models.AnalysisResult{
		Transcription:  recognition.Text,
		Translation:    translation,
		TargetLanguage: target,
		Path:           models.AnalysisPathFallback,
	}, nil
}

func classifyCallError(err error) *Error {
	if errors.Is(err, speech.ErrNotConfigured) || errors.Is(err, translator.ErrNotConfigured) {
		return newError(KindNotConfigured, err.Error(), err)
	}
	return newError(KindInternal, fmt.Sprintf("Error processing audio: %s", err), err)
}

func (o *Orchestrator) recordVendor(operation, outcome string, start time.Time) {
	if o.recorder == nil {
		return
	}
	o.recorder.RecordVendorCall(operation, outcome, time.Since(start))
}

func (o *Orchestrator) recordAnalysis(path models.AnalysisPath, outcome string) {
	if o.recorder == nil {
		return
	}
	o.recorder.RecordAnalysis(path, outcome)
}
