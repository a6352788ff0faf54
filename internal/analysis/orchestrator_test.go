package analysis

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ncecere/speech_analysis/backend/internal/config"
	"github.com/ncecere/speech_analysis/backend/internal/models"
	"github.com/ncecere/speech_analysis/backend/internal/speech"
)

type fakeSpeech struct {
	combinedText        string
	combinedTranslation string
	combinedErr         error
	recognition         models.RecognitionResult
	recognitionErr      error

	combinedCalls  int
	recognizeCalls int
	paths          []string
	fileExisted    []bool
	targets        []string
}

func (f *fakeSpeech) observe(path string) {
	_, err := os.Stat(path)
	f.paths = append(f.paths, path)
	f.fileExisted = append(f.fileExisted, err == nil)
}

func (f *fakeSpeech) RecognizeAndTranslate(_ context.Context, filePath, _, targetLanguage string) (string, string, error) {
	f.combinedCalls++
	f.targets = append(f.targets, targetLanguage)
	f.observe(filePath)
	return f.combinedText, f.combinedTranslation, f.combinedErr
}

func (f *fakeSpeech) RecognizeOnly(_ context.Context, filePath, _ string) (models.RecognitionResult, error) {
	f.recognizeCalls++
	f.observe(filePath)
	return f.recognition, f.recognitionErr
}

type fakeTranslator struct {
	text  string
	err   error
	calls int
	got   []string
}

func (f *fakeTranslator) Translate(_ context.Context, text, targetLanguage, sourceLanguage string) (string, error) {
	f.calls++
	f.got = append(f.got, text, targetLanguage, sourceLanguage)
	return f.text, f.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	vendor   []string
	analyses []string
}

func (r *fakeRecorder) RecordVendorCall(operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vendor = append(r.vendor, operation+":"+outcome)
}

func (r *fakeRecorder) RecordAnalysis(path models.AnalysisPath, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses = append(r.analyses, string(path)+":"+outcome)
}

func newOrchestrator(t *testing.T, sp SpeechService, tr Translator, opts ...Option) *Orchestrator {
	t.Helper()
	return New(sp, tr, config.AudioConfig{TempDir: t.TempDir()}, zap.NewNop(), opts...)
}

func wavClip(size int) models.AudioClip {
	return models.AudioClip{Data: make([]byte, size), Filename: "clip.wav", ContentType: "audio/wav"}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, kind, aerr.Kind)
	return aerr
}

func TestAnalyzeCombinedSuccessSkipsFallback(t *testing.T) {
	sp := &fakeSpeech{combinedText: "hello", combinedTranslation: "bonjour"}
	tr := &fakeTranslator{}
	rec := &fakeRecorder{}
	o := newOrchestrator(t, sp, tr, WithRecorder(rec))

	result, err := o.Analyze(context.Background(), wavClip(1024), "fr")
	require.NoError(t, err)
	require.Equal(t, models.AnalysisResult{
		Transcription:  "hello",
		Translation:    "bonjour",
		TargetLanguage: "fr",
		Path:           models.AnalysisPathCombined,
	}, result)
	require.Equal(t, 1, sp.combinedCalls)
	require.Zero(t, sp.recognizeCalls)
	require.Zero(t, tr.calls)
	require.Equal(t, []string{"recognize_translate:success"}, rec.vendor)
	require.Equal(t, []string{"combined:success"}, rec.analyses)
}

func TestAnalyzeFallsBackWhenCombinedUnusable(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		translation string
		err         error
	}{
		{name: "no match sentinel", translation: "No speech could be recognized: NoMatch"},
		{name: "canceled sentinel", text: "hello", translation: "Speech Recognition canceled: Error: Error details: 401"},
		{name: "empty translation", text: "hello"},
		{name: "empty transcription", translation: "bonjour"},
		{name: "combined error", err: errors.New("dial speech translation: connection refused")},
		{name: "combined not configured", err: speech.ErrNotConfigured},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sp := &fakeSpeech{
				combinedText:        tt.text,
				combinedTranslation: tt.translation,
				combinedErr:         tt.err,
				recognition:         models.Recognized("hello"),
			}
			tr := &fakeTranslator{text: "bonjour"}
			o := newOrchestrator(t, sp, tr)

			result, err := o.Analyze(context.Background(), wavClip(10), "fr")
			require.NoError(t, err)
			require.Equal(t, "hello", result.Transcription)
			require.Equal(t, "bonjour", result.Translation)
			require.Equal(t, "fr", result.TargetLanguage)
			require.Equal(t, models.AnalysisPathFallback, result.Path)
			require.Equal(t, 1, sp.combinedCalls)
			require.Equal(t, 1, sp.recognizeCalls)
			require.Equal(t, 1, tr.calls)
			require.Equal(t, []string{"hello", "fr", "en"}, tr.got)
		})
	}
}

func TestAnalyzeFallbackNoMatchDoesNotTranslate(t *testing.T) {
	sp := &fakeSpeech{
		combinedTranslation: "No speech could be recognized: InitialSilenceTimeout",
		recognition:         models.NoMatch("InitialSilenceTimeout"),
	}
	tr := &fakeTranslator{text: "unused"}
	rec := &fakeRecorder{}
	o := newOrchestrator(t, sp, tr, WithRecorder(rec))

	_, err := o.Analyze(context.Background(), wavClip(10), "fr")
	aerr := requireKind(t, err, KindNoMatch)
	require.Equal(t, "No speech could be recognized. Please try speaking louder or closer to the microphone.", aerr.Message)
	require.Equal(t, http.StatusBadRequest, StatusCode(err))
	require.Zero(t, tr.calls)
	require.Equal(t, []string{"fallback:no_match"}, rec.analyses)
}

func TestAnalyzeFallbackCanceled(t *testing.T) {
	tests := []struct {
		name    string
		result  models.RecognitionResult
		message string
	}{
		{
			name:    "with details",
			result:  models.Canceled("Error", "401 Unauthorized: bad key"),
			message: "Speech recognition canceled: Error. Details: 401 Unauthorized: bad key",
		},
		{
			name:    "without details",
			result:  models.Canceled("EndOfStream", ""),
			message: "Speech recognition canceled: EndOfStream",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sp := &fakeSpeech{combinedErr: errors.New("boom"), recognition: tt.result}
			tr := &fakeTranslator{}
			o := newOrchestrator(t, sp, tr)

			_, err := o.Analyze(context.Background(), wavClip(10), "fr")
			aerr := requireKind(t, err, KindCanceled)
			require.Equal(t, tt.message, aerr.Message)
			require.Equal(t, http.StatusInternalServerError, StatusCode(err))
			require.Zero(t, tr.calls)
		})
	}
}

func TestAnalyzeFallbackUnknownReason(t *testing.T) {
	sp := &fakeSpeech{combinedErr: errors.New("boom"), recognition: models.RecognitionResult{Reason: "endofdictation"}}
	o := newOrchestrator(t, sp, &fakeTranslator{})

	_, err := o.Analyze(context.Background(), wavClip(10), "fr")
	aerr := requireKind(t, err, KindInternal)
	require.Equal(t, "Speech recognition failed with unknown reason", aerr.Message)
}

func TestAnalyzeTranslatorErrorIsAbsorbed(t *testing.T) {
	sp := &fakeSpeech{combinedErr: errors.New("boom"), recognition: models.Recognized("hello")}
	tr := &fakeTranslator{err: errors.New("Translation request failed: 403 Forbidden: quota")}
	o := newOrchestrator(t, sp, tr)

	result, err := o.Analyze(context.Background(), wavClip(10), "fr")
	require.NoError(t, err)
	require.Equal(t, "hello", result.Transcription)
	require.Equal(t, "Translation error: Translation request failed: 403 Forbidden: quota", result.Translation)
}

func TestAnalyzeBlankTranscriptionSkipsTranslation(t *testing.T) {
	sp := &fakeSpeech{combinedErr: errors.New("boom"), recognition: models.Recognized("   ")}
	tr := &fakeTranslator{}
	o := newOrchestrator(t, sp, tr)

	result, err := o.Analyze(context.Background(), wavClip(10), "fr")
	require.NoError(t, err)
	require.Equal(t, "Translation skipped: no text was recognized", result.Translation)
	require.Zero(t, tr.calls)
}

func TestAnalyzeRecognizeOnlyErrors(t *testing.T) {
	sp := &fakeSpeech{combinedErr: speech.ErrNotConfigured, recognitionErr: speech.ErrNotConfigured}
	o := newOrchestrator(t, sp, &fakeTranslator{})
	_, err := o.Analyze(context.Background(), wavClip(10), "fr")
	aerr := requireKind(t, err, KindNotConfigured)
	require.Equal(t, "Azure Speech credentials not configured.", aerr.Message)
	require.ErrorIs(t, err, speech.ErrNotConfigured)

	sp = &fakeSpeech{combinedErr: errors.New("boom"), recognitionErr: errors.New("read audio file: gone")}
	o = newOrchestrator(t, sp, &fakeTranslator{})
	_, err = o.Analyze(context.Background(), wavClip(10), "fr")
	aerr = requireKind(t, err, KindInternal)
	require.Equal(t, "Error processing audio: read audio file: gone", aerr.Message)
}

func TestAnalyzeRemovesTempFileOnEveryPath(t *testing.T) {
	cases := map[string]*fakeSpeech{
		"combined": {combinedText: "hello", combinedTranslation: "bonjour"},
		"fallback": {combinedErr: errors.New("boom"), recognition: models.Recognized("hello")},
		"no match": {combinedErr: errors.New("boom"), recognition: models.NoMatch("NoMatch")},
		"error":    {combinedErr: errors.New("boom"), recognitionErr: errors.New("read failed")},
	}
	for name, sp := range cases {
		sp := sp
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			o := New(sp, &fakeTranslator{text: "bonjour"}, config.AudioConfig{TempDir: dir}, zap.NewNop())
			_, _ = o.Analyze(context.Background(), wavClip(64), "fr")

			require.NotEmpty(t, sp.paths)
			for i, path := range sp.paths {
				require.True(t, sp.fileExisted[i], "file must exist during the vendor call")
				require.True(t, strings.HasSuffix(path, ".wav"))
				_, err := os.Stat(path)
				require.True(t, os.IsNotExist(err))
			}
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Empty(t, entries)
		})
	}
}

func TestAnalyzeSameFileForBothCalls(t *testing.T) {
	sp := &fakeSpeech{combinedErr: errors.New("boom"), recognition: models.Recognized("hello")}
	o := newOrchestrator(t, sp, &fakeTranslator{text: "hola"})
	_, err := o.Analyze(context.Background(), wavClip(10), "es")
	require.NoError(t, err)
	require.Len(t, sp.paths, 2)
	require.Equal(t, sp.paths[0], sp.paths[1])
}

func TestAnalyzeDefaultsTargetLanguage(t *testing.T) {
	sp := &fakeSpeech{combinedText: "hello", combinedTranslation: "hola"}
	o := newOrchestrator(t, sp, &fakeTranslator{})
	result, err := o.Analyze(context.Background(), wavClip(10), "")
	require.NoError(t, err)
	require.Equal(t, "es", result.TargetLanguage)
	require.Equal(t, []string{"es"}, sp.targets)
}

func TestAnalyzeRejectsInvalidClipWithoutVendorCalls(t *testing.T) {
	tests := []struct {
		name    string
		clip    models.AudioClip
		message string
	}{
		{
			name:    "not audio",
			clip:    models.AudioClip{Data: []byte("text"), ContentType: "text/plain"},
			message: "File must be an audio file",
		},
		{
			name:    "too large",
			clip:    wavClip(2049),
			message: "Audio size must be less than 120MB",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sp := &fakeSpeech{}
			tr := &fakeTranslator{}
			o := New(sp, tr, config.AudioConfig{TempDir: t.TempDir(), MaxUploadBytes: 2048}, zap.NewNop())
			_, err := o.Analyze(context.Background(), tt.clip, "fr")
			aerr := requireKind(t, err, KindInvalidInput)
			require.Equal(t, tt.message, aerr.Message)
			require.Equal(t, http.StatusBadRequest, StatusCode(err))
			require.Zero(t, sp.combinedCalls)
			require.Zero(t, sp.recognizeCalls)
			require.Zero(t, tr.calls)
		})
	}
}

func TestValidateClipBoundaries(t *testing.T) {
	max := config.DefaultMaxUploadBytes
	require.NoError(t, ValidateClip("audio/wav", max, max))
	require.NoError(t, ValidateClip("audio/webm", 0, max))
	require.Error(t, ValidateClip("audio/wav", max+1, max))
	require.Error(t, ValidateClip("video/mp4", 10, max))
	require.Error(t, ValidateClip("", 10, max))
}

func TestIsUsable(t *testing.T) {
	require.True(t, IsUsable("hello", "bonjour"))
	require.False(t, IsUsable("", "bonjour"))
	require.False(t, IsUsable("hello", ""))
	require.False(t, IsUsable("hello", "Speech Recognition canceled: Error"))
	require.False(t, IsUsable("hello", "No speech could be recognized: NoMatch"))
}

func TestMessageForUntypedError(t *testing.T) {
	err := errors.New("disk full")
	require.Equal(t, "Error processing audio: disk full", Message(err))
	require.Equal(t, http.StatusInternalServerError, StatusCode(err))
	require.Equal(t, "File must be an audio file", Message(ValidateClip("text/plain", 1, 2)))
}
