package models

import "strings"

// AudioClip wraps the uploaded audio payload.
type AudioClip struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Size returns the payload length in bytes.
func (c AudioClip) Size() int {
	return len(c.Data)
}

// IsAudio reports whether the declared content type is an audio type.
func (c AudioClip) IsAudio() bool {
	return strings.HasPrefix(c.ContentType, "audio/")
}

type RecognitionReason string

const (
	RecognitionRecognized RecognitionReason = "recognized"
	RecognitionNoMatch    RecognitionReason = "no_match"
	RecognitionCanceled   RecognitionReason = "canceled"
)

// RecognitionResult is the terminal outcome of one recognition attempt.
type RecognitionResult struct {
	Reason RecognitionReason
	Text   string
	// NoMatchDetails carries the vendor status that produced a NoMatch.
	NoMatchDetails     string
	CancellationReason string
	ErrorDetails       string
}

func Recognized(text string) RecognitionResult {
	return RecognitionResult{Reason: RecognitionRecognized, Text: text}
}

func NoMatch(details string) RecognitionResult {
	return RecognitionResult{Reason: RecognitionNoMatch, NoMatchDetails: details}
}

func Canceled(reason, details string) RecognitionResult {
	return RecognitionResult{Reason: RecognitionCanceled, CancellationReason: reason, ErrorDetails: details}
}

// AnalysisPath records which call sequence produced an AnalysisResult.
type AnalysisPath string

const (
	AnalysisPathCombined AnalysisPath = "combined"
	AnalysisPathFallback AnalysisPath = "fallback"
)

// AnalysisResult is the transcription/translation pair returned to the caller.
type AnalysisResult struct {
	Transcription  string       `json:"transcription"`
	Translation    string       `json:"translation"`
	TargetLanguage string       `json:"target_language"`
	Path           AnalysisPath `json:"-"`
}
