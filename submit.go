package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"roadguard/libs/exifgps"
	"roadguard/libs/speech"

	"github.com/google/uuid"
)

type SubmissionStage string

const (
	StageIdle       SubmissionStage = "IDLE"
	StageValidating SubmissionStage = "VALIDATING"
	StageLocating   SubmissionStage = "LOCATING"
	StageEncoding   SubmissionStage = "ENCODING"
	StageAnalyzing  SubmissionStage = "ANALYZING"
	StagePersisting SubmissionStage = "PERSISTING"
	StageComplete   SubmissionStage = "COMPLETE"
	StageFailed     SubmissionStage = "FAILED"
)

var (
	errFileTooLarge = &apiError{
		Status:  413,
		Code:    "file_too_large",
		Message: "Media file exceeds the 100 MB limit",
	}
	errSubmissionFailed = errors.New("could not submit your report, please try again")
)

// SubmissionState is the externally visible pipeline state.
type SubmissionState struct {
	Stage    SubmissionStage `json:"stage"`
	Error    string          `json:"error,omitempty"`
	Success  bool            `json:"success"`
	ReportID string          `json:"reportId,omitempty"`
}

// SubmissionInput carries one citizen submission through the pipeline.
type SubmissionInput struct {
	Media          io.Reader
	Size           int64
	MimeType       string
	FileName       string
	Description    string
	ManualLocation *Location
	Language       string
	OnStage        func(SubmissionStage)
}

func (a *App) setSubmissionStage(stage SubmissionStage, onStage func(SubmissionStage)) {
	a.submissionMu.Lock()
	a.submission.Stage = stage
	if stage != StageFailed {
		a.submission.Error = ""
	}
	a.submissionMu.Unlock()
	if onStage != nil {
		onStage(stage)
	}
}

func (a *App) failSubmission(stage SubmissionStage, cause error, onStage func(SubmissionStage)) error {
	a.log.Error("submission failed", "stage", stage, "err", cause)

	userErr := errSubmissionFailed
	var apiErr *apiError
	if errors.As(cause, &apiErr) {
		userErr = cause
	} else if errors.Is(cause, errAnalysisUnavailable) {
		userErr = errAnalysisUnavailable
	}

	a.submissionMu.Lock()
	a.submission.Stage = StageFailed
	a.submission.Error = userErr.Error()
	a.submission.Success = false
	a.submissionMu.Unlock()
	if onStage != nil {
		onStage(StageFailed)
	}
	return userErr
}

// SubmissionStateSnapshot returns the current pipeline state.
func (a *App) SubmissionStateSnapshot() SubmissionState {
	a.submissionMu.Lock()
	defer a.submissionMu.Unlock()
	return a.submission
}

// SubmitReport runs the full submission pipeline for one media upload.
// VALIDATING and LOCATING precede any read of the media; a persistence
// failure leaves the store untouched so no phantom report ever appears.
func (a *App) SubmitReport(ctx context.Context, user User, input SubmissionInput) (*Report, error) {
	a.setSubmissionStage(StageValidating, input.OnStage)
	if input.Size > maxUploadBytes {
		return nil, a.failSubmission(StageValidating, errFileTooLarge, input.OnStage)
	}
	kind := MediaImage
	if strings.HasPrefix(input.MimeType, "video/") {
		kind = MediaVideo
	}

	a.setSubmissionStage(StageLocating, input.OnStage)
	deviceGPS := a.deviceLocation(ctx)

	a.setSubmissionStage(StageEncoding, input.OnStage)
	raw, err := io.ReadAll(input.Media)
	if err != nil {
		return nil, a.failSubmission(StageEncoding, fmt.Errorf("media read failed: %w", err), input.OnStage)
	}
	dataURL := ""
	if kind == MediaImage {
		dataURL = "data:" + input.MimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
	}

	a.setSubmissionStage(StageAnalyzing, input.OnStage)
	analysisCtx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	if err := a.analyzer.Health(analysisCtx); err != nil {
		return nil, a.failSubmission(StageAnalyzing, fmt.Errorf("%w: %w", errAnalysisUnavailable, err), input.OnStage)
	}

	var analysis *RoadAnalysis
	if kind == MediaImage {
		analysis, err = a.analyzer.AnalyzeImage(analysisCtx, dataURL, input.MimeType)
	} else {
		analysis, err = a.analyzer.AnalyzeVideo(analysisCtx, bytes.NewReader(raw), input.FileName)
	}
	if err != nil {
		return nil, a.failSubmission(StageAnalyzing, fmt.Errorf("%w: %w", errAnalysisUnavailable, err), input.OnStage)
	}

	var imageGPS *Location
	if kind == MediaImage {
		if coord := exifgps.FromImage(raw); coord != nil {
			imageGPS = &Location{Lat: coord.Lat, Lng: coord.Lng}
		}
	}
	location, source := resolveLocation(input.ManualLocation, imageGPS, analysis.Location, deviceGPS)

	// MediaRef is always set: prefer the analyzer's processed rendition,
	// then its copy of the original, then the inline data URL.
	mediaRef := analysis.ProcessedMediaURL
	if mediaRef == "" {
		mediaRef = analysis.OriginalMediaURL
	}
	if mediaRef == "" {
		if dataURL == "" {
			dataURL = "data:" + input.MimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
		}
		mediaRef = dataURL
	}

	report := Report{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		UserName:        user.Username,
		UserDescription: input.Description,
		Timestamp:       time.Now().UnixMilli(),
		MediaRef:        mediaRef,
		MediaKind:       kind,
		Analysis:        analysis,
		Status:          StatusPending,
		Location:        location,
		LocationSource:  source,
		LocationAddress: "",
		Department:      analysis.Department,
	}

	a.setSubmissionStage(StagePersisting, input.OnStage)
	if err := a.backend.SaveReport(ctx, report); err != nil {
		return nil, a.failSubmission(StagePersisting, err, input.OnStage)
	}

	a.store.Append(report)

	a.submissionMu.Lock()
	a.submission = SubmissionState{Stage: StageComplete, Success: true, ReportID: report.ID}
	a.submissionMu.Unlock()
	if input.OnStage != nil {
		input.OnStage(StageComplete)
	}

	time.AfterFunc(successResetDelay, func() {
		a.submissionMu.Lock()
		if a.submission.ReportID == report.ID {
			a.submission = SubmissionState{Stage: StageIdle}
		}
		a.submissionMu.Unlock()
	})

	go a.speakConfirmation(report.Department, input.Language)

	return &report, nil
}

// deviceLocation returns the cached device fix, requesting one with a
// bounded timeout on a miss. Denied or timed-out requests are logged and
// resolve to nil; the pipeline continues without a device candidate.
func (a *App) deviceLocation(ctx context.Context) *Location {
	a.deviceLocMu.Lock()
	cached := a.cachedDeviceLoc
	a.deviceLocMu.Unlock()
	if cached != nil {
		return cached
	}

	locCtx, cancel := context.WithTimeout(ctx, deviceLocationTimeout)
	defer cancel()

	loc, err := a.locator.Locate(locCtx)
	if err != nil {
		a.log.Info("device location unavailable", "err", err)
		return nil
	}

	a.deviceLocMu.Lock()
	a.cachedDeviceLoc = loc
	a.deviceLocMu.Unlock()
	return loc
}

var confirmationMessages = map[string]string{
	"en": "Your report has been submitted successfully to the %s department.",
	"hi": "आपकी रिपोर्ट %s विभाग को सफलतापूर्वक भेज दी गई है।",
	"mr": "तुमचा अहवाल %s विभागाकडे यशस्वीरित्या पाठवण्यात आला आहे.",
}

func langTagFor(language string) string {
	switch language {
	case "hi":
		return "hi-IN"
	case "mr":
		return "mr-IN"
	}
	return "en-US"
}

func (a *App) speakConfirmation(department Department, language string) {
	if language == "" {
		language = a.cfg.UILanguage
	}
	template, ok := confirmationMessages[language]
	if !ok {
		template = confirmationMessages["en"]
	}
	departmentName := string(department)
	if departmentName == "" {
		departmentName = "concerned"
	}

	_, err := a.speech.Speak(speech.Utterance{
		Text: fmt.Sprintf(template, departmentName),
		Lang: langTagFor(language),
	})
	if err != nil {
		a.log.Error("speech confirmation failed", "err", err)
	}
}
