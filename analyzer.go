package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// errAnalysisUnavailable is the single user-facing analysis failure. Every
// transport, status and decode error from the analysis backend collapses
// into it at this boundary.
var errAnalysisUnavailable = errors.New("road analysis is unavailable right now, please try again")

// Analyzer calls the remote road-damage analysis backend.
type Analyzer struct {
	BaseURL string
	Client  *http.Client
}

// Health probes the backend before an analysis call is attempted.
func (a *Analyzer) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("analyzer health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analyzer health check returned %d", resp.StatusCode)
	}
	return nil
}

// AnalyzeImage submits a base64 data URL for analysis.
func (a *Analyzer) AnalyzeImage(ctx context.Context, dataURL, mimeType string) (*RoadAnalysis, error) {
	payload, err := json.Marshal(map[string]string{
		"image":    dataURL,
		"mimeType": mimeType,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return a.decodeAnalysis(req)
}

// AnalyzeVideo submits raw video bytes as a multipart upload.
func (a *Analyzer) AnalyzeVideo(ctx context.Context, video io.Reader, fileName string) (*RoadAnalysis, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("video", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, video); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/analyze/video", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return a.decodeAnalysis(req)
}

func (a *Analyzer) decodeAnalysis(req *http.Request) (*RoadAnalysis, error) {
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("analyzer returned %d: %s", resp.StatusCode, string(body))
	}

	var analysis RoadAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return nil, fmt.Errorf("analyzer response decode failed: %w", err)
	}
	if analysis.DamageTypes == nil {
		analysis.DamageTypes = []string{}
	}
	return &analysis, nil
}
