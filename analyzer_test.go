package main

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
)

func newMockedAnalyzer() (*Analyzer, func()) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	analyzer := &Analyzer{BaseURL: "http://analyzer.local", Client: client}
	return analyzer, httpmock.DeactivateAndReset
}

func TestAnalyzerHealth(t *testing.T) {
	analyzer, teardown := newMockedAnalyzer()
	defer teardown()

	httpmock.RegisterResponder(http.MethodGet, "http://analyzer.local/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))

	if err := analyzer.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}

	httpmock.RegisterResponder(http.MethodGet, "http://analyzer.local/health",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `{}`))

	if err := analyzer.Health(context.Background()); err == nil {
		t.Fatal("Health() should fail on non-200 status")
	}
}

func TestAnalyzerAnalyzeImage(t *testing.T) {
	analyzer, teardown := newMockedAnalyzer()
	defer teardown()

	httpmock.RegisterResponder(http.MethodPost, "http://analyzer.local/analyze",
		func(req *http.Request) (*http.Response, error) {
			if ct := req.Header.Get("Content-Type"); ct != "application/json" {
				t.Fatalf("image analysis content type = %q", ct)
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"detected":    true,
				"damageTypes": []string{"Pothole"},
				"severity":    3,
				"description": "deep pothole near the curb",
				"department":  "ROADS",
				"location":    map[string]float64{"lat": 18.52, "lng": 73.85},
			})
		})

	analysis, err := analyzer.AnalyzeImage(context.Background(), "data:image/jpeg;base64,AAAA", "image/jpeg")
	if err != nil {
		t.Fatalf("AnalyzeImage() error = %v", err)
	}
	if !analysis.Detected || analysis.Severity != SeveritySevere {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
	if analysis.Department != DepartmentRoads {
		t.Fatalf("department = %q", analysis.Department)
	}
	if analysis.Location == nil || analysis.Location.Lat != 18.52 {
		t.Fatalf("location = %v", analysis.Location)
	}
}

func TestAnalyzerAnalyzeImage_NilDamageTypesNormalized(t *testing.T) {
	analyzer, teardown := newMockedAnalyzer()
	defer teardown()

	httpmock.RegisterResponder(http.MethodPost, "http://analyzer.local/analyze",
		httpmock.NewStringResponder(http.StatusOK, `{"detected": false, "severity": 0}`))

	analysis, err := analyzer.AnalyzeImage(context.Background(), "data:image/png;base64,AAAA", "image/png")
	if err != nil {
		t.Fatalf("AnalyzeImage() error = %v", err)
	}
	if analysis.DamageTypes == nil {
		t.Fatal("DamageTypes should be normalized to an empty slice")
	}
}

func TestAnalyzerAnalyzeVideo(t *testing.T) {
	analyzer, teardown := newMockedAnalyzer()
	defer teardown()

	httpmock.RegisterResponder(http.MethodPost, "http://analyzer.local/analyze/video",
		func(req *http.Request) (*http.Response, error) {
			if ct := req.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/form-data") {
				t.Fatalf("video analysis content type = %q", ct)
			}
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("multipart parse failed: %v", err)
			}
			if _, _, err := req.FormFile("video"); err != nil {
				t.Fatalf("video form field missing: %v", err)
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"detected":    true,
				"damageTypes": []string{"Longitudinal Crack"},
				"severity":    2,
			})
		})

	analysis, err := analyzer.AnalyzeVideo(context.Background(), strings.NewReader("fake video bytes"), "road.mp4")
	if err != nil {
		t.Fatalf("AnalyzeVideo() error = %v", err)
	}
	if analysis.Severity != SeverityModerate {
		t.Fatalf("severity = %d", analysis.Severity)
	}
}

func TestAnalyzerErrorStatus(t *testing.T) {
	analyzer, teardown := newMockedAnalyzer()
	defer teardown()

	httpmock.RegisterResponder(http.MethodPost, "http://analyzer.local/analyze",
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	if _, err := analyzer.AnalyzeImage(context.Background(), "data:image/jpeg;base64,AAAA", "image/jpeg"); err == nil {
		t.Fatal("AnalyzeImage() should fail on 500")
	}
}
