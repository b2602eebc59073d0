package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// BackendClient is the REST boundary to the persistence backend. The
// backend owns durable storage and credential checks; this service keeps
// the reconciled in-memory working set.
type BackendClient struct {
	BaseURL string
	Client  *http.Client
}

func (b *BackendClient) ListReports(ctx context.Context) ([]Report, error) {
	var reports []Report
	if err := b.getJSON(ctx, "/reports", &reports); err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []Report{}
	}
	return reports, nil
}

func (b *BackendClient) SaveReport(ctx context.Context, report Report) error {
	return b.postJSON(ctx, "/reports", report, nil)
}

func (b *BackendClient) UpdateReportStatus(ctx context.Context, id string, status ReportStatus, repairMediaURL string) error {
	payload := map[string]any{"status": status}
	if repairMediaURL != "" {
		payload["repairMediaUrl"] = repairMediaURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, b.BaseURL+"/reports/"+url.PathEscape(id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, nil)
}

func (b *BackendClient) AssignContractor(ctx context.Context, reportID, contractorID string) error {
	return b.postJSON(ctx, "/reports/assign", map[string]string{
		"reportId":     reportID,
		"contractorId": contractorID,
	}, nil)
}

func (b *BackendClient) AssignWard(ctx context.Context, reportID, wardID string) error {
	return b.postJSON(ctx, "/reports/assign-ward", map[string]string{
		"reportId": reportID,
		"wardId":   wardID,
	}, nil)
}

func (b *BackendClient) ListContractors(ctx context.Context, department Department) ([]Contractor, error) {
	path := "/contractors"
	if department != "" {
		path += "?department=" + url.QueryEscape(string(department))
	}
	var contractors []Contractor
	if err := b.getJSON(ctx, path, &contractors); err != nil {
		return nil, err
	}
	if contractors == nil {
		contractors = []Contractor{}
	}
	return contractors, nil
}

func (b *BackendClient) ListWards(ctx context.Context, department Department) ([]Ward, error) {
	path := "/wards"
	if department != "" {
		path += "?department=" + url.QueryEscape(string(department))
	}
	var wards []Ward
	if err := b.getJSON(ctx, path, &wards); err != nil {
		return nil, err
	}
	if wards == nil {
		wards = []Ward{}
	}
	return wards, nil
}

// Login validates credentials against the backend. A 401 means bad
// credentials and returns (nil, nil); other failures are errors.
func (b *BackendClient) Login(ctx context.Context, username, password string) (*User, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend login failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend login returned %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("backend login decode failed: %w", err)
	}
	return &user, nil
}

func (b *BackendClient) Register(ctx context.Context, user User, password string) (*User, error) {
	payload := struct {
		User
		Password string `json:"password"`
	}{User: user, Password: password}

	var created User
	if err := b.postJSON(ctx, "/auth/register", payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (b *BackendClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return b.do(req, out)
}

func (b *BackendClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, out)
}

func (b *BackendClient) do(req *http.Request, out any) error {
	resp, err := b.Client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend returned %d for %s %s: %s", resp.StatusCode, req.Method, req.URL.Path, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend response decode failed: %w", err)
	}
	return nil
}
