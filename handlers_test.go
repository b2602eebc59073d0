package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(app *App) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", app.loginHandler)
			auth.POST("/logout", app.logoutHandler)
			auth.GET("/session", app.sessionHandler)
		}

		authed := api.Group("")
		authed.Use(app.requireSession())
		{
			authed.GET("/reports", app.listReportsHandler)
			authed.GET("/reports/stats", app.reportStatsHandler)
			authed.GET("/reports/:id/workorder.pdf", app.workOrderPDFHandler)
			authed.GET("/submission/state", app.submissionStateHandler)

			official := authed.Group("")
			official.Use(app.requireRole(RoleAdmin, RoleCorporation, RoleContractor))
			{
				official.PATCH("/reports/:id/status", app.updateStatusHandler)
				official.POST("/reports/:id/assign", app.assignContractorHandler)
				official.POST("/reports/:id/assign-ward", app.assignWardHandler)
				official.GET("/contractors", app.contractorsHandler)
				official.GET("/wards", app.wardsHandler)
			}
		}
	}
	return r
}

func sessionCookieFor(t *testing.T, app *App, session Session) *http.Cookie {
	t.Helper()
	token, err := app.createSessionToken(session)
	if err != nil {
		t.Fatalf("createSessionToken() error = %v", err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: token}
}

func TestListReportsRequiresSession(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	router := newTestRouter(app)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestListReportsScopedByRole(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	app.store.LoadAll(sampleReports())
	router := newTestRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports?tab=TOTAL", nil)
	req.AddCookie(sessionCookieFor(t, app, Session{UserID: "citizen-1", Username: "Asha", Role: RoleCitizen}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var payload struct {
		Reports []Report `json:"reports"`
		Tabs    []Tab    `json:"tabs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if len(payload.Reports) != 2 {
		t.Fatalf("citizen sees %d reports, want 2", len(payload.Reports))
	}
	for _, r := range payload.Reports {
		if r.UserID != "citizen-1" {
			t.Fatalf("foreign report %s leaked to citizen", r.ID)
		}
	}
	assert.Equal(t, []Tab{TabTotal, TabCritical, TabResolved, TabPending}, payload.Tabs)
}

func TestReportStatsEndpoint(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	app.store.LoadAll(sampleReports())
	router := newTestRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/stats", nil)
	req.AddCookie(sessionCookieFor(t, app, Session{UserID: "corp-1", Username: "RoadsOfficer", Role: RoleCorporation, Subrole: SubroleDepartment, Department: DepartmentRoads}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var payload struct {
		Stats Stats `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if payload.Stats.Total != 3 {
		t.Fatalf("stats.Total = %d, want 3", payload.Stats.Total)
	}
}

func TestUpdateStatusHandler(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	app.store.LoadAll([]Report{{ID: "r1", Status: StatusInProgress, Timestamp: 10}})
	router := newTestRouter(app)

	httpmock.RegisterResponder(http.MethodPatch, "http://backend.local/reports/r1",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	official := sessionCookieFor(t, app, Session{UserID: "corp-1", Username: "RoadsOfficer", Role: RoleCorporation, Subrole: SubroleDepartment})

	t.Run("valid patch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/r1/status", strings.NewReader(`{"status":"FIXED"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(official)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		got, _ := app.store.Get("r1")
		if got.Status != StatusFixed || got.ResolvedTimestamp == nil {
			t.Fatalf("store not patched: %+v", got)
		}
	})

	t.Run("unknown report", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/missing/status", strings.NewReader(`{"status":"FIXED"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(official)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/r1/status", strings.NewReader(`{"status":"DONE"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(official)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("citizen forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/r1/status", strings.NewReader(`{"status":"FIXED"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(sessionCookieFor(t, app, Session{UserID: "u1", Username: "asha", Role: RoleCitizen}))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
	})

	t.Run("foreign department forbidden", func(t *testing.T) {
		app.store.LoadAll([]Report{{ID: "r2", Status: StatusPending, Department: DepartmentDrainage, Timestamp: 20}})

		req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/r2/status", strings.NewReader(`{"status":"IN_PROGRESS"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(sessionCookieFor(t, app, Session{UserID: "corp-2", Username: "RoadsOfficer", Role: RoleCorporation, Subrole: SubroleDepartment, Department: DepartmentRoads}))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
		got, _ := app.store.Get("r2")
		if got.Status != StatusPending {
			t.Fatalf("out-of-scope patch was applied: %+v", got)
		}
	})

	t.Run("unassigned contractor forbidden", func(t *testing.T) {
		app.store.LoadAll([]Report{{ID: "r3", Status: StatusInProgress, AssignedContractorID: "contractor-7", Timestamp: 30}})

		req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/r3/status", strings.NewReader(`{"status":"FIXED"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(sessionCookieFor(t, app, Session{UserID: "contractor-9", Username: "OtherCo", Role: RoleContractor}))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
		got, _ := app.store.Get("r3")
		if got.Status != StatusInProgress {
			t.Fatalf("out-of-scope patch was applied: %+v", got)
		}
	})
}

func TestAssignWardHandler(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	app.store.LoadAll([]Report{{ID: "r1", Status: StatusPending, Timestamp: 10}})
	router := newTestRouter(app)

	httpmock.RegisterResponder(http.MethodPost, "http://backend.local/reports/assign-ward",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/r1/assign-ward", strings.NewReader(`{"wardId":"ward-4"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(sessionCookieFor(t, app, Session{UserID: "corp-1", Username: "RoadsOfficer", Role: RoleCorporation, Subrole: SubroleDepartment}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	got, _ := app.store.Get("r1")
	if got.AssignedWardID != "ward-4" || got.Status != StatusAssignedToWard {
		t.Fatalf("ward assignment not applied: %+v", got)
	}
}

func TestContractorsHandlerCachesDirectory(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	router := newTestRouter(app)

	calls := 0
	httpmock.RegisterResponder(http.MethodGet, "http://backend.local/contractors",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(http.StatusOK, `[{"id":"c1","name":"FixItCo","department":"ROADS"}]`), nil
		})

	cookie := sessionCookieFor(t, app, Session{UserID: "corp-1", Username: "RoadsOfficer", Role: RoleCorporation, Subrole: SubroleDepartment, Department: DepartmentRoads})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contractors?department=ROADS", nil)
		req.AddCookie(cookie)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
	}

	if calls != 1 {
		t.Fatalf("directory fetched %d times, want 1 (cached)", calls)
	}
}

func TestLoginHandlerIssuesCookieAndReloadsReports(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	router := newTestRouter(app)

	httpmock.RegisterResponder(http.MethodPost, "http://backend.local/auth/login",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"u1","username":"asha","role":"USER"}`))
	httpmock.RegisterResponder(http.MethodGet, "http://backend.local/reports",
		httpmock.NewStringResponder(http.StatusOK, `[{"id":"r1","userId":"u1","status":"PENDING","timestamp":1}]`))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"asha","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var sessionCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == sessionCookieName {
			sessionCookie = cookie
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("login did not set a session cookie")
	}
	session, err := app.verifySessionToken(sessionCookie.Value)
	if err != nil {
		t.Fatalf("issued cookie does not verify: %v", err)
	}
	if session.UserID != "u1" || session.Role != RoleCitizen {
		t.Fatalf("session = %+v", session)
	}

	if app.store.Len() != 1 {
		t.Fatalf("login should reload reports, store len = %d", app.store.Len())
	}
}

func TestLoginHandlerRejectsBadCredentials(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	router := newTestRouter(app)

	httpmock.RegisterResponder(http.MethodPost, "http://backend.local/auth/login",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{}`))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"asha","password":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestSubmissionStateDefaultsToIdle(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	router := newTestRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submission/state", nil)
	req.AddCookie(sessionCookieFor(t, app, Session{UserID: "u1", Username: "asha", Role: RoleCitizen}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var state SubmissionState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if state.Stage != StageIdle {
		t.Fatalf("initial stage = %s, want IDLE", state.Stage)
	}
}

func TestWorkOrderPDFHandler(t *testing.T) {
	app, teardown := newTestApp(t)
	defer teardown()
	resolved := time.Now().UnixMilli()
	app.store.LoadAll([]Report{{
		ID:                "r1",
		UserID:            "citizen-1",
		UserName:          "Asha",
		Timestamp:         100,
		Status:            StatusFixed,
		Department:        DepartmentRoads,
		ResolvedTimestamp: &resolved,
		Analysis:          analysisWithSeverity(3, "Pothole"),
	}})
	router := newTestRouter(app)

	t.Run("owner can download", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/r1/workorder.pdf", nil)
		req.AddCookie(sessionCookieFor(t, app, Session{UserID: "citizen-1", Username: "Asha", Role: RoleCitizen}))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
			t.Fatalf("content type = %q", ct)
		}
		if !strings.HasPrefix(w.Body.String(), "%PDF") {
			t.Fatal("response is not a PDF document")
		}
	})

	t.Run("foreign citizen forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/r1/workorder.pdf", nil)
		req.AddCookie(sessionCookieFor(t, app, Session{UserID: "someone-else", Username: "Ravi", Role: RoleCitizen}))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", w.Code)
		}
	})
}
