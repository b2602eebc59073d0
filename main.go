package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"roadguard/libs/speech"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
)

const (
	maxUploadBytes           = 100 * 1024 * 1024
	deviceLocationTimeout    = 10 * time.Second
	analysisTimeout          = 5 * time.Minute
	successResetDelay        = 3 * time.Second
	backendRequestTimeout    = 30 * time.Second
	sessionCookieName        = "roadguard_session"
	officialSessionDuration  = 8 * time.Hour
	citizenSessionDuration   = 180 * 24 * time.Hour
	directoryCacheTTL        = 5 * time.Minute
	directoryCacheSweep      = 10 * time.Minute
	severeSeverity           = 3
	devCORSOriginLocalhost   = "http://localhost:5173"
	devCORSOriginLoopback    = "http://127.0.0.1:5173"
	trustedProxyLoopbackIPv4 = "127.0.0.1"
	trustedProxyLoopbackIPv6 = "::1"
)

// Severity is an ordinal damage rating, 0 (low) through 4 (critical).
type Severity int

const (
	SeverityLow      Severity = 0
	SeverityMinor    Severity = 1
	SeverityModerate Severity = 2
	SeveritySevere   Severity = 3
	SeverityCritical Severity = 4
)

type Department string

const (
	DepartmentRoads    Department = "ROADS"
	DepartmentDrainage Department = "DRAINAGE"
	DepartmentTraffic  Department = "TRAFFIC"
	DepartmentUtility  Department = "UTILITY"
)

type ReportStatus string

const (
	StatusPending        ReportStatus = "PENDING"
	StatusAssignedToWard ReportStatus = "ASSIGNED_TO_WARD"
	StatusInProgress     ReportStatus = "IN_PROGRESS"
	StatusFixed          ReportStatus = "FIXED"
	StatusRejected       ReportStatus = "REJECTED"
)

type UserRole string

const (
	RoleCitizen     UserRole = "USER"
	RoleAdmin       UserRole = "ADMIN"
	RoleCorporation UserRole = "CORPORATION"
	RoleContractor  UserRole = "CONTRACTOR"
)

// CorpSubrole distinguishes department officers from ward officers within
// a corporation account.
type CorpSubrole string

const (
	SubroleDepartment CorpSubrole = "DEPARTMENT"
	SubroleWard       CorpSubrole = "WARD"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

var (
	reportStatuses = []ReportStatus{
		StatusPending, StatusAssignedToWard, StatusInProgress, StatusFixed, StatusRejected,
	}
	departments = []Department{
		DepartmentRoads, DepartmentDrainage, DepartmentTraffic, DepartmentUtility,
	}
	userRoles = []UserRole{RoleCitizen, RoleAdmin, RoleCorporation, RoleContractor}
)

// Location is a decimal-degree coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label,omitempty"`
}

type VideoDetection struct {
	TimestampSec float64       `json:"timestampSec"`
	Boxes        []BoundingBox `json:"boxes"`
}

type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RoadAnalysis is the analysis backend's verdict for one media item.
type RoadAnalysis struct {
	Detected          bool             `json:"detected"`
	DamageTypes       []string         `json:"damageTypes"`
	Severity          Severity         `json:"severity"`
	Description       string           `json:"description"`
	BoundingBoxes     []BoundingBox    `json:"boundingBoxes,omitempty"`
	VideoDetections   []VideoDetection `json:"videoDetections,omitempty"`
	ImageDimensions   *ImageDimensions `json:"imageDimensions,omitempty"`
	ProcessedMediaURL string           `json:"processedMediaUrl,omitempty"`
	OriginalMediaURL  string           `json:"originalMediaUrl,omitempty"`
	Location          *Location        `json:"location,omitempty"`
	Department        Department       `json:"department,omitempty"`
}

type Report struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"userId"`
	UserName             string         `json:"userName"`
	UserDescription      string         `json:"userDescription,omitempty"`
	Timestamp            int64          `json:"timestamp"`
	MediaRef             string         `json:"mediaRef"`
	MediaKind            MediaKind      `json:"mediaKind"`
	Analysis             *RoadAnalysis  `json:"analysis,omitempty"`
	Status               ReportStatus   `json:"status"`
	RepairMediaURL       string         `json:"repairMediaUrl,omitempty"`
	Location             *Location      `json:"location,omitempty"`
	LocationSource       LocationSource `json:"locationSource,omitempty"`
	LocationAddress      string         `json:"locationAddress,omitempty"`
	ResolvedTimestamp    *int64         `json:"resolvedTimestamp,omitempty"`
	Department           Department     `json:"department,omitempty"`
	AssignedContractorID string         `json:"assignedContractorId,omitempty"`
	AssignedWardID       string         `json:"assignedWardId,omitempty"`
}

type User struct {
	ID         string      `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email"`
	Role       UserRole    `json:"role"`
	Subrole    CorpSubrole `json:"subrole,omitempty"`
	Department Department  `json:"department,omitempty"`
	Phone      string      `json:"phone,omitempty"`
	City       string      `json:"city,omitempty"`
}

// Contractor and Ward are directory entries served by the persistence backend.
type Contractor struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Department Department `json:"department"`
	Phone      string     `json:"phone,omitempty"`
}

type Ward struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Department Department `json:"department"`
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

type Config struct {
	Addr                   string
	Env                    string
	PublicBaseURL          string
	AppSigningSecret       string
	BackendURL             string
	AnalyzerURL            string
	DeviceAgentURL         string
	UILanguage             string
	SpeechProvider         string
	SpeechCommand          string
	RollbackOnPatchFailure bool
}

type App struct {
	cfg *Config
	log *slog.Logger

	store    *ReportStore
	backend  *BackendClient
	analyzer *Analyzer
	locator  DeviceLocator
	speech   *speech.Synthesizer

	// contractor/ward directory responses, keyed by department
	directory *gocache.Cache

	deviceLocMu     sync.Mutex
	cachedDeviceLoc *Location

	submissionMu sync.Mutex
	submission   SubmissionState
}

func main() {
	if err := loadDotEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	httpClient := &http.Client{Timeout: backendRequestTimeout}

	var locator DeviceLocator
	if cfg.DeviceAgentURL != "" {
		locator = &HTTPDeviceLocator{BaseURL: cfg.DeviceAgentURL, Client: httpClient}
	} else {
		locator = &StaticDeviceLocator{}
		logger.Info("device locator not configured, location requests will report unavailable")
	}

	var speechProvider speech.Provider
	switch cfg.SpeechProvider {
	case "command":
		speechProvider = speech.NewCommandProvider(cfg.SpeechCommand)
	default:
		speechProvider = speech.NewLogProvider(logger)
	}
	logger.Info("speech initialized", "provider", speechProvider.Name())

	app := &App{
		cfg:        cfg,
		log:        logger,
		store:      NewReportStore(),
		backend:    &BackendClient{BaseURL: cfg.BackendURL, Client: httpClient},
		analyzer:   &Analyzer{BaseURL: cfg.AnalyzerURL, Client: &http.Client{Timeout: analysisTimeout}},
		locator:    locator,
		speech:     speech.New(speechProvider, langTagFor(cfg.UILanguage)),
		directory:  gocache.New(directoryCacheTTL, directoryCacheSweep),
		submission: SubmissionState{Stage: StageIdle},
	}

	logger.Info(
		"runtime configuration",
		"env", cfg.Env,
		"addr", cfg.Addr,
		"backend_url", cfg.BackendURL,
		"analyzer_url", cfg.AnalyzerURL,
		"rollback_on_patch_failure", cfg.RollbackOnPatchFailure,
	)

	app.reloadReports()

	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}
	r.Use(gin.Recovery())
	r.Use(app.loggingMiddleware())
	r.Use(app.corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", app.loginHandler)
			auth.POST("/register", app.registerHandler)
			auth.POST("/logout", app.logoutHandler)
			auth.GET("/session", app.sessionHandler)
		}

		authed := api.Group("")
		authed.Use(app.requireSession())
		{
			authed.POST("/reports", app.submitReportHandler)
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

	app.log.Info("starting gin API", "addr", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		panic(err)
	}
}

// reloadReports replaces the store contents from the persistence backend.
// Runs at startup and on every login/logout transition.
func (a *App) reloadReports() {
	ctx, cancel := context.WithTimeout(context.Background(), backendRequestTimeout)
	defer cancel()

	reports, err := a.backend.ListReports(ctx)
	if err != nil {
		a.log.Error("failed to load reports from backend", "err", err)
		a.store.LoadAll(nil)
		return
	}
	a.store.LoadAll(reports)
	a.log.Info("reports loaded", "count", len(reports))
}

func loadConfig() (*Config, error) {
	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(secret) < 16 {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least 16 characters")
	}

	backendURL := strings.TrimRight(strings.TrimSpace(os.Getenv("BACKEND_URL")), "/")
	if backendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL must be configured")
	}

	analyzerURL := strings.TrimRight(strings.TrimSpace(os.Getenv("ANALYZER_URL")), "/")
	if analyzerURL == "" {
		return nil, fmt.Errorf("ANALYZER_URL must be configured")
	}

	publicBase := strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))
	if publicBase == "" {
		publicBase = "https://roadguard.example.org"
	}
	publicBase = strings.TrimRight(publicBase, "/")

	env := valueFromEnvKeys("APP_ENV", "GIN_ENV")
	if env == "" {
		env = "development"
	}

	cfg := &Config{
		Addr:             valueOrDefault("GIN_ADDR", ":8080"),
		Env:              env,
		PublicBaseURL:    publicBase,
		AppSigningSecret: secret,
		BackendURL:       backendURL,
		AnalyzerURL:      analyzerURL,
		DeviceAgentURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("DEVICE_AGENT_URL")), "/"),
		UILanguage:       valueOrDefault("UI_LANGUAGE", "en"),
		SpeechProvider:   valueOrDefault("SPEECH_PROVIDER", "log"),
		SpeechCommand:    valueOrDefault("SPEECH_COMMAND", "espeak-ng"),
	}

	if cfg.UILanguage != "en" && cfg.UILanguage != "hi" && cfg.UILanguage != "mr" {
		return nil, fmt.Errorf("UI_LANGUAGE must be one of en, hi, mr")
	}
	if cfg.SpeechProvider != "log" && cfg.SpeechProvider != "command" {
		return nil, fmt.Errorf("SPEECH_PROVIDER must be 'log' or 'command'")
	}

	if raw := strings.TrimSpace(os.Getenv("ROLLBACK_ON_PATCH_FAILURE")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("ROLLBACK_ON_PATCH_FAILURE must be a boolean")
		}
		cfg.RollbackOnPatchFailure = parsed
	}

	return cfg, nil
}

func loadDotEnvFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), "\"")
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
