package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (a *App) setSessionCookie(c *gin.Context, session Session) error {
	token, err := a.createSessionToken(session)
	if err != nil {
		return err
	}
	secure := !strings.EqualFold(a.cfg.Env, "development")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, token, int(sessionDurationFor(session.Role).Seconds()), "/", "", secure, true)
	return nil
}

func sessionFromUser(u User) Session {
	session := Session{
		UserID:     u.ID,
		Username:   u.Username,
		Role:       u.Role,
		Subrole:    u.Subrole,
		Department: u.Department,
	}
	if session.Role == RoleCorporation || session.Role == RoleAdmin {
		session.Subrole = effectiveSubrole(u)
	}
	return session
}

func (a *App) loginHandler(c *gin.Context) {
	var payload struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "username and password are required"})
		return
	}

	user, err := a.backend.Login(c.Request.Context(), payload.Username, payload.Password)
	if err != nil {
		a.log.Error("backend login failed", "err", err)
		writeAPIError(c, &apiError{Status: http.StatusBadGateway, Code: "backend_unavailable", Message: "Could not reach the account service"})
		return
	}
	if user == nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "Invalid username or password"})
		return
	}

	if err := a.setSessionCookie(c, sessionFromUser(*user)); err != nil {
		writeAPIError(c, err)
		return
	}

	a.reloadReports()
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (a *App) registerHandler(c *gin.Context) {
	var payload struct {
		Username   string     `json:"username" binding:"required"`
		Email      string     `json:"email" binding:"required"`
		Password   string     `json:"password" binding:"required"`
		Phone      string     `json:"phone"`
		City       string     `json:"city"`
		Department Department `json:"department"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "username, email and password are required"})
		return
	}

	created, err := a.backend.Register(c.Request.Context(), User{
		Username:   payload.Username,
		Email:      payload.Email,
		Role:       RoleCitizen,
		Phone:      payload.Phone,
		City:       payload.City,
		Department: payload.Department,
	}, payload.Password)
	if err != nil {
		a.log.Error("backend registration failed", "err", err)
		writeAPIError(c, &apiError{Status: http.StatusBadGateway, Code: "backend_unavailable", Message: "Could not reach the account service"})
		return
	}

	if err := a.setSessionCookie(c, sessionFromUser(*created)); err != nil {
		writeAPIError(c, err)
		return
	}

	a.reloadReports()
	c.JSON(http.StatusCreated, gin.H{"user": created})
}

func (a *App) logoutHandler(c *gin.Context) {
	c.SetCookie(sessionCookieName, "", -1, "/", "", false, true)
	a.reloadReports()
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (a *App) sessionHandler(c *gin.Context) {
	token, err := c.Cookie(sessionCookieName)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "No active session"})
		return
	}
	session, err := a.verifySessionToken(token)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "No active session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": session.user()})
}

func (a *App) submitReportHandler(c *gin.Context) {
	session, err := getSession(c)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Session required"})
		return
	}

	fileHeader, err := c.FormFile("media")
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "media_required", Message: "A media file is required"})
		return
	}

	var manual *Location
	rawLat := strings.TrimSpace(c.PostForm("lat"))
	rawLng := strings.TrimSpace(c.PostForm("lng"))
	if rawLat != "" && rawLng != "" {
		lat, latErr := strconv.ParseFloat(rawLat, 64)
		lng, lngErr := strconv.ParseFloat(rawLng, 64)
		if latErr != nil || lngErr != nil {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_location", Message: "lat and lng must be decimal degrees"})
			return
		}
		manual = &Location{Lat: lat, Lng: lng}
	}

	file, err := fileHeader.Open()
	if err != nil {
		writeAPIError(c, err)
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	report, err := a.SubmitReport(c.Request.Context(), session.user(), SubmissionInput{
		Media:          file,
		Size:           fileHeader.Size,
		MimeType:       mimeType,
		FileName:       fileHeader.Filename,
		Description:    strings.TrimSpace(c.PostForm("description")),
		ManualLocation: manual,
		Language:       strings.TrimSpace(c.PostForm("language")),
	})
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			writeAPIError(c, err)
			return
		}
		writeAPIError(c, &apiError{Status: http.StatusBadGateway, Code: "submission_failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"report": report})
}

func (a *App) listReportsHandler(c *gin.Context) {
	session, err := getSession(c)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Session required"})
		return
	}

	tab := Tab(strings.ToUpper(strings.TrimSpace(c.Query("tab"))))
	reports := FilterReports(a.store.Snapshot(), session.user(), tab)
	c.JSON(http.StatusOK, gin.H{"reports": reports, "tabs": TabsForUser(session.user())})
}

func (a *App) reportStatsHandler(c *gin.Context) {
	session, err := getSession(c)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Session required"})
		return
	}

	stats := ComputeStats(a.store.Snapshot(), session.user())
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (a *App) submissionStateHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.SubmissionStateSnapshot())
}

func validReportStatus(status ReportStatus) bool {
	for _, known := range reportStatuses {
		if known == status {
			return true
		}
	}
	return false
}

// scopedReport loads the report behind the :id parameter and verifies the
// caller's view includes it. Writes the API error itself when it does not.
func (a *App) scopedReport(c *gin.Context) (Report, bool) {
	session, err := getSession(c)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Session required"})
		return Report{}, false
	}

	report, ok := a.store.Get(c.Param("id"))
	if !ok {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Code: "report_not_found", Message: "Report not found"})
		return Report{}, false
	}

	if len(FilterReports([]Report{report}, session.user(), TabTotal)) == 0 {
		writeAPIError(c, &apiError{Status: http.StatusForbidden, Code: "forbidden", Message: "Report is outside your scope"})
		return Report{}, false
	}
	return report, true
}

func (a *App) updateStatusHandler(c *gin.Context) {
	var payload struct {
		Status         ReportStatus `json:"status" binding:"required"`
		RepairMediaURL string       `json:"repairMediaUrl"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || !validReportStatus(payload.Status) {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_status", Message: "A valid report status is required"})
		return
	}

	prev, ok := a.scopedReport(c)
	if !ok {
		return
	}
	id := prev.ID

	a.store.PatchStatus(id, payload.Status, payload.RepairMediaURL)
	go a.pushStatusUpdate(prev, payload.Status, payload.RepairMediaURL)

	updated, _ := a.store.Get(id)
	c.JSON(http.StatusOK, gin.H{"report": updated})
}

// pushStatusUpdate mirrors an optimistic local patch to the backend. On
// failure the local patch stands unless rollback is configured.
func (a *App) pushStatusUpdate(prev Report, status ReportStatus, repairMediaURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), backendRequestTimeout)
	defer cancel()

	if err := a.backend.UpdateReportStatus(ctx, prev.ID, status, repairMediaURL); err != nil {
		a.log.Error("backend status update failed", "report_id", prev.ID, "status", status, "err", err)
		if a.cfg.RollbackOnPatchFailure {
			a.store.Replace(prev)
			a.log.Info("status patch rolled back", "report_id", prev.ID)
		}
	}
}

func (a *App) assignContractorHandler(c *gin.Context) {
	var payload struct {
		ContractorID string `json:"contractorId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "contractorId is required"})
		return
	}

	prev, ok := a.scopedReport(c)
	if !ok {
		return
	}
	id := prev.ID

	a.store.AssignContractor(id, payload.ContractorID)
	go a.pushAssignment(prev, func(ctx context.Context) error {
		return a.backend.AssignContractor(ctx, id, payload.ContractorID)
	})

	updated, _ := a.store.Get(id)
	c.JSON(http.StatusOK, gin.H{"report": updated})
}

func (a *App) assignWardHandler(c *gin.Context) {
	var payload struct {
		WardID string `json:"wardId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "wardId is required"})
		return
	}

	prev, ok := a.scopedReport(c)
	if !ok {
		return
	}
	id := prev.ID

	a.store.AssignWard(id, payload.WardID)
	go a.pushAssignment(prev, func(ctx context.Context) error {
		return a.backend.AssignWard(ctx, id, payload.WardID)
	})

	updated, _ := a.store.Get(id)
	c.JSON(http.StatusOK, gin.H{"report": updated})
}

func (a *App) pushAssignment(prev Report, push func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), backendRequestTimeout)
	defer cancel()

	if err := push(ctx); err != nil {
		a.log.Error("backend assignment failed", "report_id", prev.ID, "err", err)
		if a.cfg.RollbackOnPatchFailure {
			a.store.Replace(prev)
			a.log.Info("assignment rolled back", "report_id", prev.ID)
		}
	}
}

func validDepartment(department Department) bool {
	for _, known := range departments {
		if known == department {
			return true
		}
	}
	return false
}

func (a *App) contractorsHandler(c *gin.Context) {
	session, _ := getSession(c)
	department := Department(strings.ToUpper(strings.TrimSpace(c.Query("department"))))
	if department == "" {
		department = session.Department
	}
	if department != "" && !validDepartment(department) {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_department", Message: "Unknown department"})
		return
	}

	cacheKey := "contractors:" + string(department)
	if cached, found := a.directory.Get(cacheKey); found {
		c.JSON(http.StatusOK, gin.H{"contractors": cached})
		return
	}

	contractors, err := a.backend.ListContractors(c.Request.Context(), department)
	if err != nil {
		a.log.Error("contractor directory fetch failed", "err", err)
		writeAPIError(c, &apiError{Status: http.StatusBadGateway, Code: "backend_unavailable", Message: "Could not load contractors"})
		return
	}

	a.directory.SetDefault(cacheKey, contractors)
	c.JSON(http.StatusOK, gin.H{"contractors": contractors})
}

func (a *App) wardsHandler(c *gin.Context) {
	session, _ := getSession(c)
	department := Department(strings.ToUpper(strings.TrimSpace(c.Query("department"))))
	if department == "" {
		department = session.Department
	}
	if department != "" && !validDepartment(department) {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_department", Message: "Unknown department"})
		return
	}

	cacheKey := "wards:" + string(department)
	if cached, found := a.directory.Get(cacheKey); found {
		c.JSON(http.StatusOK, gin.H{"wards": cached})
		return
	}

	wards, err := a.backend.ListWards(c.Request.Context(), department)
	if err != nil {
		a.log.Error("ward directory fetch failed", "err", err)
		writeAPIError(c, &apiError{Status: http.StatusBadGateway, Code: "backend_unavailable", Message: "Could not load wards"})
		return
	}

	a.directory.SetDefault(cacheKey, wards)
	c.JSON(http.StatusOK, gin.H{"wards": wards})
}

func (a *App) workOrderPDFHandler(c *gin.Context) {
	report, ok := a.scopedReport(c)
	if !ok {
		return
	}

	pdf, err := buildWorkOrderPDF(report)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="workorder-`+report.ID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
