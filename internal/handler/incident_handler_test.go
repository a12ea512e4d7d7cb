package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/middleware"
	"github.com/noah-isme/incident-portal-api/internal/models"
	"github.com/noah-isme/incident-portal-api/internal/service"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newTestContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

type fakeIncidentService struct {
	incidents []models.Incident
	err       error

	lastQuery  dto.IncidentQuery
	lastCreate dto.CreateIncidentRequest
	lastAuthor string
	lastImport dto.ImportIncidentsRequest
	lastNotify dto.BatchNotifyRequest
	deleted    []string
}

func (f *fakeIncidentService) List(_ context.Context, query dto.IncidentQuery) ([]models.Incident, error) {
	f.lastQuery = query
	return f.incidents, f.err
}

func (f *fakeIncidentService) Get(_ context.Context, id string) (*models.Incident, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.incidents {
		if f.incidents[i].ID == id {
			return &f.incidents[i], nil
		}
	}
	return nil, appErrors.ErrIncidentNotFound
}

func (f *fakeIncidentService) Create(_ context.Context, req dto.CreateIncidentRequest, actor *models.JWTClaims, _ models.LoginRequest) (*models.Incident, error) {
	f.lastCreate = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Incident{ID: "inc-new", Title: req.Title, Category: req.Category, UserID: actor.UserID, Status: models.IncidentStatusPending}, nil
}

func (f *fakeIncidentService) UpdateStatus(_ context.Context, id string, req dto.UpdateIncidentStatusRequest, _ *models.JWTClaims, _ models.LoginRequest) (*models.Incident, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Incident{ID: id, Status: models.IncidentStatus(req.Status)}, nil
}

func (f *fakeIncidentService) AddNote(_ context.Context, _ string, req dto.AddNoteRequest, authorName string, _ *models.JWTClaims, _ models.LoginRequest) (*models.IncidentNote, error) {
	f.lastAuthor = authorName
	if f.err != nil {
		return nil, f.err
	}
	return &models.IncidentNote{ID: "note-1", Content: req.Content, AuthorName: authorName, CreatedAt: time.Now()}, nil
}

func (f *fakeIncidentService) Delete(_ context.Context, id string, _ *models.JWTClaims, _ models.LoginRequest) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeIncidentService) BatchNotify(_ context.Context, req dto.BatchNotifyRequest, _ *models.JWTClaims, _ models.LoginRequest) (int, error) {
	f.lastNotify = req
	return len(req.IncidentIDs), f.err
}

func (f *fakeIncidentService) Import(_ context.Context, req dto.ImportIncidentsRequest, _ *models.JWTClaims, _ models.LoginRequest) (*dto.ImportResult, error) {
	f.lastImport = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ImportResult{Imported: strings.Count(strings.TrimSpace(req.Text), "\n") + 1}, nil
}

func (f *fakeIncidentService) Present(incident models.Incident) dto.IncidentResponse {
	return dto.IncidentResponse{ID: incident.ID, Title: incident.Title, Category: incident.Category, Status: incident.Status, UserID: incident.UserID, Notes: []models.IncidentNote{}}
}

func (f *fakeIncidentService) PresentAll(incidents []models.Incident) []dto.IncidentResponse {
	out := make([]dto.IncidentResponse, 0, len(incidents))
	for _, incident := range incidents {
		out = append(out, f.Present(incident))
	}
	return out
}

type fakeExporter struct {
	result *service.ExportResult
	err    error
	format string
	query  dto.IncidentQuery
}

func (f *fakeExporter) Export(_ context.Context, query dto.IncidentQuery, format string) (*service.ExportResult, error) {
	f.query = query
	f.format = format
	return f.result, f.err
}

type fakeSessions struct {
	info *models.UserInfo
	err  error
}

func (f *fakeSessions) GetSession(context.Context, string) (*models.UserInfo, error) {
	return f.info, f.err
}

var supervisorClaims = &models.JWTClaims{UserID: "sup-1", Username: "marta", Role: models.RoleSupervisor, Status: models.UserStatusActive}

func TestIncidentHandlerListPassesFiltersAndCounts(t *testing.T) {
	svc := &fakeIncidentService{incidents: []models.Incident{{ID: "1", Title: "Fuga"}, {ID: "2", Title: "Ruido"}}}
	h := NewIncidentHandler(svc, nil, nil)

	c, rec := newTestContext(http.MethodGet, "/incidents?status=pendiente&category=Limpieza&sort=sort-priority", nil, supervisorClaims)
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.IncidentQuery{Status: "pendiente", Category: "Limpieza", Sort: "sort-priority"}, svc.lastQuery)
	env := decodeEnvelope(t, rec)
	assert.EqualValues(t, 2, env.Meta["count"])
	var items []dto.IncidentResponse
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Fuga", items[0].Title)
}

func TestIncidentHandlerGetNotFound(t *testing.T) {
	h := NewIncidentHandler(&fakeIncidentService{}, nil, nil)

	c, rec := newTestContext(http.MethodGet, "/incidents/missing", nil, supervisorClaims)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Get(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrIncidentNotFound.Code, env.Error.Code)
}

func TestIncidentHandlerCreate(t *testing.T) {
	svc := &fakeIncidentService{}
	h := NewIncidentHandler(svc, nil, nil)

	body, _ := json.Marshal(dto.CreateIncidentRequest{Title: "Farola rota", Category: "Alumbrado", Priority: "alta"})
	c, rec := newTestContext(http.MethodPost, "/incidents", body, &models.JWTClaims{UserID: "u-1", Role: models.RoleUser})
	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alta", svc.lastCreate.Priority)
	var created dto.IncidentResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &created))
	assert.Equal(t, "u-1", created.UserID)
	assert.Equal(t, models.IncidentStatusPending, created.Status)
}

func TestIncidentHandlerCreateRejectsMalformedBody(t *testing.T) {
	h := NewIncidentHandler(&fakeIncidentService{}, nil, nil)

	c, rec := newTestContext(http.MethodPost, "/incidents", []byte(`{"title":`), supervisorClaims)
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIncidentHandlerCreateSurfacesCapacityError(t *testing.T) {
	h := NewIncidentHandler(&fakeIncidentService{err: appErrors.ErrCapacity}, nil, nil)

	body, _ := json.Marshal(dto.CreateIncidentRequest{Title: "Vídeo", Category: "Otros"})
	c, rec := newTestContext(http.MethodPost, "/incidents", body, supervisorClaims)
	h.Create(c)

	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
}

func TestIncidentHandlerAddNoteAuthor(t *testing.T) {
	cases := []struct {
		name     string
		sessions sessionReader
		want     string
	}{
		{name: "full name from session", sessions: &fakeSessions{info: &models.UserInfo{FullName: "Marta Gil"}}, want: "Marta Gil"},
		{name: "username when session has no name", sessions: &fakeSessions{info: &models.UserInfo{}}, want: "marta"},
		{name: "username when session lookup fails", sessions: &fakeSessions{err: appErrors.ErrUserNotFound}, want: "marta"},
		{name: "username without session reader", sessions: nil, want: "marta"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeIncidentService{}
			h := NewIncidentHandler(svc, nil, tc.sessions)

			body, _ := json.Marshal(dto.AddNoteRequest{Content: "Revisado"})
			c, rec := newTestContext(http.MethodPost, "/incidents/1/notes", body, supervisorClaims)
			c.Params = gin.Params{{Key: "id", Value: "1"}}
			h.AddNote(c)

			require.Equal(t, http.StatusCreated, rec.Code)
			assert.Equal(t, tc.want, svc.lastAuthor)
		})
	}
}

func TestIncidentHandlerDeleteReturnsNoContent(t *testing.T) {
	svc := &fakeIncidentService{}
	h := NewIncidentHandler(svc, nil, nil)

	c, rec := newTestContext(http.MethodDelete, "/incidents/gone", nil, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	c.Params = gin.Params{{Key: "id", Value: "gone"}}
	h.Delete(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, []string{"gone"}, svc.deleted)
}

func TestIncidentHandlerBatchNotify(t *testing.T) {
	svc := &fakeIncidentService{}
	h := NewIncidentHandler(svc, nil, nil)

	body, _ := json.Marshal(dto.BatchNotifyRequest{IncidentIDs: []string{"1", "2"}, Message: "Se ha reparado"})
	c, rec := newTestContext(http.MethodPost, "/incidents/notify", body, supervisorClaims)
	h.BatchNotify(c)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var out dto.BatchNotifyResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	assert.Equal(t, 2, out.Queued)
	assert.Equal(t, "Se ha reparado", svc.lastNotify.Message)
}

func TestIncidentHandlerImportAcceptsPlainText(t *testing.T) {
	svc := &fakeIncidentService{}
	h := NewIncidentHandler(svc, nil, nil)

	text := "Título,Descripción\nFuga,Agua en pasillo\nRuido,Obras de noche\n"
	c, rec := newTestContext(http.MethodPost, "/incidents/import", nil, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	c.Request = httptest.NewRequest(http.MethodPost, "/incidents/import", strings.NewReader(text))
	c.Request.Header.Set("Content-Type", "text/csv; charset=utf-8")
	h.Import(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, text, svc.lastImport.Text)
}

func TestIncidentHandlerImportAcceptsJSON(t *testing.T) {
	svc := &fakeIncidentService{}
	h := NewIncidentHandler(svc, nil, nil)

	body, _ := json.Marshal(dto.ImportIncidentsRequest{Text: "Fuga,Agua"})
	c, rec := newTestContext(http.MethodPost, "/incidents/import", body, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	h.Import(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Fuga,Agua", svc.lastImport.Text)
}

func TestIncidentHandlerImportRejectsBlankAndOversizedText(t *testing.T) {
	svc := &fakeIncidentService{}
	h := NewIncidentHandler(svc, nil, nil)

	c, rec := newTestContext(http.MethodPost, "/incidents/import", nil, nil)
	c.Request = httptest.NewRequest(http.MethodPost, "/incidents/import", strings.NewReader("  \n "))
	c.Request.Header.Set("Content-Type", "text/plain")
	h.Import(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/incidents/import", nil, nil)
	c.Request = httptest.NewRequest(http.MethodPost, "/incidents/import", strings.NewReader(strings.Repeat("a", maxImportBytes+1)))
	c.Request.Header.Set("Content-Type", "text/plain")
	h.Import(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, svc.lastImport.Text)
}

func TestIncidentHandlerExportStreamsFile(t *testing.T) {
	exporter := &fakeExporter{result: &service.ExportResult{
		Filename:    "incidencias_pendiente_20240301_101500.csv",
		ContentType: "text/csv",
		Data:        []byte("Fecha,Título\n"),
	}}
	h := NewIncidentHandler(&fakeIncidentService{}, exporter, nil)

	c, rec := newTestContext(http.MethodGet, "/incidents/export?format=csv&status=pendiente", nil, supervisorClaims)
	h.Export(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", exporter.format)
	assert.Equal(t, "pendiente", exporter.query.Status)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "incidencias_pendiente_20240301_101500.csv")
	assert.Equal(t, "Fecha,Título\n", rec.Body.String())
}

func TestIncidentHandlerExportUnsupportedFormat(t *testing.T) {
	exporter := &fakeExporter{err: appErrors.Clone(appErrors.ErrValidation, "formato no soportado")}
	h := NewIncidentHandler(&fakeIncidentService{}, exporter, nil)

	c, rec := newTestContext(http.MethodGet, "/incidents/export?format=xlsx", nil, supervisorClaims)
	h.Export(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
