package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

type incidentListerStub struct {
	incidents []models.Incident
	err       error
	lastQuery dto.IncidentQuery
}

func (s *incidentListerStub) List(ctx context.Context, query dto.IncidentQuery) ([]models.Incident, error) {
	s.lastQuery = query
	if s.err != nil {
		return nil, s.err
	}
	return ApplyIncidentView(s.incidents, IncidentView{Status: query.Status, Category: query.Category}), nil
}

func newExportServiceForTest(lister *incidentListerStub) *ExportService {
	svc := NewExportService(lister, zap.NewNop(), nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return svc
}

func TestExportServiceCSV(t *testing.T) {
	lister := &incidentListerStub{incidents: filterFixture()}
	svc := newExportServiceForTest(lister)

	result, err := svc.Export(context.Background(), dto.IncidentQuery{Status: StatusFilterResolved}, "csv")
	require.NoError(t, err)

	assert.Equal(t, "incidencias_resolved_20240506_070809.csv", result.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, StatusFilterResolved, lister.lastQuery.Status)

	lines := strings.Split(strings.TrimSpace(string(bytes.TrimPrefix(result.Data, []byte{0xEF, 0xBB, 0xBF}))), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Fecha,Título,Categoría"))
	assert.Contains(t, lines[1], "Árbol caído")
}

func TestExportServicePDF(t *testing.T) {
	svc := newExportServiceForTest(&incidentListerStub{incidents: filterFixture()})

	result, err := svc.Export(context.Background(), dto.IncidentQuery{}, "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".pdf"))
	assert.True(t, bytes.HasPrefix(result.Data, []byte("%PDF")))
	assert.Equal(t, 6, result.Rows)
}

func TestExportServiceErrors(t *testing.T) {
	svc := newExportServiceForTest(&incidentListerStub{})
	_, err := svc.Export(context.Background(), dto.IncidentQuery{}, "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	failing := newExportServiceForTest(&incidentListerStub{err: appErrors.ErrInternal})
	_, err = failing.Export(context.Background(), dto.IncidentQuery{}, "csv")
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
