package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
	"github.com/noah-isme/incident-portal-api/pkg/export"
)

type incidentLister interface {
	List(ctx context.Context, query dto.IncidentQuery) ([]models.Incident, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered incident listing ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService renders the filtered incident list as CSV or PDF.
type ExportService struct {
	incidents incidentLister
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(incidents incidentLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		incidents: incidents,
		csv:       csv,
		pdf:       pdf,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var incidentExportColumns = []export.Column{
	{Key: "created_at", Label: "Fecha", Weight: 1.3},
	{Key: "title", Label: "Título", Weight: 2},
	{Key: "category", Label: "Categoría", Weight: 1.2},
	{Key: "priority", Label: "Prioridad", Weight: 0.9},
	{Key: "status", Label: "Estado", Weight: 1},
	{Key: "location", Label: "Ubicación", Weight: 1.3},
	{Key: "user_name", Label: "Vecino", Weight: 1.3},
	{Key: "user_house", Label: "Vivienda", Weight: 0.8},
	{Key: "notes", Label: "Notas", Weight: 0.6},
}

// Export renders the incidents matching query in the requested format.
func (s *ExportService) Export(ctx context.Context, query dto.IncidentQuery, rawFormat string) (*ExportResult, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "formato de exportación no soportado")
	}

	incidents, err := s.incidents.List(ctx, query)
	if err != nil {
		return nil, err
	}
	dataset := buildIncidentDataset(incidents)

	var payload []byte
	switch format {
	case export.FormatPDF:
		payload, err = s.pdf.Render(dataset, "Incidencias")
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("incident export rendered", zap.String("format", string(format)), zap.Int("rows", len(incidents)))
	return &ExportResult{
		Filename:    s.buildFilename(query, format),
		ContentType: format.ContentType(),
		Data:        payload,
		Rows:        len(incidents),
	}, nil
}

func (s *ExportService) buildFilename(query dto.IncidentQuery, format export.Format) string {
	timestamp := s.now().Format("20060102_150405")
	scope := sanitizeFilename(query.Status)
	return fmt.Sprintf("incidencias_%s_%s.%s", scope, timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return StatusFilterAll
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func buildIncidentDataset(incidents []models.Incident) export.Dataset {
	rows := make([]map[string]string, 0, len(incidents))
	for _, inc := range incidents {
		rows = append(rows, map[string]string{
			"created_at": inc.CreatedAt.Format("2006-01-02 15:04"),
			"title":      inc.Title,
			"category":   inc.Category,
			"priority":   string(inc.Priority),
			"status":     string(inc.Status),
			"location":   inc.Location,
			"user_name":  inc.UserName,
			"user_house": inc.UserHouse,
			"notes":      fmt.Sprintf("%d", len(inc.Notes)),
		})
	}
	return export.Dataset{Columns: incidentExportColumns, Rows: rows}
}
