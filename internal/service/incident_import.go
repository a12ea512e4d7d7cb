package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
)

// Placeholders stored for columns an imported row leaves empty.
const (
	ImportDefaultDescription = "Sin descripción"
	ImportDefaultCategory    = "General"
	ImportDefaultLocation    = "Sin ubicación"
)

// importRow column order: title,description,category,priority,location,image_url.
const (
	colTitle = iota
	colDescription
	colCategory
	colPriority
	colLocation
	colImageURL
)

// Import creates one incident per comma separated line. Cells are not quoted or escaped,
// so a comma inside a value shifts the remaining columns. Imported rows skip the
// category check and fall back to media priority.
func (s *IncidentService) Import(ctx context.Context, req dto.ImportIncidentsRequest, actor *models.JWTClaims, meta models.LoginRequest) (*dto.ImportResult, error) {
	lines := strings.Split(strings.ReplaceAll(req.Text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if isImportHeader(splitImportLine(line)) {
			lines = lines[i+1:]
		}
		break
	}

	creator := &models.Incident{}
	s.stampCreator(ctx, creator, actor)

	result := &dto.ImportResult{}
	base := s.now()
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := splitImportLine(line)
		if len(cells) < 2 || cells[colTitle] == "" {
			result.Skipped++
			continue
		}

		// Rows keep file order under created_at.
		at := base.Add(time.Duration(result.Imported) * time.Millisecond)
		incident := buildImportedIncident(cells, at)
		incident.UserID = creator.UserID
		incident.UserName = creator.UserName
		incident.UserHouse = creator.UserHouse

		if err := s.repo.Create(ctx, incident); err != nil {
			s.logger.Warn("failed to import incident row", zap.String("title", incident.Title), zap.Error(err))
			result.Skipped++
			continue
		}
		result.Imported++
	}

	s.metrics.RecordImport(result.Imported, result.Skipped)
	newValues, _ := json.Marshal(result)
	s.recordAudit(ctx, actor, models.AuditActionIncidentImport, "", nil, newValues, meta)
	return result, nil
}

func splitImportLine(line string) []string {
	cells := strings.Split(line, ",")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func isImportHeader(cells []string) bool {
	for i := 0; i < len(cells) && i < 2; i++ {
		cell := strings.ToLower(cells[i])
		if strings.Contains(cell, "título") || strings.Contains(cell, "title") {
			return true
		}
	}
	return false
}

func buildImportedIncident(cells []string, at time.Time) *models.Incident {
	cell := func(i int, fallback string) string {
		if i < len(cells) && cells[i] != "" {
			return cells[i]
		}
		return fallback
	}

	priority := models.IncidentPriority(strings.ToLower(cell(colPriority, "")))
	if !priority.IsValid() {
		priority = models.PriorityMedium
	}

	incident := &models.Incident{
		ID:          uuid.NewString(),
		Title:       cells[colTitle],
		Description: cell(colDescription, ImportDefaultDescription),
		Category:    cell(colCategory, ImportDefaultCategory),
		Status:      models.IncidentStatusPending,
		Priority:    priority,
		Location:    cell(colLocation, ImportDefaultLocation),
		Attachments: models.Attachments{},
		Notes:       models.IncidentNotes{},
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if url := cell(colImageURL, ""); url != "" {
		incident.Attachments = append(incident.Attachments, models.Attachment{
			ID:   uuid.NewString(),
			Type: models.AttachmentImage,
			URL:  url,
			Name: "imagen importada",
		})
	}
	return incident
}
