package service

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/noah-isme/incident-portal-api/internal/models"
)

// Status filter values accepted by the incident list.
const (
	StatusFilterAll      = "all"
	StatusFilterActive   = "active"
	StatusFilterResolved = "resolved"
	CategoryFilterAll    = "all"
)

// IncidentView selects and orders a list of incidents. A nil Sort keeps the input order.
type IncidentView struct {
	Status   string
	Category string
	Sort     *models.SortOptionConfig
}

// ApplyIncidentView filters and sorts incidents without touching the input slice.
// Sorting is stable so ties keep their original relative order.
func ApplyIncidentView(incidents []models.Incident, view IncidentView) []models.Incident {
	out := make([]models.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if matchesStatus(inc.Status, view.Status) && matchesCategory(inc.Category, view.Category) {
			out = append(out, inc)
		}
	}
	if view.Sort == nil {
		return out
	}

	less := incidentComparator(view.Sort.Field)
	if less == nil {
		return out
	}
	desc := view.Sort.Direction == models.SortDesc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func matchesStatus(status models.IncidentStatus, filter string) bool {
	switch strings.TrimSpace(filter) {
	case "", StatusFilterAll:
		return true
	case StatusFilterActive:
		return status.IsOpen()
	case StatusFilterResolved:
		return status.IsClosed()
	default:
		return string(status) == filter
	}
}

func matchesCategory(category, filter string) bool {
	if filter == "" || filter == CategoryFilterAll {
		return true
	}
	return category == filter
}

// incidentComparator returns the ascending order for a sortable field, nil when the
// field is not recognised.
func incidentComparator(field string) func(a, b models.Incident) bool {
	switch field {
	case models.SortFieldCreatedAt:
		return func(a, b models.Incident) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case models.SortFieldUpdatedAt:
		return func(a, b models.Incident) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case models.SortFieldPriority:
		return func(a, b models.Incident) bool { return a.Priority.Rank() < b.Priority.Rank() }
	}

	value := stringField(field)
	if value == nil {
		return nil
	}
	// Collator instances are not safe for concurrent use; each sort gets its own.
	col := collate.New(language.Spanish)
	return func(a, b models.Incident) bool {
		return col.CompareString(value(a), value(b)) < 0
	}
}

func stringField(field string) func(models.Incident) string {
	switch field {
	case models.SortFieldStatus:
		return func(i models.Incident) string { return string(i.Status) }
	case models.SortFieldTitle:
		return func(i models.Incident) string { return i.Title }
	case models.SortFieldCategory:
		return func(i models.Incident) string { return i.Category }
	case models.SortFieldUserName:
		return func(i models.Incident) string { return i.UserName }
	case models.SortFieldUserHouse:
		return func(i models.Incident) string { return i.UserHouse }
	case models.SortFieldLocation:
		return func(i models.Incident) string { return i.Location }
	}
	return nil
}
