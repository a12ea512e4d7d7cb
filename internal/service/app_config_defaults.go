package service

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/incident-portal-api/internal/models"
)

// DefaultPendingAccountMessage is shown to accounts awaiting approval.
const DefaultPendingAccountMessage = "Tu cuenta está pendiente de aprobación por un administrador."

func defaultCategories() []string {
	return []string{"Fontanería", "Electricidad", "Limpieza", "Seguridad", "Jardinería", "Ascensores", "Otros"}
}

func defaultSortOptions() []models.SortOptionConfig {
	return []models.SortOptionConfig{
		{ID: "date_desc", Label: "Más recientes", Field: models.SortFieldCreatedAt, Direction: models.SortDesc, Active: true},
		{ID: "date_asc", Label: "Más antiguos", Field: models.SortFieldCreatedAt, Direction: models.SortAsc, Active: true},
		{ID: "priority_desc", Label: "Prioridad (Alta a Baja)", Field: models.SortFieldPriority, Direction: models.SortDesc, Active: true},
		{ID: "priority_asc", Label: "Prioridad (Baja a Alta)", Field: models.SortFieldPriority, Direction: models.SortAsc, Active: true},
		{ID: "status", Label: "Estado", Field: models.SortFieldStatus, Direction: models.SortAsc, Active: true},
		{ID: "category", Label: "Categoría", Field: models.SortFieldCategory, Direction: models.SortAsc, Active: true},
		{ID: "updated_desc", Label: "Última actualización", Field: models.SortFieldUpdatedAt, Direction: models.SortDesc, Active: false},
	}
}

func defaultSystemFields() []models.UserFieldConfig {
	return []models.UserFieldConfig{
		{ID: models.FieldUsername, Key: models.FieldUsername, Label: "Usuario", Placeholder: "Nombre de usuario", Active: true, IsSystem: true},
		{ID: models.FieldPassword, Key: models.FieldPassword, Label: "Contraseña", Placeholder: "Contraseña", Active: true, IsSystem: true},
		{ID: models.FieldEmail, Key: models.FieldEmail, Label: "Correo electrónico", Placeholder: "correo@ejemplo.com", Active: true, IsSystem: true},
		{ID: models.FieldFullName, Key: models.FieldFullName, Label: "Nombre completo", Placeholder: "Nombre y apellidos", Active: true, IsSystem: true},
		{ID: models.FieldHouseNumber, Key: models.FieldHouseNumber, Label: "Número de vivienda", Placeholder: "Ej. 12B", Active: true, IsSystem: true},
		{ID: models.FieldRole, Key: models.FieldRole, Label: "Rol", Placeholder: "", Active: true, IsSystem: true},
	}
}

// DefaultAppConfig returns the first-run configuration.
func DefaultAppConfig() *models.AppConfig {
	return &models.AppConfig{
		Categories:            defaultCategories(),
		SortOptions:           defaultSortOptions(),
		UserFields:            defaultSystemFields(),
		PendingAccountMessage: DefaultPendingAccountMessage,
	}
}

// slugify turns a label into an ASCII identifier: "Número de mascotas" -> "numero_de_mascotas".
func slugify(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, label)
	if err != nil {
		plain = label
	}
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(plain) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// uniqueID returns base, or base_N when base is already taken.
func uniqueID(base string, taken func(string) bool) string {
	if base == "" {
		base = "field"
	}
	candidate := base
	for i := 2; taken(candidate); i++ {
		candidate = base + "_" + strconv.Itoa(i)
	}
	return candidate
}
