package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
)

type configurationRepoStub struct {
	mu      sync.Mutex
	items   map[string]models.Configuration
	err     error
	upserts int
}

func (s *configurationRepoStub) Get(ctx context.Context, key string) (*models.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if cfg, ok := s.items[key]; ok {
		return &cfg, nil
	}
	return nil, sql.ErrNoRows
}

func (s *configurationRepoStub) Upsert(ctx context.Context, cfg *models.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.items == nil {
		s.items = make(map[string]models.Configuration)
	}
	s.items[cfg.Key] = *cfg
	s.upserts++
	return nil
}

func (s *configurationRepoStub) raw(t *testing.T) map[string]interface{} {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(s.items[models.AppConfigKey].Value, &out))
	return out
}

func (s *configurationRepoStub) stored(t *testing.T) models.AppConfig {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out models.AppConfig
	require.NoError(t, json.Unmarshal(s.items[models.AppConfigKey].Value, &out))
	return out
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

func newConfigurationService(repo *configurationRepoStub, audit *auditRecorder) *ConfigurationService {
	return NewConfigurationService(repo, audit, nil, time.Minute, nil, nil)
}

func seedConfig(repo *configurationRepoStub, raw string) {
	repo.items = map[string]models.Configuration{
		models.AppConfigKey: {Key: models.AppConfigKey, Value: []byte(raw)},
	}
}

var adminActor = &models.JWTClaims{UserID: "admin-1", Username: "admin", Role: models.RoleAdmin, Status: models.UserStatusActive}

func TestConfigurationServiceGetConfigInitialisesDefaults(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo, &auditRecorder{})

	cfg, err := svc.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaultCategories(), cfg.Categories)
	assert.Len(t, cfg.SortOptions, 7)
	assert.Len(t, cfg.UserFields, len(models.SystemFieldKeys))
	assert.Equal(t, DefaultPendingAccountMessage, cfg.PendingAccountMessage)

	stored := repo.stored(t)
	assert.Equal(t, cfg.Categories, stored.Categories)

	opt, ok := cfg.SortOption("updated_desc")
	require.True(t, ok)
	assert.False(t, opt.Active)
}

func TestConfigurationServiceMigratesLegacyDocument(t *testing.T) {
	repo := &configurationRepoStub{}
	seedConfig(repo, `{"categories":["Agua"],"customFields":["Mascotas"," ","Mascotas"]}`)
	svc := newConfigurationService(repo, &auditRecorder{})

	cfg, err := svc.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Agua"}, cfg.Categories)
	assert.Equal(t, defaultSortOptions(), cfg.SortOptions)
	assert.Equal(t, DefaultPendingAccountMessage, cfg.PendingAccountMessage)

	var custom []models.UserFieldConfig
	for _, f := range cfg.UserFields {
		if !f.IsSystem {
			custom = append(custom, f)
		}
	}
	require.Len(t, custom, 1)
	assert.Equal(t, "Mascotas", custom[0].Key)
	assert.Equal(t, "Mascotas", custom[0].Label)
	assert.True(t, custom[0].Active)

	raw := repo.raw(t)
	_, legacy := raw["customFields"]
	assert.False(t, legacy, "upgraded document must drop the legacy list")
	assert.Contains(t, raw, "userFields")
}

func TestConfigurationServiceAddsMissingSystemFields(t *testing.T) {
	repo := &configurationRepoStub{}
	seedConfig(repo, `{"categories":[],"sortOptions":[],"userFields":[{"id":"username","key":"username","label":"Usuario","active":true}],"pendingAccountMessage":"Espera"}`)
	svc := newConfigurationService(repo, &auditRecorder{})

	cfg, err := svc.GetConfig(context.Background())
	require.NoError(t, err)
	keys := map[string]bool{}
	for _, f := range cfg.UserFields {
		keys[f.Key] = f.IsSystem
	}
	for _, key := range models.SystemFieldKeys {
		assert.True(t, keys[key], key)
	}
	assert.Equal(t, "Espera", cfg.PendingAccountMessage)
	assert.Empty(t, cfg.Categories)
}

func TestConfigurationServiceCorruptedDocument(t *testing.T) {
	repo := &configurationRepoStub{}
	seedConfig(repo, `{not json`)
	svc := newConfigurationService(repo, &auditRecorder{})

	cfg, err := svc.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultAppConfig(), cfg)
	assert.Equal(t, 0, repo.upserts, "reads must not overwrite a corrupted document")

	_, _, err = svc.AddCategory(context.Background(), "Agua", adminActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrStorage))

	saved, err := svc.SaveConfig(context.Background(), dto.SaveAppConfigRequest{
		Categories:  []string{"Agua"},
		SortOptions: defaultSortOptions(),
		UserFields:  defaultSystemFields(),
	}, adminActor)
	require.NoError(t, err)
	assert.Equal(t, []string{"Agua"}, saved.Categories)
	assert.Equal(t, DefaultPendingAccountMessage, saved.PendingAccountMessage)
}

func TestConfigurationServiceRepositoryFailure(t *testing.T) {
	repo := &configurationRepoStub{err: errors.New("db down")}
	svc := newConfigurationService(repo, &auditRecorder{})

	_, err := svc.GetConfig(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestConfigurationServiceAddCategory(t *testing.T) {
	repo := &configurationRepoStub{}
	audit := &auditRecorder{}
	svc := newConfigurationService(repo, audit)
	ctx := context.Background()

	added, cfg, err := svc.AddCategory(ctx, "  Piscina ", adminActor)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "Piscina", cfg.Categories[len(cfg.Categories)-1])

	upserts := repo.upserts
	added, cfg, err = svc.AddCategory(ctx, "Piscina", adminActor)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, upserts, repo.upserts)
	count := 0
	for _, c := range cfg.Categories {
		if c == "Piscina" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	added, _, err = svc.AddCategory(ctx, "piscina", adminActor)
	require.NoError(t, err)
	assert.True(t, added, "category match is case-sensitive")

	_, _, err = svc.AddCategory(ctx, "   ", adminActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, cfg, err = svc.AddCategory(ctx, " all", adminActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Nil(t, cfg)

	added, _, err = svc.AddCategory(ctx, "All", adminActor)
	require.NoError(t, err)
	assert.True(t, added, "only the exact filter keyword is reserved")

	assert.Contains(t, audit.actions(), models.AuditActionConfigUpdate)
}

func TestConfigurationServiceRemoveAndMoveCategory(t *testing.T) {
	repo := &configurationRepoStub{}
	seedConfig(repo, `{"categories":["A","B","C"],"sortOptions":[],"userFields":[],"pendingAccountMessage":"x"}`)
	svc := newConfigurationService(repo, &auditRecorder{})
	ctx := context.Background()

	cfg, err := svc.MoveCategory(ctx, "C", -1, adminActor)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, cfg.Categories)

	cfg, err = svc.MoveCategory(ctx, "A", -5, adminActor)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, cfg.Categories)

	cfg, err = svc.MoveCategory(ctx, "A", 10, adminActor)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, cfg.Categories)

	cfg, err = svc.RemoveCategory(ctx, "B", adminActor)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, cfg.Categories)

	_, err = svc.RemoveCategory(ctx, "Z", adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestConfigurationServiceSortOptions(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo, &auditRecorder{})
	ctx := context.Background()

	cfg, err := svc.AddSortOption(ctx, dto.SortOptionRequest{Label: "Título A-Z", Field: models.SortFieldTitle, Direction: "asc"}, adminActor)
	require.NoError(t, err)
	opt, ok := cfg.SortOption("titulo_a_z")
	require.True(t, ok)
	assert.True(t, opt.Active)

	_, err = svc.AddSortOption(ctx, dto.SortOptionRequest{ID: "titulo_a_z", Label: "Otra", Field: models.SortFieldTitle, Direction: "asc"}, adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.AddSortOption(ctx, dto.SortOptionRequest{Label: "Mala", Field: "nope", Direction: "asc"}, adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.AddSortOption(ctx, dto.SortOptionRequest{Label: "Mala", Field: models.SortFieldTitle, Direction: "up"}, adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	cfg, err = svc.UpdateSortOption(ctx, "titulo_a_z", dto.SortOptionRequest{Label: "Título Z-A", Field: models.SortFieldTitle, Direction: "desc"}, adminActor)
	require.NoError(t, err)
	opt, _ = cfg.SortOption("titulo_a_z")
	assert.Equal(t, models.SortDesc, opt.Direction)
	assert.Equal(t, "Título Z-A", opt.Label)

	_, err = svc.SetSortOptionActive(ctx, "titulo_a_z", false, adminActor)
	require.NoError(t, err)
	resolved, err := svc.ResolveSortOption(ctx, "titulo_a_z")
	require.NoError(t, err)
	assert.Nil(t, resolved, "inactive options are not resolvable")

	resolved, err = svc.ResolveSortOption(ctx, "date_desc")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, models.SortFieldCreatedAt, resolved.Field)

	resolved, err = svc.ResolveSortOption(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, resolved)

	cfg, err = svc.DeleteSortOption(ctx, "titulo_a_z", adminActor)
	require.NoError(t, err)
	_, ok = cfg.SortOption("titulo_a_z")
	assert.False(t, ok)

	_, err = svc.DeleteSortOption(ctx, "titulo_a_z", adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	active, err := svc.ActiveSortOptions(ctx)
	require.NoError(t, err)
	for _, o := range active {
		assert.True(t, o.Active)
	}
}

func TestConfigurationServiceUserFields(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo, &auditRecorder{})
	ctx := context.Background()

	cfg, err := svc.AddUserField(ctx, dto.UserFieldRequest{Label: "Número de mascotas", Placeholder: "0"}, adminActor)
	require.NoError(t, err)
	field, ok := cfg.UserField("numero_de_mascotas")
	require.True(t, ok)
	assert.False(t, field.IsSystem)
	assert.True(t, field.Active)

	_, err = svc.AddUserField(ctx, dto.UserFieldRequest{Label: "Número de mascotas"}, adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrValidation), "non-system labels are unique")

	_, err = svc.AddUserField(ctx, dto.UserFieldRequest{Label: "Email"}, adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrValidation), "system keys are reserved")

	cfg, err = svc.UpdateUserField(ctx, models.FieldEmail, dto.UserFieldRequest{Label: "Correo"}, adminActor)
	require.NoError(t, err)
	field, _ = cfg.UserField(models.FieldEmail)
	assert.Equal(t, "Correo", field.Label)
	assert.Equal(t, models.FieldEmail, field.Key)
	assert.True(t, field.IsSystem)

	_, err = svc.SetUserFieldActive(ctx, models.FieldPassword, false, adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	cfg, err = svc.SetUserFieldActive(ctx, models.FieldHouseNumber, false, adminActor)
	require.NoError(t, err)
	field, _ = cfg.UserField(models.FieldHouseNumber)
	assert.False(t, field.Active)

	active, err := svc.ActiveUserFields(ctx)
	require.NoError(t, err)
	for _, f := range active {
		assert.NotEqual(t, models.FieldHouseNumber, f.Key)
	}

	_, err = svc.DeleteUserField(ctx, models.FieldRole, adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	cfg, err = svc.DeleteUserField(ctx, "numero_de_mascotas", adminActor)
	require.NoError(t, err)
	_, ok = cfg.UserField("numero_de_mascotas")
	assert.False(t, ok)

	_, err = svc.DeleteUserField(ctx, "numero_de_mascotas", adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestConfigurationServicePendingMessage(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo, &auditRecorder{})
	ctx := context.Background()

	_, err := svc.SetPendingAccountMessage(ctx, "  ", adminActor)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.SetPendingAccountMessage(ctx, "Vuelve mañana", adminActor)
	require.NoError(t, err)
	assert.Equal(t, "Vuelve mañana", svc.PendingAccountMessage(ctx))
}

func TestConfigurationServiceSaveConfigValidation(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo, &auditRecorder{})
	ctx := context.Background()

	base := func() dto.SaveAppConfigRequest {
		return dto.SaveAppConfigRequest{
			Categories:            []string{"Agua", "Luz"},
			SortOptions:           defaultSortOptions(),
			UserFields:            defaultSystemFields(),
			PendingAccountMessage: "Espera",
		}
	}

	cases := map[string]func(r *dto.SaveAppConfigRequest){
		"duplicate category": func(r *dto.SaveAppConfigRequest) { r.Categories = []string{"Agua", " Agua"} },
		"empty category":     func(r *dto.SaveAppConfigRequest) { r.Categories = []string{" "} },
		"reserved category":  func(r *dto.SaveAppConfigRequest) { r.Categories = []string{"Agua", " all "} },
		"empty sort label":   func(r *dto.SaveAppConfigRequest) { r.SortOptions[0].Label = "" },
		"unknown sort field": func(r *dto.SaveAppConfigRequest) { r.SortOptions[0].Field = "votes" },
		"bad direction":      func(r *dto.SaveAppConfigRequest) { r.SortOptions[0].Direction = "sideways" },
		"duplicate sort id":  func(r *dto.SaveAppConfigRequest) { r.SortOptions[1].ID = r.SortOptions[0].ID },
		"missing system":     func(r *dto.SaveAppConfigRequest) { r.UserFields = r.UserFields[:2] },
		"inactive username":  func(r *dto.SaveAppConfigRequest) { r.UserFields[0].Active = false },
		"empty field label":  func(r *dto.SaveAppConfigRequest) { r.UserFields[2].Label = "" },
	}
	for name, mutateReq := range cases {
		t.Run(name, func(t *testing.T) {
			req := base()
			mutateReq(&req)
			_, err := svc.SaveConfig(ctx, req, adminActor)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
		})
	}

	saved, err := svc.SaveConfig(ctx, base(), adminActor)
	require.NoError(t, err)
	assert.Equal(t, []string{"Agua", "Luz"}, saved.Categories)
	assert.Equal(t, "Espera", repo.stored(t).PendingAccountMessage)
}

func TestConfigurationServiceCacheInvalidatedOnSave(t *testing.T) {
	repo := &configurationRepoStub{}
	cacheRepo := newMemoryCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewConfigurationService(repo, &auditRecorder{}, cache, time.Minute, nil, nil)
	ctx := context.Background()

	_, err := svc.GetConfig(ctx)
	require.NoError(t, err)
	assert.True(t, cacheRepo.has(cacheKeyAppConfig))

	_, _, err = svc.AddCategory(ctx, "Piscina", adminActor)
	require.NoError(t, err)
	assert.False(t, cacheRepo.has(cacheKeyAppConfig))

	cfg, err := svc.GetConfig(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.HasCategory("Piscina"))
}

func TestConfigurationServiceReadConfigReportsCacheHit(t *testing.T) {
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := NewConfigurationService(&configurationRepoStub{}, &auditRecorder{}, cache, time.Minute, nil, nil)
	ctx := context.Background()

	_, hit, err := svc.ReadConfig(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	cfg, hit, err := svc.ReadConfig(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.NotEmpty(t, cfg.Categories)
}

func TestConfigurationServiceSaveConfigRoundTrip(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo, &auditRecorder{})
	ctx := context.Background()

	first, err := svc.GetConfig(ctx)
	require.NoError(t, err)

	_, err = svc.SaveConfig(ctx, dto.SaveAppConfigRequest{
		Categories:            first.Categories,
		SortOptions:           first.SortOptions,
		UserFields:            first.UserFields,
		PendingAccountMessage: first.PendingAccountMessage,
	}, adminActor)
	require.NoError(t, err)

	second, err := svc.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConfigurationServiceSortOptionsWithSameOrderingToggleIndependently(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo, &auditRecorder{})
	ctx := context.Background()

	_, err := svc.AddSortOption(ctx, dto.SortOptionRequest{ID: "urgentes", Label: "Urgentes primero", Field: models.SortFieldPriority, Direction: "desc"}, adminActor)
	require.NoError(t, err)

	cfg, err := svc.SetSortOptionActive(ctx, "priority_desc", false, adminActor)
	require.NoError(t, err)
	builtin, _ := cfg.SortOption("priority_desc")
	custom, _ := cfg.SortOption("urgentes")
	assert.False(t, builtin.Active)
	assert.True(t, custom.Active)

	resolved, err := svc.ResolveSortOption(ctx, "priority_desc")
	require.NoError(t, err)
	assert.Nil(t, resolved)
	resolved, err = svc.ResolveSortOption(ctx, "urgentes")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, models.SortDesc, resolved.Direction)

	_, err = svc.SetSortOptionActive(ctx, "priority_desc", true, adminActor)
	require.NoError(t, err)
	cfg, err = svc.SetSortOptionActive(ctx, "urgentes", false, adminActor)
	require.NoError(t, err)
	builtin, _ = cfg.SortOption("priority_desc")
	custom, _ = cfg.SortOption("urgentes")
	assert.True(t, builtin.Active)
	assert.False(t, custom.Active)
}
