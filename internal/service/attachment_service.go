package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-portal-api/internal/dto"
	"github.com/noah-isme/incident-portal-api/internal/models"
	appErrors "github.com/noah-isme/incident-portal-api/pkg/errors"
	"github.com/noah-isme/incident-portal-api/pkg/media"
	"github.com/noah-isme/incident-portal-api/pkg/storage"
)

type attachmentStore interface {
	Save(key string, data []byte) (string, error)
	SaveStream(key string, r io.Reader) (int64, error)
	Open(key string) (*os.File, error)
	Delete(key string) error
	Usage() (int64, error)
}

type downloadSigner interface {
	Generate(ownerID, key string) (string, time.Time, error)
	Parse(token string) (ownerID, key string, err error)
}

// AttachmentConfig bounds uploads and sets the public download route.
type AttachmentConfig struct {
	MaxImageBytes int64
	MaxVideoBytes int64
	MaxImageDim   int
	JPEGQuality   int
	// DownloadPrefix is prepended to signed tokens, e.g. /api/v1/attachments/.
	DownloadPrefix string
}

// Download is a stored attachment ready to be streamed.
type Download struct {
	Name     string
	MimeType string
	Data     []byte
}

// AttachmentService stores incident media on local storage and hands out signed links.
type AttachmentService struct {
	store   attachmentStore
	signer  downloadSigner
	images  *media.ImageProcessor
	metrics *MetricsService
	logger  *zap.Logger
	cfg     AttachmentConfig
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(store attachmentStore, signer downloadSigner, metrics *MetricsService, logger *zap.Logger, cfg AttachmentConfig) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 5 << 20
	}
	if cfg.MaxVideoBytes <= 0 {
		cfg.MaxVideoBytes = 20 << 20
	}
	if cfg.DownloadPrefix == "" {
		cfg.DownloadPrefix = "/api/v1/attachments/"
	}
	if !strings.HasSuffix(cfg.DownloadPrefix, "/") {
		cfg.DownloadPrefix += "/"
	}
	return &AttachmentService{
		store:   store,
		signer:  signer,
		images:  media.NewImageProcessor(cfg.MaxImageDim, cfg.JPEGQuality),
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Store persists the uploads of one incident. Either every attachment is stored or none is:
// files written before a failure are removed again.
func (s *AttachmentService) Store(ctx context.Context, incidentID string, inputs []dto.AttachmentInput) (models.Attachments, error) {
	out := make(models.Attachments, 0, len(inputs))
	for i, in := range inputs {
		att, err := s.storeOne(incidentID, i, in)
		if err != nil {
			s.Remove(ctx, out)
			return nil, err
		}
		out = append(out, *att)
	}
	s.refreshUsage()
	return out, nil
}

func (s *AttachmentService) refreshUsage() {
	used, err := s.store.Usage()
	if err != nil {
		s.logger.Warn("failed to measure attachment storage", zap.Error(err))
		return
	}
	s.metrics.SetAttachmentStorage(used)
}

func (s *AttachmentService) storeOne(incidentID string, index int, in dto.AttachmentInput) (*models.Attachment, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = fmt.Sprintf("adjunto-%d", index+1)
	}
	id := uuid.NewString()

	if strings.TrimSpace(in.Data) == "" {
		return externalAttachment(id, name, in)
	}

	_, data, err := media.ParseDataURL(in.Data)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("el adjunto %q no es un archivo válido", name))
	}
	mime, kind := media.Sniff(data)

	var attType models.AttachmentType
	switch kind {
	case media.KindImage:
		if int64(len(data)) > s.cfg.MaxImageBytes {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("la imagen %q supera el tamaño máximo de %d MB", name, s.cfg.MaxImageBytes>>20))
		}
		normalized, err := s.images.Normalize(data)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no se pudo procesar la imagen %q", name))
		}
		data, mime, attType = normalized.Data, normalized.MimeType, models.AttachmentImage
	case media.KindVideo:
		if int64(len(data)) > s.cfg.MaxVideoBytes {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("el vídeo %q supera el tamaño máximo de %d MB", name, s.cfg.MaxVideoBytes>>20))
		}
		attType = models.AttachmentVideo
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("el tipo de archivo de %q no está permitido (%s)", name, mime))
	}

	key := path.Join("incidents", incidentID, id+media.Extension(mime))
	if err := s.write(attType, key, data); err != nil {
		if errors.Is(err, storage.ErrCapacity) {
			s.metrics.RecordCapacityRejection()
			return nil, appErrors.CloneWrap(appErrors.ErrCapacity, err, "")
		}
		return nil, appErrors.CloneWrap(appErrors.ErrStorage, err, "no se pudo guardar el adjunto, inténtalo de nuevo")
	}
	s.metrics.RecordAttachment(string(attType), int64(len(data)))

	return &models.Attachment{
		ID:         id,
		Type:       attType,
		Name:       name,
		MimeType:   mime,
		Size:       int64(len(data)),
		StorageKey: key,
	}, nil
}

// write stores images in one call; videos are copied through the quota-aware stream.
func (s *AttachmentService) write(attType models.AttachmentType, key string, data []byte) error {
	if attType == models.AttachmentVideo {
		_, err := s.store.SaveStream(key, bytes.NewReader(data))
		return err
	}
	_, err := s.store.Save(key, data)
	return err
}

// externalAttachment keeps a link to media hosted elsewhere.
func externalAttachment(id, name string, in dto.AttachmentInput) (*models.Attachment, error) {
	link := strings.TrimSpace(in.URL)
	lower := strings.ToLower(link)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("el adjunto %q necesita un archivo o un enlace http(s)", name))
	}
	attType := models.AttachmentType(in.Type)
	if attType != models.AttachmentVideo {
		attType = models.AttachmentImage
	}
	return &models.Attachment{ID: id, Type: attType, URL: link, Name: name}, nil
}

// Present converts stored attachments into client form, signing local files.
func (s *AttachmentService) Present(incidentID string, atts models.Attachments) []dto.AttachmentResponse {
	out := make([]dto.AttachmentResponse, 0, len(atts))
	for _, att := range atts {
		resp := dto.AttachmentResponse{
			ID:       att.ID,
			Type:     att.Type,
			URL:      att.URL,
			Name:     att.Name,
			MimeType: att.MimeType,
			Size:     att.Size,
		}
		if att.StorageKey != "" && s != nil && s.signer != nil {
			token, expiresAt, err := s.signer.Generate(incidentID, att.StorageKey)
			if err != nil {
				s.logger.Warn("failed to sign attachment url", zap.String("incident_id", incidentID), zap.Error(err))
			} else {
				resp.URL = s.cfg.DownloadPrefix + token
				resp.ExpiresAt = &expiresAt
			}
		}
		out = append(out, resp)
	}
	return out
}

// Remove deletes stored files. Failures are logged only.
func (s *AttachmentService) Remove(_ context.Context, atts models.Attachments) {
	if s == nil {
		return
	}
	removed := false
	for _, att := range atts {
		if att.StorageKey == "" {
			continue
		}
		if err := s.store.Delete(att.StorageKey); err != nil {
			s.logger.Warn("failed to delete attachment file", zap.String("key", att.StorageKey), zap.Error(err))
			continue
		}
		removed = true
	}
	if removed {
		s.refreshUsage()
	}
}

// Open resolves a signed token into file contents.
func (s *AttachmentService) Open(_ context.Context, token string) (*Download, error) {
	_, key, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "el enlace de descarga ha caducado")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "el enlace de descarga no es válido")
	}

	file, err := s.store.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "el archivo ya no existe")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open attachment")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read attachment")
	}
	mime, _ := media.Sniff(data)
	return &Download{Name: path.Base(key), MimeType: mime, Data: data}, nil
}
