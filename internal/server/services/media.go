package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/parley/internal/common"
	"github.com/dmitrijs2005/parley/internal/logging"
	"github.com/dmitrijs2005/parley/internal/server/models"
	"github.com/dmitrijs2005/parley/internal/server/storage"
	"github.com/google/uuid"
)

const (
	// MediaURLPrefix is the public path prefix of stored attachments.
	MediaURLPrefix = "/uploads/"
	mediaKeyPrefix = "messages/"
	presignTTL     = 15 * time.Minute
)

// allowedMedia maps accepted MIME types to the extension used when the
// upload's own name has none.
var allowedMedia = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// MediaReleaser frees the blob behind a media URL. Implementations never fail
// the caller.
type MediaReleaser interface {
	Release(ctx context.Context, url string)
}

// MediaService stores message attachments in a BlobStore under random names
// and removes them when the owning messages are gone.
type MediaService struct {
	store   storage.BlobStore
	log     logging.Logger
	maxSize int64
	newName func() string
}

func NewMediaService(store storage.BlobStore, log logging.Logger, maxSize int64) *MediaService {
	return &MediaService{
		store:   store,
		log:     log.With("module", "media"),
		maxSize: maxSize,
		newName: uuid.NewString,
	}
}

// Store validates and writes one upload. Only the extension of originalName
// is kept.
func (s *MediaService) Store(ctx context.Context, originalName, mimeType string, size int64, r io.Reader) (*models.Media, error) {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: bad content type %q", common.ErrorValidation, mimeType)
	}
	defaultExt, ok := allowedMedia[mt]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported media type %q", common.ErrorValidation, mt)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: empty upload", common.ErrorValidation)
	}
	if size > s.maxSize {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", common.ErrorValidation, s.maxSize)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if !extPattern.MatchString(ext) {
		ext = defaultExt
	}

	key := mediaKeyPrefix + s.newName() + ext
	if err := s.store.Put(ctx, key, r, size, mt); err != nil {
		return nil, fmt.Errorf("store media: %w", err)
	}

	s.log.Info(ctx, "media stored", "key", key, "type", mt, "size", size)
	return &models.Media{URL: MediaURLPrefix + key, Type: mt}, nil
}

// Release deletes the blob behind url. Missing blobs and storage errors are
// logged and swallowed.
func (s *MediaService) Release(ctx context.Context, url string) {
	key, ok := mediaKey(url)
	if !ok {
		s.log.Warn(ctx, "media release skipped: foreign url", "url", url)
		return
	}

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		s.log.Error(ctx, "media release failed", "key", key, "error", err)
		return
	}
	if !exists {
		s.log.Debug(ctx, "media already gone", "key", key)
		return
	}

	if err := s.store.Delete(ctx, key); err != nil {
		s.log.Error(ctx, "media release failed", "key", key, "error", err)
		return
	}
	s.log.Info(ctx, "media released", "key", key)
}

// Link returns a URL the client can download name from: a presigned link
// when the backend supports it, otherwise the public path.
func (s *MediaService) Link(ctx context.Context, name string) (string, error) {
	key := mediaKeyPrefix + path.Base("/"+name)
	if p, ok := s.store.(storage.Presigner); ok {
		return p.PresignGet(ctx, key, presignTTL)
	}
	return MediaURLPrefix + key, nil
}

func mediaKey(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, MediaURLPrefix)
	if !ok || !strings.HasPrefix(key, mediaKeyPrefix) || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
