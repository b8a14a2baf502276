package evidence

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service stores evidence photos for drawers.
type Service struct {
	client *Client
	log    zerolog.Logger
}

// NewService creates an evidence service. A nil client disables storage;
// StorePhoto then reports unavailability instead of failing the caller hard.
func NewService(client *Client, log zerolog.Logger) *Service {
	return &Service{
		client: client,
		log:    log.With().Str("service", "evidence").Logger(),
	}
}

// Enabled reports whether evidence storage is configured.
func (s *Service) Enabled() bool {
	return s.client != nil
}

// StorePhoto decodes a base64 image (optionally a data: URL) and uploads it
// under the drawer's prefix. Returns the stored object key.
func (s *Service) StorePhoto(ctx context.Context, drawerID, encoded string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("evidence storage not configured")
	}

	contentType := "image/jpeg"
	if strings.HasPrefix(encoded, "data:") {
		// data:image/png;base64,....
		parts := strings.SplitN(encoded, ",", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("malformed data url")
		}
		meta := strings.TrimPrefix(parts[0], "data:")
		if idx := strings.Index(meta, ";"); idx > 0 {
			contentType = meta[:idx]
		}
		encoded = parts[1]
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 image: %w", err)
	}

	ext := "jpg"
	if contentType == "image/png" {
		ext = "png"
	}
	key := fmt.Sprintf("evidence/%s/%s-%s.%s",
		drawerID, time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8], ext)

	if err := s.client.Upload(ctx, key, contentType, bytes.NewReader(raw), int64(len(raw))); err != nil {
		return "", err
	}

	s.log.Info().Str("drawer_id", drawerID).Str("key", key).Int("bytes", len(raw)).Msg("Evidence photo stored")
	return key, nil
}

// ListPhotos returns the stored evidence keys for a drawer.
func (s *Service) ListPhotos(ctx context.Context, drawerID string) ([]string, error) {
	if s.client == nil {
		return nil, fmt.Errorf("evidence storage not configured")
	}
	return s.client.List(ctx, "evidence/"+drawerID+"/")
}
