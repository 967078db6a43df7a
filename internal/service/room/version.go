package room

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/room"
)

// PublishVersion stores the latest app version and notifies every subscriber.
func (s *service) PublishVersion(ctx context.Context, version string) error {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil
	}

	if err := s.roomRepo.SetVersion(ctx, version); err != nil {
		return fmt.Errorf("failed to publish version: %w", err)
	}

	s.logger.InfoContext(ctx, "app version published", "version", version)

	return nil
}

// GetVersion returns the published version, empty when none was published.
func (s *service) GetVersion(ctx context.Context) (string, error) {
	version, err := s.roomRepo.GetVersion(ctx)
	if err != nil {
		if errors.Is(err, room.ErrVersionNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get version: %w", err)
	}

	return version, nil
}

// CheckVersion returns the published version when it is newer than the
// client's, or an empty string.
func (s *service) CheckVersion(ctx context.Context, clientVersion string) (string, error) {
	if clientVersion == "" {
		return "", nil
	}

	latest, err := s.GetVersion(ctx)
	if err != nil || latest == "" {
		return "", err
	}

	if !domain.IsNewerVersion(latest, clientVersion) {
		return "", nil
	}

	return latest, nil
}
