package room

import (
	"context"
	"fmt"

	"github.com/sharetube/officedj/internal/domain"
	"github.com/sharetube/officedj/internal/repository/likes"
)

const topSongsLimit = 20

type ToggleLikeParams struct {
	RoomID string
	User   domain.User
}

// ToggleLike flips the user's vote on the track currently playing in the room.
func (s *service) ToggleLike(ctx context.Context, params *ToggleLikeParams) (likes.Likes, error) {
	if params.User.ID == "" {
		return likes.Likes{}, ErrPermissionDenied
	}

	pb, err := s.getPlayback(ctx, params.RoomID)
	if err != nil {
		return likes.Likes{}, err
	}

	if pb.Status == domain.StatusIdle || pb.VideoID == "" {
		return likes.Likes{}, ErrNothingPlaying
	}

	l, err := s.likesRepo.Toggle(ctx, &likes.ToggleParams{
		VideoID:   pb.VideoID,
		UserID:    params.User.ID,
		Title:     pb.Title,
		Artist:    pb.Artist,
		Thumbnail: pb.Thumbnail,
	})
	if err != nil {
		return likes.Likes{}, fmt.Errorf("failed to toggle like: %w", err)
	}

	if err := s.roomRepo.PublishLikesChanged(ctx, pb.VideoID); err != nil {
		s.logger.WarnContext(ctx, "failed to publish likes change", "video_id", pb.VideoID, "error", err)
	}

	return l, nil
}

func (s *service) GetLikes(ctx context.Context, videoId, userId string) (likes.Likes, error) {
	l, err := s.likesRepo.Get(ctx, videoId, userId)
	if err != nil {
		return likes.Likes{}, fmt.Errorf("failed to get likes: %w", err)
	}

	return l, nil
}

func (s *service) TopSongs(ctx context.Context) ([]likes.Song, error) {
	songs, err := s.likesRepo.Top(ctx, topSongsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top songs: %w", err)
	}

	return songs, nil
}
