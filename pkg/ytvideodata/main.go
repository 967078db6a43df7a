// Package ytvideodata resolves metadata and duration of YouTube videos.
package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrVideoNotFound      = errors.New("video not found")
	ErrVideoNotEmbeddable = errors.New("video is not embeddable")
	ErrDurationUnknown    = errors.New("duration unknown")
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

type Config struct {
	// APIKey enables duration lookups through the Data API. Without it the
	// watch page is parsed instead.
	APIKey     string
	HTTPClient *http.Client
	OEmbedURL  string
	PageURL    string
	APIURL     string
}

type Client struct {
	apiKey    string
	hc        *http.Client
	oembedURL string
	pageURL   string
	apiURL    string
}

func New(cfg *Config) *Client {
	c := &Client{
		apiKey:    cfg.APIKey,
		hc:        cfg.HTTPClient,
		oembedURL: cfg.OEmbedURL,
		pageURL:   cfg.PageURL,
		apiURL:    cfg.APIURL,
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: 10 * time.Second}
	}
	if c.oembedURL == "" {
		c.oembedURL = "https://www.youtube.com/oembed"
	}
	if c.pageURL == "" {
		c.pageURL = "https://www.youtube.com/watch"
	}
	if c.apiURL == "" {
		c.apiURL = "https://www.googleapis.com/youtube/v3/videos"
	}

	return c
}

func (c *Client) Get(ctx context.Context, videoId string) (*VideoData, error) {
	videoData, err := c.getWithEmbed(ctx, videoId)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		page, err := c.getPage(ctx, videoId)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
		videoData = &page.VideoData
	}

	return videoData, nil
}

// Duration returns the video length in seconds.
func (c *Client) Duration(ctx context.Context, videoId string) (float64, error) {
	if c.apiKey != "" {
		d, err := c.durationFromAPI(ctx, videoId)
		if err == nil {
			return d, nil
		}
		if errors.Is(err, ErrVideoNotFound) {
			return 0, err
		}
	}

	page, err := c.getPage(ctx, videoId)
	if err != nil {
		return 0, fmt.Errorf("failed to get video page: %w", err)
	}

	if page.Duration == "" {
		return 0, ErrDurationUnknown
	}

	return ParseISODuration(page.Duration)
}
