package ytvideodata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sosodev/duration"
)

type videosResponse struct {
	Items []struct {
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (c *Client) durationFromAPI(ctx context.Context, videoId string) (float64, error) {
	q := url.Values{}
	q.Set("part", "contentDetails")
	q.Set("id", videoId)
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode videos response: %w", err)
	}

	if len(result.Items) == 0 {
		return 0, ErrVideoNotFound
	}

	return ParseISODuration(result.Items[0].ContentDetails.Duration)
}

// ParseISODuration converts an ISO 8601 duration such as PT4M13S into seconds.
func ParseISODuration(s string) (float64, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	if d.Negative {
		return 0, fmt.Errorf("invalid duration %q: negative", s)
	}

	return d.ToTimeDuration().Seconds(), nil
}
