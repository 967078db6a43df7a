package ytvideodata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

type pageData struct {
	VideoData
	Duration string
}

func (c *Client) getPage(ctx context.Context, videoId string) (*pageData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL+"?v="+url.QueryEscape(videoId), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	var data pageData
	data.Title = strings.TrimSuffix(getTitle(doc), " - YouTube")
	data.ThumbnailUrl = fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoId)
	data.AuthorName = getItempropContent(doc, "link", "name")
	data.Duration = getItempropContent(doc, "meta", "duration")

	return &data, nil
}

func getTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return n.FirstChild.Data
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := getTitle(c); title != "" {
			return title
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func getItempropContent(n *html.Node, tag, itemprop string) string {
	if n.Type == html.ElementNode && n.Data == tag && attr(n, "itemprop") == itemprop {
		return attr(n, "content")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if content := getItempropContent(c, tag, itemprop); content != "" {
			return content
		}
	}
	return ""
}
