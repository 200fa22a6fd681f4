package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GIFSearch resolves a search term to a shareable GIF link through the
// Tenor API. Without an API key it returns the public search page.
type GIFSearch struct {
	baseURL    string
	apiKey     string
	locale     string
	httpClient *http.Client
}

func NewGIFSearch(baseURL, apiKey, locale string, timeout time.Duration) *GIFSearch {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://tenor.googleapis.com/v2"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GIFSearch{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		locale:     strings.TrimSpace(locale),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *GIFSearch) Find(ctx context.Context, term string) (string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", fmt.Errorf("gif search term is required")
	}
	if g.apiKey == "" {
		return "https://tenor.com/search/" + url.PathEscape(strings.ReplaceAll(term, " ", "-")) + "-gifs", nil
	}

	query := url.Values{}
	query.Set("q", term)
	query.Set("key", g.apiKey)
	query.Set("limit", "1")
	query.Set("media_filter", "gif")
	if g.locale != "" {
		query.Set("locale", g.locale)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	res, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search gif: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("search gif: status %d", res.StatusCode)
	}
	var payload struct {
		Results []struct {
			ItemURL      string `json:"itemurl"`
			MediaFormats map[string]struct {
				URL string `json:"url"`
			} `json:"media_formats"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode gif search: %w", err)
	}
	if len(payload.Results) == 0 {
		return "", nil
	}
	first := payload.Results[0]
	if gif, ok := first.MediaFormats["gif"]; ok && gif.URL != "" {
		return gif.URL, nil
	}
	return first.ItemURL, nil
}
