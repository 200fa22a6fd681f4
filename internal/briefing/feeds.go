package briefing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed/rss"
)

type Weather struct {
	Temperature   float64
	Max           float64
	Min           float64
	RainChance    int
	Code          int
	Description   string
	HasDailyRange bool
}

type CryptoQuote struct {
	ID    string
	Price float64
}

type FiatRate struct {
	Code string
	// Units of the local currency per one unit of Code.
	Local float64
}

type Headline struct {
	Title  string
	Source string
	Link   string
}

func (s *Service) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("GET %s returned status %d", req.URL.Host, res.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Host, err)
	}
	return nil
}

func (s *Service) FetchWeather(ctx context.Context) (Weather, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(s.cfg.Latitude, 'f', 4, 64))
	query.Set("longitude", strconv.FormatFloat(s.cfg.Longitude, 'f', 4, 64))
	query.Set("current", "temperature_2m,weather_code")
	query.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_probability_max")
	query.Set("forecast_days", "1")
	query.Set("timezone", "auto")

	var payload struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WeatherCode int     `json:"weather_code"`
		} `json:"current"`
		Daily struct {
			Max  []float64 `json:"temperature_2m_max"`
			Min  []float64 `json:"temperature_2m_min"`
			Rain []int     `json:"precipitation_probability_max"`
		} `json:"daily"`
	}
	endpoint := strings.TrimRight(s.cfg.WeatherAPIBase, "/") + "/forecast?" + query.Encode()
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return Weather{}, fmt.Errorf("fetch weather: %w", err)
	}
	weather := Weather{
		Temperature: payload.Current.Temperature,
		Code:        payload.Current.WeatherCode,
		Description: describeWeatherCode(payload.Current.WeatherCode),
	}
	if len(payload.Daily.Max) > 0 && len(payload.Daily.Min) > 0 {
		weather.Max = payload.Daily.Max[0]
		weather.Min = payload.Daily.Min[0]
		weather.HasDailyRange = true
	}
	if len(payload.Daily.Rain) > 0 {
		weather.RainChance = payload.Daily.Rain[0]
	}
	return weather, nil
}

func (s *Service) FetchCrypto(ctx context.Context, ids []string) ([]CryptoQuote, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	normalized := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			normalized = append(normalized, cryptoAlias(id))
		}
	}
	query := url.Values{}
	query.Set("ids", strings.Join(normalized, ","))
	query.Set("vs_currencies", "usd")

	var payload map[string]map[string]float64
	endpoint := strings.TrimRight(s.cfg.CryptoAPIBase, "/") + "/simple/price?" + query.Encode()
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetch crypto prices: %w", err)
	}
	quotes := make([]CryptoQuote, 0, len(normalized))
	for _, id := range normalized {
		prices, ok := payload[id]
		if !ok {
			continue
		}
		quotes = append(quotes, CryptoQuote{ID: id, Price: prices["usd"]})
	}
	return quotes, nil
}

func (s *Service) FetchFiat(ctx context.Context, codes []string) ([]FiatRate, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var payload struct {
		Result string             `json:"result"`
		Rates  map[string]float64 `json:"rates"`
	}
	endpoint := strings.TrimRight(s.cfg.FiatAPIBase, "/") + "/latest/USD"
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetch fiat rates: %w", err)
	}
	if payload.Result != "" && payload.Result != "success" {
		return nil, fmt.Errorf("fetch fiat rates: result %q", payload.Result)
	}
	local := payload.Rates[s.cfg.LocalCurrency]
	if local <= 0 {
		return nil, fmt.Errorf("fetch fiat rates: no rate for %s", s.cfg.LocalCurrency)
	}
	rates := make([]FiatRate, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		perUSD, ok := payload.Rates[code]
		if !ok || perUSD <= 0 || code == s.cfg.LocalCurrency {
			continue
		}
		rates = append(rates, FiatRate{Code: code, Local: local / perUSD})
	}
	return rates, nil
}

// FetchHeadlines reads Google News RSS for each topic (or the top stories
// when topics is empty) and returns up to limit unique headlines.
func (s *Service) FetchHeadlines(ctx context.Context, topics []string, limit int) ([]Headline, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(topics) == 0 {
		topics = []string{""}
	}
	seen := map[string]struct{}{}
	var headlines []Headline
	for _, topic := range topics {
		items, err := s.fetchFeed(ctx, strings.TrimSpace(topic))
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if _, ok := seen[item.Title]; ok {
				continue
			}
			seen[item.Title] = struct{}{}
			headlines = append(headlines, item)
			if len(headlines) >= limit {
				return headlines, nil
			}
		}
	}
	return headlines, nil
}

func (s *Service) fetchFeed(ctx context.Context, topic string) ([]Headline, error) {
	language := s.cfg.NewsLanguage
	country := s.cfg.NewsCountry
	query := url.Values{}
	query.Set("hl", language)
	query.Set("gl", country)
	query.Set("ceid", country+":"+strings.SplitN(language, "-", 2)[0])
	endpoint := strings.TrimRight(s.cfg.NewsFeedBase, "/")
	if topic != "" {
		query.Set("q", topic)
		endpoint += "/search"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch news: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch news: status %d", res.StatusCode)
	}
	feed, err := (&rss.Parser{}).Parse(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("decode news feed: %w", err)
	}
	headlines := make([]Headline, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		source := ""
		if item.Source != nil {
			source = strings.TrimSpace(item.Source.Title)
		}
		if source != "" {
			title = strings.TrimSpace(strings.TrimSuffix(title, " - "+source))
		}
		if title == "" {
			continue
		}
		headlines = append(headlines, Headline{Title: title, Source: source, Link: strings.TrimSpace(item.Link)})
	}
	return headlines, nil
}

func cryptoAlias(id string) string {
	switch id {
	case "btc":
		return "bitcoin"
	case "eth":
		return "ethereum"
	case "sol":
		return "solana"
	case "ada":
		return "cardano"
	case "doge":
		return "dogecoin"
	case "xrp":
		return "ripple"
	case "usdt":
		return "tether"
	default:
		return id
	}
}

func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "despejado"
	case code <= 2:
		return "parcialmente nublado"
	case code == 3:
		return "nublado"
	case code == 45 || code == 48:
		return "niebla"
	case code >= 51 && code <= 57:
		return "llovizna"
	case code >= 61 && code <= 67:
		return "lluvia"
	case code >= 71 && code <= 77:
		return "nieve"
	case code >= 80 && code <= 82:
		return "chubascos"
	case code >= 95:
		return "tormenta"
	default:
		return "variable"
	}
}
