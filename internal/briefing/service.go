// Package briefing assembles the daily summary message: weather, crypto,
// exchange rates and headlines, fetched concurrently.
package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dwizi/wabot/internal/expense"
	"github.com/dwizi/wabot/internal/store"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	WeatherCity    string
	Latitude       float64
	Longitude      float64
	WeatherAPIBase string
	CryptoAPIBase  string
	FiatAPIBase    string
	NewsFeedBase   string
	NewsLanguage   string
	NewsCountry    string
	LocalCurrency  string
	Location       *time.Location
	Timeout        time.Duration
}

type Service struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Service {
	if cfg.NewsLanguage == "" {
		cfg.NewsLanguage = "es-419"
	}
	if cfg.NewsCountry == "" {
		cfg.NewsCountry = "CO"
	}
	if cfg.LocalCurrency == "" {
		cfg.LocalCurrency = "COP"
	}
	cfg.LocalCurrency = strings.ToUpper(cfg.LocalCurrency)
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type Request struct {
	ChatID      string
	DisplayName string
	Preferences store.Preferences
	Now         time.Time
}

type sections struct {
	weather      Weather
	weatherErr   error
	crypto       []CryptoQuote
	cryptoErr    error
	fiat         []FiatRate
	fiatErr      error
	headlines    []Headline
	headlinesErr error
}

// Build fetches every enabled section in parallel. A failing feed only
// degrades its own section.
func (s *Service) Build(ctx context.Context, req Request) (string, error) {
	prefs := req.Preferences
	var result sections
	group, groupCtx := errgroup.WithContext(ctx)
	if prefs.Weather {
		group.Go(func() error {
			result.weather, result.weatherErr = s.FetchWeather(groupCtx)
			return nil
		})
	}
	if len(prefs.Crypto) > 0 {
		group.Go(func() error {
			result.crypto, result.cryptoErr = s.FetchCrypto(groupCtx, prefs.Crypto)
			return nil
		})
	}
	if prefs.Rates && len(prefs.Fiat) > 0 {
		group.Go(func() error {
			result.fiat, result.fiatErr = s.FetchFiat(groupCtx, prefs.Fiat)
			return nil
		})
	}
	if prefs.NewsCount > 0 {
		group.Go(func() error {
			result.headlines, result.headlinesErr = s.FetchHeadlines(groupCtx, prefs.NewsTopics, prefs.NewsCount)
			return nil
		})
	}
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	for name, err := range map[string]error{
		"weather":   result.weatherErr,
		"crypto":    result.cryptoErr,
		"fiat":      result.fiatErr,
		"headlines": result.headlinesErr,
	} {
		if err != nil {
			s.logger.Warn("briefing section failed", "chat_id", req.ChatID, "section", name, "error", err)
		}
	}
	return s.render(req, prefs, result), nil
}

func (s *Service) render(req Request, prefs store.Preferences, result sections) string {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	local := now.In(s.cfg.Location)
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s *%s", greetingEmoji(local.Hour()), greeting(local.Hour()))
	if name := strings.TrimSpace(req.DisplayName); name != "" {
		fmt.Fprintf(&builder, ", %s", name)
	}
	fmt.Fprintf(&builder, "*\n_%s_\n", spanishDate(local))

	if prefs.Weather {
		builder.WriteString("\n🌤️ *Clima")
		if s.cfg.WeatherCity != "" {
			builder.WriteString(" en " + s.cfg.WeatherCity)
		}
		builder.WriteString("*\n")
		if result.weatherErr != nil {
			builder.WriteString("No disponible en este momento.\n")
		} else {
			weather := result.weather
			fmt.Fprintf(&builder, "%.0f°C, %s", weather.Temperature, weather.Description)
			if weather.HasDailyRange {
				fmt.Fprintf(&builder, " (máx %.0f°C, mín %.0f°C)", weather.Max, weather.Min)
			}
			if weather.RainChance > 0 {
				fmt.Fprintf(&builder, "\nProbabilidad de lluvia: %d%%", weather.RainChance)
			}
			builder.WriteString("\n")
		}
	}

	if len(prefs.Crypto) > 0 {
		builder.WriteString("\n💰 *Cripto (USD)*\n")
		switch {
		case result.cryptoErr != nil:
			builder.WriteString("No disponible en este momento.\n")
		case len(result.crypto) == 0:
			builder.WriteString("Sin cotizaciones para tu selección.\n")
		default:
			for _, quote := range result.crypto {
				fmt.Fprintf(&builder, "• %s: US%s\n", strings.ToUpper(quote.ID), expense.FormatAmount(int64(quote.Price+0.5)))
			}
		}
	}

	if prefs.Rates && len(prefs.Fiat) > 0 {
		fmt.Fprintf(&builder, "\n💵 *Tasas (%s)*\n", s.cfg.LocalCurrency)
		switch {
		case result.fiatErr != nil:
			builder.WriteString("No disponible en este momento.\n")
		case len(result.fiat) == 0:
			builder.WriteString("Sin tasas para tu selección.\n")
		default:
			for _, rate := range result.fiat {
				fmt.Fprintf(&builder, "• %s: %s\n", rate.Code, expense.FormatAmount(int64(rate.Local+0.5)))
			}
		}
	}

	if prefs.NewsCount > 0 {
		builder.WriteString("\n📰 *Noticias*\n")
		switch {
		case result.headlinesErr != nil:
			builder.WriteString("No disponible en este momento.\n")
		case len(result.headlines) == 0:
			builder.WriteString("Sin titulares por ahora.\n")
		default:
			for _, headline := range result.headlines {
				if headline.Source != "" {
					fmt.Fprintf(&builder, "• %s (%s)\n", headline.Title, headline.Source)
					continue
				}
				fmt.Fprintf(&builder, "• %s\n", headline.Title)
			}
		}
	}
	return strings.TrimSpace(builder.String())
}

func greeting(hour int) string {
	switch {
	case hour < 12:
		return "Buenos días"
	case hour < 19:
		return "Buenas tardes"
	default:
		return "Buenas noches"
	}
}

func greetingEmoji(hour int) string {
	switch {
	case hour < 12:
		return "☀️"
	case hour < 19:
		return "🌇"
	default:
		return "🌙"
	}
}

var (
	spanishWeekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	spanishMonths   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

func spanishDate(t time.Time) string {
	return fmt.Sprintf("%s %d de %s", spanishWeekdays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1])
}
