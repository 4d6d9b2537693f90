package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polybet/internal/cache"
	"github.com/alejandrodnm/polybet/internal/domain"
)

const (
	opportunitiesPath = "/v1/opportunities"
	pricesPath        = "/v1/prices"
	scoresPath        = "/v1/scores"
	signalsPath       = "/v1/signals/"

	defaultRatePerSec = 10
	defaultBurst      = 5
	defaultTimeout    = 10 * time.Second

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// errNotFound marca un 404; solo las señales lo tratan como "sin dato".
var errNotFound = errors.New("resource not found")

// Config contiene los parámetros del cliente HTTP del colaborador.
type Config struct {
	BaseURL    string
	APIKey     string  // se envía en X-API-Key si no está vacío
	RatePerSec float64 // 0 = defaultRatePerSec
	Burst      int
	Timeout    time.Duration
}

// Client es el cliente HTTP del feed con rate limiting, retries y caché por ejecución.
// Implementa ports.OpportunityFeed, ports.PriceProvider, ports.OutcomeProvider y
// ports.SignalProvider.
type Client struct {
	http    *http.Client
	base    string
	apiKey  string
	limiter *rate.Limiter
	cache   *cache.TTL[string, []byte]
	now     func() time.Time
}

// NewClient crea un Client. responses puede ser nil (sin caché).
func NewClient(cfg Config, responses *cache.TTL[string, []byte]) *Client {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		cache:   responses,
		now:     time.Now,
	}
}

// FetchOpportunities obtiene el snapshot completo: eventos con cotizaciones
// por bookmaker y posiciones de precio.
func (c *Client) FetchOpportunities(ctx context.Context) ([]domain.Opportunity, error) {
	var resp opportunitiesResponse
	if err := c.get(ctx, c.base+opportunitiesPath, &resp); err != nil {
		return nil, fmt.Errorf("feed.FetchOpportunities: %w", err)
	}
	opps := mapOpportunities(resp, c.now())
	slog.Debug("feed: opportunities fetched",
		"events", len(resp.Events),
		"positions", len(resp.Positions),
		"opportunities", len(opps),
	)
	return opps, nil
}

// FetchPrices obtiene el último precio de cada símbolo. Los símbolos sin precio
// no aparecen en el mapa.
func (c *Client) FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	q := url.Values{}
	q.Set("symbols", joinSorted(symbols))

	var resp pricesResponse
	if err := c.get(ctx, c.base+pricesPath+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("feed.FetchPrices: %w", err)
	}
	return mapPrices(resp), nil
}

// FetchOutcomes obtiene marcadores finales (eventos) y precios de cierre (símbolos).
func (c *Client) FetchOutcomes(ctx context.Context, eventIDs, symbols []string) ([]domain.SettlementRecord, error) {
	if len(eventIDs) == 0 && len(symbols) == 0 {
		return nil, nil
	}
	q := url.Values{}
	if len(eventIDs) > 0 {
		q.Set("eventIds", joinSorted(eventIDs))
	}
	if len(symbols) > 0 {
		q.Set("symbols", joinSorted(symbols))
	}

	var resp []scoreDTO
	if err := c.get(ctx, c.base+scoresPath+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("feed.FetchOutcomes: %w", err)
	}
	return mapScores(resp, c.now()), nil
}

// LatestSignal devuelve la última señal de sizing para key. Un 404 significa
// que el proveedor no tiene señal: ok=false sin error.
func (c *Client) LatestSignal(ctx context.Context, key string) (domain.SizingSignal, bool, error) {
	var resp signalDTO
	err := c.get(ctx, c.base+signalsPath+url.PathEscape(key), &resp)
	if errors.Is(err, errNotFound) {
		return domain.SizingSignal{}, false, nil
	}
	if err != nil {
		return domain.SizingSignal{}, false, fmt.Errorf("feed.LatestSignal %s: %w", key, err)
	}
	sig, ok := mapSignal(key, resp)
	return sig, ok, nil
}

// get hace un GET con caché, rate limiting y retries.
func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	if body, ok := c.cache.Get(rawURL); ok {
		return decode(body, out)
	}
	body, err := c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		return c.http.Do(req)
	})
	if err != nil {
		return err
	}
	if err := decode(body, out); err != nil {
		return err
	}
	c.cache.Set(rawURL, body)
	return nil
}

// doWithRetry ejecuta la función con backoff exponencial y devuelve el body.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error)) ([]byte, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("feed: rate limited by collaborator", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return nil, fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, errNotFound
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}
	return nil, fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// joinSorted normaliza la lista para que la clave de caché no dependa del orden.
func joinSorted(items []string) string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
