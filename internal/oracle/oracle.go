// Package oracle queries the companion Alfred services for today's context:
// who is home, whether the household is on holiday, the weather forecast and
// the house's current room temperatures. Each query is a pure boolean or
// numeric question about "today".
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
)

// Forecast is today's weather summary from the weather service.
type Forecast struct {
	TemperatureHigh float64 `json:"temperatureHigh"`
	TemperatureLow  float64 `json:"temperatureLow"`
}

const defaultTimeout = 10 * time.Second

type Config struct {
	WeatherURL  string
	PresenceURL string
	CalendarURL string
	SensorsURL  string
	Timeout     time.Duration
}

type Client struct {
	httpClient *http.Client
	cfg        Config
}

// New returns a Client for the companion services, instrumented on the
// provided prometheus registry.
func New(cfg Config, registry prometheus.Registerer, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	requestCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nest",
		Subsystem: "collector",
		Name:      "oracle_requests_total",
		Help:      "total number of requests to companion services",
	},
		[]string{"code", "method"},
	)
	registry.MustRegister(requestCounter)

	c := *httpClient
	c.Transport = promhttp.InstrumentRoundTripperCounter(requestCounter, transportOrDefault(httpClient))
	c.Timeout = cfg.Timeout
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	return &Client{httpClient: &c, cfg: cfg}
}

func transportOrDefault(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}

// AtHomeToday reports whether an occupant is expected home today.
func (c *Client) AtHomeToday(ctx context.Context) (bool, error) {
	var response struct {
		AtHome bool `json:"atHome"`
	}
	if err := c.get(ctx, c.cfg.PresenceURL+"/athome/today", &response); err != nil {
		return false, err
	}
	return response.AtHome, nil
}

// KidsAtHomeToday reports whether the children are expected home today.
func (c *Client) KidsAtHomeToday(ctx context.Context) (bool, error) {
	var response struct {
		AtHome bool `json:"atHome"`
	}
	if err := c.get(ctx, c.cfg.PresenceURL+"/kids/today", &response); err != nil {
		return false, err
	}
	return response.AtHome, nil
}

// OnHolidayToday reports whether the household calendar marks today as a
// holiday.
func (c *Client) OnHolidayToday(ctx context.Context) (bool, error) {
	var response struct {
		OnHoliday bool `json:"onHoliday"`
	}
	if err := c.get(ctx, c.cfg.CalendarURL+"/holiday/today", &response); err != nil {
		return false, err
	}
	return response.OnHoliday, nil
}

// TodayForecast returns today's forecast from the weather service.
func (c *Client) TodayForecast(ctx context.Context) (Forecast, error) {
	var forecast Forecast
	err := c.get(ctx, c.cfg.WeatherURL+"/today", &forecast)
	return forecast, err
}

// CurrentHouseTemps returns the current temperature per room from the
// household sensor service.
func (c *Client) CurrentHouseTemps(ctx context.Context) ([]model.RoomTemperature, error) {
	var temps []model.RoomTemperature
	err := c.get(ctx, c.cfg.SensorsURL+"/sensors/current", &temps)
	return temps, err
}

func (c *Client) get(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle: %s: %s", url, resp.Status)
	}
	if err = json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("oracle: %s: decode: %w", url, err)
	}
	return nil
}
