// Package nest talks to the Google Smart Device Management API: it lists
// the household's devices and executes thermostat commands. It owns the
// translation between the internal eco mode enum and the vendor's wire
// values.
package nest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"golang.org/x/oauth2"
)

const (
	serverURL = "https://smartdevicemanagement.googleapis.com/v1"
	tokenURL  = "https://oauth2.googleapis.com/token"

	cmdSetEcoMode  = "sdm.devices.commands.ThermostatEco.SetMode"
	cmdSetHeatTemp = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetHeat"
)

// A DeviceError is a failed vendor call: either a transport failure or a
// non-empty error payload in the command response.
type DeviceError struct {
	Op      string
	Message string
}

func (e *DeviceError) Error() string {
	return "nest: " + e.Op + ": " + e.Message
}

const defaultTimeout = 10 * time.Second

type Config struct {
	ProjectID    string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	projectID  string
	logger     *slog.Logger
}

// New returns a Client authenticating via OAuth2 refresh token. All calls
// are instrumented on the provided prometheus registry.
func New(ctx context.Context, cfg Config, registry prometheus.Registerer, logger *slog.Logger) (*Client, error) {
	if cfg.ProjectID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("nest: projectID, clientID, clientSecret and refreshToken are required")
	}

	oauthCfg := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	c := Client{
		httpClient: oauth2.NewClient(ctx, ts),
		baseURL:    serverURL,
		projectID:  cfg.ProjectID,
		logger:     logger,
	}
	c.httpClient.Transport = instrumentedRoundTripper(c.httpClient.Transport, registry)
	c.httpClient.Timeout = cfg.Timeout
	if c.httpClient.Timeout == 0 {
		c.httpClient.Timeout = defaultTimeout
	}
	return &c, nil
}

func instrumentedRoundTripper(rt http.RoundTripper, registry prometheus.Registerer) http.RoundTripper {
	requestCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nest",
		Subsystem: "collector",
		Name:      "api_requests_total",
		Help:      "total number of SDM API requests",
	},
		[]string{"code", "method"},
	)
	requestDuration := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "nest",
		Subsystem: "collector",
		Name:      "api_request_duration_seconds",
		Help:      "duration of SDM API requests",
	},
		[]string{"code", "method"},
	)
	registry.MustRegister(requestCounter, requestDuration)

	return promhttp.InstrumentRoundTripperCounter(requestCounter,
		promhttp.InstrumentRoundTripperDuration(requestDuration, rt),
	)
}

// GetDevices lists all devices registered under the configured project.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	url := c.baseURL + "/enterprises/" + c.projectID + "/devices"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DeviceError{Op: "list", Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &DeviceError{Op: "list", Message: resp.Status}
	}

	var response struct {
		Devices []Device `json:"devices"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, &DeviceError{Op: "list", Message: "decode: " + err.Error()}
	}
	return response.Devices, nil
}

// SetEcoMode puts the device in or out of eco mode. deviceID is the vendor's
// fully qualified device name.
func (c *Client) SetEcoMode(ctx context.Context, deviceID string, mode model.EcoMode) error {
	vendorMode := vendorEcoOff
	if mode == model.EcoOn {
		vendorMode = vendorEcoOn
	}
	c.logger.Debug("setting eco mode", slog.String("device", deviceID), slog.String("mode", vendorMode))
	return c.executeCommand(ctx, deviceID, cmdSetEcoMode, map[string]any{"mode": vendorMode})
}

// SetHeatpoint sets the thermostat's heating set-point.
func (c *Client) SetHeatpoint(ctx context.Context, deviceID string, celsius float64) error {
	c.logger.Debug("setting heatpoint", slog.String("device", deviceID), slog.Float64("temperature", celsius))
	return c.executeCommand(ctx, deviceID, cmdSetHeatTemp, map[string]any{"heatCelsius": celsius})
}

// executeCommand posts a command to a device. The vendor returns an empty
// JSON object on success and an error payload otherwise.
func (c *Client) executeCommand(ctx context.Context, deviceID, command string, params map[string]any) error {
	body, err := json.Marshal(struct {
		Command string         `json:"command"`
		Params  map[string]any `json:"params"`
	}{Command: command, Params: params})
	if err != nil {
		return err
	}

	url := c.baseURL + "/" + deviceID + ":executeCommand"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DeviceError{Op: command, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, _ := io.ReadAll(resp.Body)
	var response struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(payload, &response)

	if resp.StatusCode != http.StatusOK || response.Error.Message != "" {
		msg := response.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return &DeviceError{Op: command, Message: msg}
	}
	return nil
}
