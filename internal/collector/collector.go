// Package collector exports the latest thermostat readings as prometheus
// metrics.
package collector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/model"
	"github.com/rahmanoff/Alfred-Nest-Data-Collector-Service/internal/poller"
)

var (
	nestTemperatureCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("nest", "thermostat", "temperature_celsius"),
		"Current ambient temperature in degrees celsius",
		[]string{"location"},
		nil,
	)
	nestHumidityPercentage = prometheus.NewDesc(
		prometheus.BuildFQName("nest", "thermostat", "humidity_percentage"),
		"Current ambient humidity percentage",
		[]string{"location"},
		nil,
	)
	nestSetPointCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("nest", "thermostat", "setpoint_celsius"),
		"Heating set-point in degrees celsius",
		[]string{"location"},
		nil,
	)
	nestConnectionStatus = prometheus.NewDesc(
		prometheus.BuildFQName("nest", "thermostat", "connection_status"),
		"1 if the thermostat is online",
		[]string{"location"},
		nil,
	)
	nestEcoMode = prometheus.NewDesc(
		prometheus.BuildFQName("nest", "thermostat", "eco_mode"),
		"1 if the thermostat is in eco mode",
		[]string{"location"},
		nil,
	)
	nestHvacStatus = prometheus.NewDesc(
		prometheus.BuildFQName("nest", "thermostat", "hvac_status"),
		"Current HVAC activity. Always 1. See label 'hvac_status'",
		[]string{"location", "hvac_status"},
		nil,
	)
)

type Collector struct {
	Poller     poller.Poller
	Logger     *slog.Logger
	lock       sync.RWMutex
	lastUpdate *poller.Update
}

func (c *Collector) Run(ctx context.Context) error {
	c.Logger.Debug("started")
	defer c.Logger.Debug("stopped")

	ch := c.Poller.Subscribe()
	defer c.Poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			c.lock.Lock()
			c.lastUpdate = &update
			c.lock.Unlock()
		}
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- nestTemperatureCelsius
	ch <- nestHumidityPercentage
	ch <- nestSetPointCelsius
	ch <- nestConnectionStatus
	ch <- nestEcoMode
	ch <- nestHvacStatus
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.lastUpdate == nil {
		return
	}
	for _, device := range c.lastUpdate.Devices {
		collectReading(ch, device.Reading)
	}
}

func collectReading(ch chan<- prometheus.Metric, reading model.DeviceReading) {
	ch <- prometheus.MustNewConstMetric(nestTemperatureCelsius, prometheus.GaugeValue, reading.Temperature, reading.Location)
	ch <- prometheus.MustNewConstMetric(nestHumidityPercentage, prometheus.GaugeValue, reading.Humidity, reading.Location)
	ch <- prometheus.MustNewConstMetric(nestSetPointCelsius, prometheus.GaugeValue, reading.SetPoint, reading.Location)

	var value float64
	if reading.Connectivity == "ONLINE" {
		value = 1.0
	}
	ch <- prometheus.MustNewConstMetric(nestConnectionStatus, prometheus.GaugeValue, value, reading.Location)

	value = 0.0
	if reading.EcoMode == model.EcoOn {
		value = 1.0
	}
	ch <- prometheus.MustNewConstMetric(nestEcoMode, prometheus.GaugeValue, value, reading.Location)

	ch <- prometheus.MustNewConstMetric(nestHvacStatus, prometheus.GaugeValue, 1, reading.Location, reading.HvacStatus)
}
