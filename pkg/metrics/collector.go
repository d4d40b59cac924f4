package metrics

import (
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/types"
)

// StateSource is the read side of the store the collector samples
type StateSource interface {
	Channels() ([]types.ChannelEntry, error)
	Analytics() (types.AnalyticsState, error)
}

// Collector periodically samples persisted state into gauges
type Collector struct {
	source   StateSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StateSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	logger := log.WithComponent("metrics")

	channels, err := c.source.Channels()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to sample channels")
	} else {
		live := 0
		for _, ch := range channels {
			if ch.IsLive {
				live++
			}
		}
		ChannelsTracked.Set(float64(len(channels)))
		ChannelsLive.Set(float64(live))
	}

	analytics, err := c.source.Analytics()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to sample analytics")
		return
	}
	SwitchCount.Set(float64(analytics.SwitchCount))
}
