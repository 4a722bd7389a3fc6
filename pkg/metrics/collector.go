package metrics

import (
	"context"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/slipway-io/slipway/pkg/backup"
	"github.com/slipway-io/slipway/pkg/probe"
	"github.com/slipway-io/slipway/pkg/router"
	"github.com/slipway-io/slipway/pkg/types"
)

// Collector samples slot, router, backup, and datastore state on a fixed
// cadence, feeding both the Prometheus gauges and the component health
// registry served by the monitor endpoints.
type Collector struct {
	slotA   types.Slot
	slotB   types.Slot
	probers probe.Factory
	backups *backup.Manager
	router  router.Router
	dbPath  string
	stopCh  chan struct{}
}

// NewCollector creates a metrics collector for the monitor
func NewCollector(slotA, slotB types.Slot, probers probe.Factory, backups *backup.Manager, rtr router.Router, dbPath string) *Collector {
	return &Collector{
		slotA:   slotA,
		slotB:   slotB,
		probers: probers,
		backups: backups,
		router:  rtr,
		dbPath:  dbPath,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectSlotMetrics(ctx)
	c.collectRouterMetrics()
	c.collectBackupMetrics()
	c.collectDatastoreMetrics()
}

func (c *Collector) collectSlotMetrics(ctx context.Context) {
	for _, s := range []types.Slot{c.slotA, c.slotB} {
		sample := c.probers(s).Probe(ctx)
		ProbesTotal.WithLabelValues(string(sample.State)).Inc()

		name := "slot-" + string(s.ID)
		UpdateComponent(name, !sample.State.Failing(), sample.Detail)
	}
}

func (c *Collector) collectRouterMetrics() {
	if c.router == nil {
		return
	}

	port, ok := c.router.Upstream()
	for _, s := range []types.Slot{c.slotA, c.slotB} {
		active := 0.0
		if ok && s.Port == port {
			active = 1.0
		}
		ActiveSlot.WithLabelValues(string(s.ID)).Set(active)
	}

	if err := c.router.TestConfig(); err != nil {
		UpdateComponent("router", false, err.Error())
	} else {
		UpdateComponent("router", true, "")
	}
}

func (c *Collector) collectBackupMetrics() {
	if c.backups == nil {
		return
	}

	backups, err := c.backups.List()
	if err != nil {
		return
	}

	complete := 0
	for _, b := range backups {
		if b.Complete {
			complete++
		}
	}
	BackupsTotal.Set(float64(complete))
}

func (c *Collector) collectDatastoreMetrics() {
	if c.dbPath == "" {
		return
	}

	// Before the first deployment the store does not exist yet; that is
	// an empty history, not a failure
	if _, err := os.Stat(c.dbPath); os.IsNotExist(err) {
		UpdateComponent("datastore", true, "no runs recorded yet")
		return
	}

	db, err := bolt.Open(c.dbPath, 0600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	switch {
	case err == nil:
		db.Close()
		UpdateComponent("datastore", true, "")
	case err == bolt.ErrTimeout:
		// A deployment run holds the lock; the store is alive
		UpdateComponent("datastore", true, "locked by deployment in progress")
	default:
		UpdateComponent("datastore", false, err.Error())
	}
}
