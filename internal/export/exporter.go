// Package export ships aggregated snapshots to an external webhook in
// batches, for dashboards that cannot poll the service directly.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Satianurag/movement-defi-project-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

// Config holds configuration for the snapshot exporter
type Config struct {
	WebhookURL     string
	WebhookAPIKey  string
	BatchSize      int
	ExportInterval time.Duration
}

// Exporter batches snapshots and flushes them on size or interval.
type Exporter struct {
	config     Config
	httpClient *http.Client

	mu    sync.Mutex
	batch []*model.AggregatedSnapshot

	cancel context.CancelFunc
}

// New creates and starts a snapshot exporter.
func New(config Config) *Exporter {
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	if config.ExportInterval <= 0 {
		config.ExportInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Exporter{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cancel:     cancel,
	}
	go e.loop(ctx)

	logrus.Infof("Snapshot exporter started: batch=%d interval=%s", config.BatchSize, config.ExportInterval)
	return e
}

// Add queues a snapshot for export, flushing if the batch is full.
func (e *Exporter) Add(snapshot *model.AggregatedSnapshot) {
	e.mu.Lock()
	e.batch = append(e.batch, snapshot)
	full := len(e.batch) >= e.config.BatchSize
	e.mu.Unlock()

	if full {
		e.Flush()
	}
}

// Flush posts the current batch to the webhook. Export failures are logged
// and the batch is dropped; the exporter never blocks snapshot serving.
func (e *Exporter) Flush() {
	e.mu.Lock()
	batch := e.batch
	e.batch = nil
	e.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := e.post(batch); err != nil {
		logrus.Warnf("Snapshot export failed, dropping %d snapshots: %v", len(batch), err)
	}
}

// Close stops the export loop and flushes what remains.
func (e *Exporter) Close() {
	e.cancel()
	e.Flush()
}

func (e *Exporter) loop(ctx context.Context) {
	ticker := time.NewTicker(e.config.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Flush()
		}
	}
}

func (e *Exporter) post(batch []*model.AggregatedSnapshot) error {
	payload, err := json.Marshal(map[string]interface{}{
		"source":      "movement-defi-aggregator",
		"snapshots":   batch,
		"exported_at": time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequest("POST", e.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.WebhookAPIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	logrus.Debugf("Exported %d snapshots", len(batch))
	return nil
}
