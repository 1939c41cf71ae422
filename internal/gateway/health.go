package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kioskwatch/backend/internal/models"
)

// HealthReporter periodically posts the supervisor's stream health to the
// control plane. A failed post is logged and retried on the next tick.
type HealthReporter struct {
	supervisor *Supervisor
	url        string
	secret     string
	interval   time.Duration
	client     *http.Client
}

// NewHealthReporter creates a health reporter. secret may be empty.
func NewHealthReporter(supervisor *Supervisor, url, secret string, interval time.Duration) *HealthReporter {
	return &HealthReporter{
		supervisor: supervisor,
		url:        url,
		secret:     secret,
		interval:   interval,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Run reports until stop closes
func (r *HealthReporter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.ReportOnce(time.Now()); err != nil {
				log.Printf("Health report failed: %v", err)
			}
		case <-stop:
			return
		}
	}
}

// ReportOnce posts one health batch
func (r *HealthReporter) ReportOnce(now time.Time) error {
	batch := r.supervisor.HealthBatch(now)
	if len(batch) == 0 {
		return nil
	}

	body, err := json.Marshal(models.HealthCallbackRequest{Streams: batch})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.secret != "" {
		req.Header.Set("X-Gateway-Secret", r.secret)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("health callback returned %d", resp.StatusCode)
	}
	return nil
}
