package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/flakewatch/flakewatch/internal/models"
)

// ReportSink delivers finished diagnosis reports to an HTTP collector, such
// as a CI dashboard or an issue tracker webhook.
type ReportSink struct {
	baseURL    string
	reportPath string
	httpClient *http.Client
}

// NewReportSink constructs a sink targeting the configured collector. An
// empty baseURL produces a sink whose Deliver is a no-op.
func NewReportSink(baseURL, reportPath string, timeout time.Duration) *ReportSink {
	return &ReportSink{
		baseURL:    strings.TrimRight(baseURL, "/"),
		reportPath: reportPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether a collector endpoint is configured.
func (s *ReportSink) Enabled() bool {
	return s != nil && s.baseURL != ""
}

// Deliver posts the report as JSON. Delivery failures are returned to the
// caller; the report itself is already complete and can still be written
// locally.
func (s *ReportSink) Deliver(ctx context.Context, report models.DiagnosisReport) error {
	if s == nil {
		return fmt.Errorf("report sink not initialised")
	}
	if !s.Enabled() {
		return nil
	}
	if err := s.postJSON(ctx, s.reportURL(), report, nil); err != nil {
		return fmt.Errorf("report delivery failed: %w", err)
	}
	return nil
}

func (s *ReportSink) reportURL() string { return s.resolvePath(s.reportPath) }

func (s *ReportSink) resolvePath(p string) string {
	if s.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return s.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (s *ReportSink) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("collector returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
