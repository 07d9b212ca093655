package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"parking-monitor/internal/observability/metrics"
	"parking-monitor/internal/parking/domain"
)

// DefaultFormURL is the response endpoint of the shared sample form.
const DefaultFormURL = "https://docs.google.com/forms/d/e/1FAIpQLSdeQ-rmw_VfOidGmtSNb9DLkt1RfPdduu-jH898sf3lhj17LA/formResponse"

// FormEntries names the form inputs receiving each value.
type FormEntries struct {
	GreenDayValue string
	GreenDayTime  string
	UniValue      string
	UniTime       string
}

// DefaultFormEntries returns the entry ids of the shared sample form.
func DefaultFormEntries() FormEntries {
	return FormEntries{
		GreenDayValue: "entry.2026993163",
		GreenDayTime:  "entry.51469670",
		UniValue:      "entry.1412144904",
		UniTime:       "entry.364658642",
	}
}

// GoogleFormSubmitter posts reading pairs to a Google Form.
type GoogleFormSubmitter struct {
	url     string
	entries FormEntries
	client  *http.Client
	logger  *log.Logger
}

// FormOption configures the submitter.
type FormOption func(*GoogleFormSubmitter)

// WithFormHTTPClient overrides the HTTP client.
func WithFormHTTPClient(client *http.Client) FormOption {
	return func(s *GoogleFormSubmitter) {
		if client != nil {
			s.client = client
		}
	}
}

// WithFormLogger sets the logger.
func WithFormLogger(logger *log.Logger) FormOption {
	return func(s *GoogleFormSubmitter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewGoogleFormSubmitter constructs a submitter.
func NewGoogleFormSubmitter(formURL string, entries FormEntries, opts ...FormOption) *GoogleFormSubmitter {
	if formURL == "" {
		formURL = DefaultFormURL
	}
	s := &GoogleFormSubmitter{
		url:     formURL,
		entries: entries,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit sends one sample. Failures are logged and never returned.
func (s *GoogleFormSubmitter) Submit(ctx context.Context, gd, uni domain.APIRecord) {
	if err := s.post(ctx, s.values(gd, uni)); err != nil {
		metrics.IncFormSubmission(metrics.ResultError)
		s.logger.Printf("form submit failed: err=%v", err)
		return
	}
	metrics.IncFormSubmission(metrics.ResultSuccess)
	s.logger.Printf("form submitted: greenday=%s@%s uni=%s@%s",
		formatCount(gd.CurrentFreeGroupCounterValue), gd.Timestamp,
		formatCount(uni.CurrentFreeGroupCounterValue), uni.Timestamp)
}

func (s *GoogleFormSubmitter) values(gd, uni domain.APIRecord) url.Values {
	form := url.Values{}
	form.Set(s.entries.GreenDayValue, formatCount(gd.CurrentFreeGroupCounterValue))
	form.Set(s.entries.GreenDayTime, gd.Timestamp)
	form.Set(s.entries.UniValue, formatCount(uni.CurrentFreeGroupCounterValue))
	form.Set(s.entries.UniTime, uni.Timestamp)
	return form
}

func (s *GoogleFormSubmitter) post(ctx context.Context, form url.Values) error {
	if s == nil || s.url == "" {
		return errors.New("form submitter: empty url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("form submitter: http %d", resp.StatusCode)
	}
	return nil
}

func formatCount(count domain.FreeCount) string {
	return strconv.FormatFloat(count.OrZero(), 'f', -1, 64)
}
