package output

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/scraper"
)

// Notification is the JSON payload published when a run finishes.
type Notification struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Total       int            `json:"total"`
	Successful  int            `json:"successful"`
	Failed      int            `json:"failed"`
	SuccessRate float64        `json:"success_rate"`
	ByStatus    map[string]int `json:"by_status"`
	FailedSites []FailedSite   `json:"failed_sites,omitempty"`
}

// FailedSite names a site that did not end in success.
type FailedSite struct {
	Site   string `json:"site"`
	Status string `json:"status"`
}

// NewNotification builds the payload for report.
func NewNotification(report scraper.RunReport) Notification {
	sum := report.Summary
	n := Notification{
		RunID:       report.RunID,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		Total:       sum.Total,
		Successful:  sum.Successful,
		Failed:      sum.Failed,
		SuccessRate: sum.SuccessRate,
		ByStatus:    sum.ByStatus,
	}
	for _, r := range sum.FailedSites {
		n.FailedSites = append(n.FailedSites, FailedSite{Site: r.Site, Status: string(r.Status)})
	}
	return n
}

// NotifySink publishes a run summary to a topic.
type NotifySink struct {
	pub    scraper.Publisher
	topic  string
	logger *zap.Logger
}

// NewNotifySink builds a NotifySink for topic.
func NewNotifySink(pub scraper.Publisher, topic string, logger *zap.Logger) (*NotifySink, error) {
	if pub == nil {
		return nil, errors.New("notify sink requires a publisher")
	}
	if topic == "" {
		return nil, errors.New("notify sink requires a topic")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{pub: pub, topic: topic, logger: logger.Named("notify_sink")}, nil
}

// Write publishes the report summary.
func (s *NotifySink) Write(ctx context.Context, report scraper.RunReport) error {
	id, err := s.pub.Publish(ctx, s.topic, NewNotification(report))
	if err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	s.logger.Info("run summary published",
		zap.String("topic", s.topic),
		zap.String("message_id", id),
		zap.String("run_id", report.RunID),
	)
	return nil
}
