// Package metrics exports the compliance gauges. A background collector
// refreshes them from the store; the /metrics endpoint itself is served
// by promhttp in the API layer.
package metrics

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aitema/hinweis-backend/internal/model"
)

// Metrics holds all Prometheus gauges of the service.
type Metrics struct {
	CasesTotal          *prometheus.GaugeVec
	FristenOverdue      *prometheus.GaugeVec
	FristenUpcoming     *prometheus.GaugeVec
	AvgProcessingDays   *prometheus.GaugeVec
	ComplianceRate      *prometheus.GaugeVec
	CasesPerCategory    *prometheus.GaugeVec
	AnonymousRatio      *prometheus.GaugeVec
	NewCasesWeek        *prometheus.GaugeVec
	ActiveOmbudspersons *prometheus.GaugeVec
	EscalationsMonth    *prometheus.GaugeVec
}

// New creates and registers all gauges.
func New() *Metrics {
	return &Metrics{
		CasesTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_cases_total",
				Help: "Number of cases per tenant and lifecycle status",
			},
			[]string{"tenant_id", "status"},
		),
		FristenOverdue: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_fristen_overdue",
				Help: "Open statutory deadlines already past their due date",
			},
			[]string{"tenant_id", "type"},
		),
		FristenUpcoming: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_fristen_upcoming",
				Help: "Open statutory deadlines due within the next 14 days",
			},
			[]string{"tenant_id"},
		),
		AvgProcessingDays: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_avg_processing_days",
				Help: "Average days from receipt to closure",
			},
			[]string{"tenant_id"},
		),
		ComplianceRate: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_compliance_rate",
				Help: "Share of closed cases resolved within the feedback deadline (percent)",
			},
			[]string{"tenant_id"},
		),
		CasesPerCategory: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_cases_per_category",
				Help: "Number of reports per HinSchG category",
			},
			[]string{"tenant_id", "category"},
		),
		AnonymousRatio: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_anonymous_ratio",
				Help: "Share of anonymous reports (percent)",
			},
			[]string{"tenant_id"},
		),
		NewCasesWeek: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_new_cases_week",
				Help: "Reports received in the last 7 days",
			},
			[]string{"tenant_id"},
		),
		ActiveOmbudspersons: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_active_ombudspersonen",
				Help: "Active ombudsperson accounts",
			},
			[]string{"tenant_id"},
		),
		EscalationsMonth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hinschg_escalations_month",
				Help: "Cases escalated in the last 30 days",
			},
			[]string{"tenant_id"},
		),
	}
}

// StatsStore is the aggregate query surface the collector reads from.
type StatsStore interface {
	ActiveTenantIDs(ctx context.Context) ([]string, error)
	CountCasesByStatus(ctx context.Context, tenantID string) (map[model.CaseStatus]int, error)
	CountReportsByCategory(ctx context.Context, tenantID string) (map[model.Category]int, error)
	CountOverdueDeadlines(ctx context.Context, tenantID string, now time.Time) (map[model.DeadlineType]int, error)
	CountUpcomingDeadlines(ctx context.Context, tenantID string, now time.Time, window time.Duration) (int, error)
	AvgProcessingDays(ctx context.Context, tenantID string) (float64, error)
	ComplianceRate(ctx context.Context, tenantID string) (float64, error)
	AnonymousRatio(ctx context.Context, tenantID string) (float64, error)
	NewReportsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	EscalationsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	ActiveOmbudspersonen(ctx context.Context, tenantID string) (int, error)
}

// Collector refreshes the gauges on an interval.
type Collector struct {
	metrics *Metrics
	store   StatsStore
	stopCh  chan struct{}
	logger  *log.Logger
}

// NewCollector creates a collector; Start launches it.
func NewCollector(m *Metrics, store StatsStore) *Collector {
	return &Collector{
		metrics: m,
		store:   store,
		stopCh:  make(chan struct{}),
		logger:  log.New(log.Writer(), "[METRICS] ", log.LstdFlags),
	}
}

// Start refreshes every interval until Stop.
func (c *Collector) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		c.Refresh(context.Background())
		for {
			select {
			case <-ticker.C:
				c.Refresh(context.Background())
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop ends the refresh loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Refresh recomputes all gauges for all active tenants. Per-tenant
// failures are logged and skipped.
func (c *Collector) Refresh(ctx context.Context) {
	tenants, err := c.store.ActiveTenantIDs(ctx)
	if err != nil {
		c.logger.Printf("❌ Metrics refresh failed: %v", err)
		return
	}
	now := time.Now().UTC()
	for _, tenantID := range tenants {
		if err := c.refreshTenant(ctx, tenantID, now); err != nil {
			c.logger.Printf("❌ Metrics refresh failed for tenant %s: %v", tenantID, err)
		}
	}
}

func (c *Collector) refreshTenant(ctx context.Context, tenantID string, now time.Time) error {
	byStatus, err := c.store.CountCasesByStatus(ctx, tenantID)
	if err != nil {
		return err
	}
	for status, n := range byStatus {
		c.metrics.CasesTotal.WithLabelValues(tenantID, string(status)).Set(float64(n))
	}

	overdue, err := c.store.CountOverdueDeadlines(ctx, tenantID, now)
	if err != nil {
		return err
	}
	for typ, n := range overdue {
		c.metrics.FristenOverdue.WithLabelValues(tenantID, string(typ)).Set(float64(n))
	}

	upcoming, err := c.store.CountUpcomingDeadlines(ctx, tenantID, now, 14*24*time.Hour)
	if err != nil {
		return err
	}
	c.metrics.FristenUpcoming.WithLabelValues(tenantID).Set(float64(upcoming))

	byCategory, err := c.store.CountReportsByCategory(ctx, tenantID)
	if err != nil {
		return err
	}
	for cat, n := range byCategory {
		c.metrics.CasesPerCategory.WithLabelValues(tenantID, string(cat)).Set(float64(n))
	}

	avg, err := c.store.AvgProcessingDays(ctx, tenantID)
	if err != nil {
		return err
	}
	c.metrics.AvgProcessingDays.WithLabelValues(tenantID).Set(avg)

	rate, err := c.store.ComplianceRate(ctx, tenantID)
	if err != nil {
		return err
	}
	c.metrics.ComplianceRate.WithLabelValues(tenantID).Set(rate)

	anon, err := c.store.AnonymousRatio(ctx, tenantID)
	if err != nil {
		return err
	}
	c.metrics.AnonymousRatio.WithLabelValues(tenantID).Set(anon)

	week, err := c.store.NewReportsSince(ctx, tenantID, now.AddDate(0, 0, -7))
	if err != nil {
		return err
	}
	c.metrics.NewCasesWeek.WithLabelValues(tenantID).Set(float64(week))

	escalations, err := c.store.EscalationsSince(ctx, tenantID, now.AddDate(0, 0, -30))
	if err != nil {
		return err
	}
	c.metrics.EscalationsMonth.WithLabelValues(tenantID).Set(float64(escalations))

	ombuds, err := c.store.ActiveOmbudspersonen(ctx, tenantID)
	if err != nil {
		return err
	}
	c.metrics.ActiveOmbudspersons.WithLabelValues(tenantID).Set(float64(ombuds))
	return nil
}
