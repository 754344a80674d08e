// Package tenantcfg provides the per-tenant statutory configuration.
//
// Each tenant may shorten the acknowledgement window, shorten the feedback
// window, or extend retention — always within the HinSchG legal bounds.
// Settings are stored as a single typed object per tenant and cached
// per-process; the cache is invalidated when an admin updates the config.
package tenantcfg

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
)

// Legal bounds per HinSchG §8 and §11.
const (
	MinAckTage     = 1
	MaxAckTage     = 7
	DefaultAckTage = 7

	MinFeedbackTage     = 30
	MaxFeedbackTage     = 90
	DefaultFeedbackTage = 90

	MinAufbewahrungJahre     = 3
	MaxAufbewahrungJahre     = 10
	DefaultAufbewahrungJahre = 3

	DefaultReminderVorlaufTage = 2
)

var (
	defaultsMu sync.RWMutex
	defaults   = model.TenantSettings{
		EingangsbestaetigungTage: DefaultAckTage,
		RueckmeldungTage:         DefaultFeedbackTage,
		AufbewahrungJahre:        DefaultAufbewahrungJahre,
		ReminderVorlaufTage:      DefaultReminderVorlaufTage,
		AnonymousChannelEnabled:  true,
	}
)

// Default returns the deployment-wide defaults. Without SetDefaults these
// are the statutory values.
func Default() model.TenantSettings {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	return defaults
}

// SetDefaults installs deployment-wide defaults from the service
// configuration. The values must stay within the legal bounds; tenant
// overrides take precedence as before.
func SetDefaults(s model.TenantSettings) error {
	if err := Validate(s); err != nil {
		return err
	}
	defaultsMu.Lock()
	defaults = s
	defaultsMu.Unlock()
	return nil
}

// Validate checks the settings against the legal bounds.
func Validate(s model.TenantSettings) error {
	if s.EingangsbestaetigungTage < MinAckTage || s.EingangsbestaetigungTage > MaxAckTage {
		return errs.Validation(fmt.Sprintf(
			"Eingangsbestätigungsfrist muss zwischen %d und %d Tagen liegen.", MinAckTage, MaxAckTage)).
			WithField("eingangsbestaetigung_tage", "ausserhalb der gesetzlichen Grenzen")
	}
	if s.RueckmeldungTage < MinFeedbackTage || s.RueckmeldungTage > MaxFeedbackTage {
		return errs.Validation(fmt.Sprintf(
			"Rückmeldefrist muss zwischen %d und %d Tagen liegen.", MinFeedbackTage, MaxFeedbackTage)).
			WithField("rueckmeldung_tage", "ausserhalb der gesetzlichen Grenzen")
	}
	if s.AufbewahrungJahre < MinAufbewahrungJahre || s.AufbewahrungJahre > MaxAufbewahrungJahre {
		return errs.Validation(fmt.Sprintf(
			"Aufbewahrungsdauer muss zwischen %d und %d Jahren liegen.", MinAufbewahrungJahre, MaxAufbewahrungJahre)).
			WithField("aufbewahrung_jahre", "ausserhalb der gesetzlichen Grenzen")
	}
	if s.ReminderVorlaufTage < 0 || s.ReminderVorlaufTage > 14 {
		return errs.Validation("Erinnerungsvorlauf muss zwischen 0 und 14 Tagen liegen.").
			WithField("reminder_vorlauf_tage", "ungültiger Wert")
	}
	return nil
}

// Loader reads and writes tenant settings in the store.
type Loader interface {
	GetTenantSettings(ctx context.Context, tenantID string) (*model.TenantSettings, error)
	SaveTenantSettings(ctx context.Context, tenantID string, s model.TenantSettings) error
}

// Cache caches settings per tenant. Existing request flows keep their
// loaded values; new requests pick up updates after Invalidate.
type Cache struct {
	mu       sync.RWMutex
	settings map[string]model.TenantSettings
	loader   Loader
}

// NewCache creates a cache backed by the given loader.
func NewCache(loader Loader) *Cache {
	return &Cache{
		settings: make(map[string]model.TenantSettings),
		loader:   loader,
	}
}

// Get returns the settings for a tenant, loading and caching on first use.
// If the store is unreachable or holds no row, the statutory defaults apply.
func (c *Cache) Get(ctx context.Context, tenantID string) model.TenantSettings {
	c.mu.RLock()
	if s, ok := c.settings[tenantID]; ok {
		c.mu.RUnlock()
		return s
	}
	c.mu.RUnlock()

	s := Default()
	loaded, err := c.loader.GetTenantSettings(ctx, tenantID)
	switch {
	case err != nil:
		slog.Warn("Failed to load tenant settings, using statutory defaults",
			"tenant_id", tenantID, "error", err)
	case loaded != nil:
		if verr := Validate(*loaded); verr != nil {
			slog.Warn("Stored tenant settings violate legal bounds, using statutory defaults",
				"tenant_id", tenantID, "error", verr)
		} else {
			s = *loaded
		}
	}

	c.mu.Lock()
	c.settings[tenantID] = s
	c.mu.Unlock()

	return s
}

// Update validates, persists and re-caches new settings for a tenant.
func (c *Cache) Update(ctx context.Context, tenantID string, s model.TenantSettings) error {
	if err := Validate(s); err != nil {
		return err
	}
	if err := c.loader.SaveTenantSettings(ctx, tenantID, s); err != nil {
		return errs.Internal(err)
	}

	c.mu.Lock()
	c.settings[tenantID] = s
	c.mu.Unlock()

	slog.Info("Tenant settings updated", "tenant_id", tenantID)
	return nil
}

// Invalidate drops a tenant from the cache, forcing a reload on next Get.
func (c *Cache) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.settings, tenantID)
	c.mu.Unlock()
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.settings = make(map[string]model.TenantSettings)
	c.mu.Unlock()
}
