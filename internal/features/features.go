package features

import (
	"sort"
	"sync"
)

// FeatureFlag represents a runtime switch.
type FeatureFlag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates an empty feature flag manager.
func NewManager() *Manager {
	return &Manager{
		flags: make(map[string]*FeatureFlag),
	}
}

// NewDefaultManager registers every known flag with the given states. Flags
// missing from states are enabled.
func NewDefaultManager(states map[string]bool) *Manager {
	m := NewManager()
	for _, f := range known {
		enabled, ok := states[f.Name]
		if !ok {
			enabled = true
		}
		m.Register(f.Name, enabled, f.Description)
	}
	return m
}

// Register registers a new feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled checks if a feature flag is enabled. Unknown flags are off.
// A nil manager reports every flag as enabled.
func (m *Manager) IsEnabled(name string) bool {
	if m == nil {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	return flag.Enabled
}

// Set flips a registered flag. It returns false for unknown flags.
func (m *Manager) Set(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}
	flag.Enabled = enabled
	return true
}

// Enable enables a feature flag.
func (m *Manager) Enable(name string) {
	m.Set(name, true)
}

// Disable disables a feature flag.
func (m *Manager) Disable(name string) {
	m.Set(name, false)
}

// List returns a snapshot of all flags sorted by name.
func (m *Manager) List() []FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]FeatureFlag, 0, len(m.flags))
	for _, v := range m.flags {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Predefined feature flag names
const (
	// AutoBlock blocks a consumer after repeated rejections by the same farmer
	AutoBlock = "auto_block"
	// WebhookDedupe short-circuits replayed payment events through the cache
	WebhookDedupe = "webhook_dedupe"
	// Notifications sends user notifications for committed effects
	Notifications = "notifications"
	// DeliverySweep auto-delivers orders left in shipped
	DeliverySweep = "delivery_sweep"
)

var known = []FeatureFlag{
	{Name: AutoBlock, Description: "auto-block a consumer after repeated rejections"},
	{Name: WebhookDedupe, Description: "remember processed payment events in the cache"},
	{Name: Notifications, Description: "send user notifications for committed effects"},
	{Name: DeliverySweep, Description: "mark long-shipped orders as delivered"},
}
