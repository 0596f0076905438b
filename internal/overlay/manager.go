package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/FrameExport/internal/logger"
)

// Manager holds overlay widgets and draws them in insertion order
type Manager struct {
	widgets []Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{
		enabled: true,
	}
}

// AddWidget adds a widget on top of the existing ones
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexLocked(widget.ID()) >= 0 {
		return fmt.Errorf("widget with ID %s already exists", widget.ID())
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().
		Str("id", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget from the overlay
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("widget with ID %s not found", id)
	}

	m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
	logger.WithComponent("overlay").Debug().Str("id", id).Msg("Removed widget")
	return nil
}

// GetWidget retrieves a widget by ID
func (m *Manager) GetWidget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.indexLocked(id); i >= 0 {
		return m.widgets[i], true
	}
	return nil, false
}

func (m *Manager) indexLocked(id string) int {
	for i, w := range m.widgets {
		if w.ID() == id {
			return i
		}
	}
	return -1
}

// Len returns the number of widgets
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.widgets)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render renders all enabled widgets onto the provided image
func (m *Manager) Render(img *image.RGBA, info FrameInfo) {
	if !m.IsEnabled() {
		return
	}

	m.mu.RLock()
	widgets := make([]Widget, len(m.widgets))
	copy(widgets, m.widgets)
	m.mu.RUnlock()

	for _, widget := range widgets {
		if widget.IsEnabled() {
			if err := widget.Render(img, info); err != nil {
				logger.WithComponent("overlay").Warn().
					Err(err).
					Str("id", widget.ID()).
					Msg("Failed to render widget")
			}
		}
	}
}

// CreateWidget creates a new widget instance from configuration
func (m *Manager) CreateWidget(widgetType string, id string, config map[string]interface{}) (Widget, error) {
	var widget Widget
	var err error

	switch widgetType {
	case "text":
		widget, err = NewTextWidget(id, config)
	default:
		return nil, fmt.Errorf("unknown widget type: %s", widgetType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s widget: %w", widgetType, err)
	}

	return widget, nil
}

// LoadFromConfig creates and adds widgets from their configuration maps.
// Entries that cannot be built are logged and skipped.
func (m *Manager) LoadFromConfig(configs []map[string]interface{}) {
	log := logger.WithComponent("overlay")
	for _, config := range configs {
		widgetType, ok := config["type"].(string)
		if !ok {
			log.Warn().Msg("Skipping widget with missing type")
			continue
		}

		id, ok := config["id"].(string)
		if !ok {
			log.Warn().Msg("Skipping widget with missing ID")
			continue
		}

		widget, err := m.CreateWidget(widgetType, id, config)
		if err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to create widget")
			continue
		}

		if err := m.AddWidget(widget); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Failed to add widget")
		}
	}
}
