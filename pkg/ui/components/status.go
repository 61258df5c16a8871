package components

import (
	"sort"
	"strings"
)

// StatusComponent renders the state of external dependencies.
type StatusComponent struct {
	connections map[string]bool
}

func NewStatusComponent() *StatusComponent {
	return &StatusComponent{connections: make(map[string]bool)}
}

// Update records the state of name.
func (s *StatusComponent) Update(name string, connected bool) {
	s.connections[name] = connected
}

// View renders one entry per dependency, sorted by name.
func (s *StatusComponent) View() string {
	if len(s.connections) == 0 {
		return mutedStyle.Render("No connections")
	}

	names := make([]string, 0, len(s.connections))
	for name := range s.connections {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if s.connections[name] {
			parts = append(parts, okStyle.Render("● "+name))
		} else {
			parts = append(parts, badStyle.Render("○ "+name+" (down)"))
		}
	}
	return strings.Join(parts, "  │  ")
}
