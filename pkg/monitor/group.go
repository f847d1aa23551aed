package monitor

import "fmt"

// Group is a named collection of monitors of one kind, e.g. "wallets".
// Names are unique within a group but may repeat across groups.
type Group struct {
	name     string
	order    []string
	monitors map[string]*Monitor
}

// NewGroup creates a group and adds the given monitors; a duplicate
// monitor name is an error.
func NewGroup(name string, monitors ...*Monitor) (*Group, error) {
	g := &Group{
		name:     name,
		monitors: make(map[string]*Monitor, len(monitors)),
	}
	for _, m := range monitors {
		if err := g.Add(m); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// Add registers a monitor under its name.
func (g *Group) Add(m *Monitor) error {
	if _, exists := g.monitors[m.Name()]; exists {
		return fmt.Errorf("monitor: group %q already has a monitor named %q", g.name, m.Name())
	}
	g.monitors[m.Name()] = m
	g.order = append(g.order, m.Name())
	return nil
}

// Get returns the monitor registered under name, or nil.
func (g *Group) Get(name string) *Monitor { return g.monitors[name] }

// Len returns the number of monitors in the group.
func (g *Group) Len() int { return len(g.monitors) }

// Monitors returns the group's monitors in insertion order.
func (g *Group) Monitors() []*Monitor {
	out := make([]*Monitor, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.monitors[name])
	}
	return out
}
