// Package uuid generates run identifiers.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates time-ordered run IDs of the form "<prefix>-<uuid7>".
type Generator struct {
	prefix string
}

// New returns a Generator. An empty prefix yields bare UUIDs.
func New(prefix string) *Generator {
	return &Generator{prefix: strings.TrimSuffix(prefix, "-")}
}

// NewID returns a fresh run ID.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	if g.prefix == "" {
		return id.String(), nil
	}
	return g.prefix + "-" + id.String(), nil
}

// Parse returns the UUID part of a run ID produced by g.
func (g *Generator) Parse(runID string) (uuid.UUID, error) {
	raw := runID
	if g.prefix != "" {
		var ok bool
		if raw, ok = strings.CutPrefix(runID, g.prefix+"-"); !ok {
			return uuid.UUID{}, fmt.Errorf("run id %q lacks prefix %q", runID, g.prefix)
		}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parse run id: %w", err)
	}
	return id, nil
}
