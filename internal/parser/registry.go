package parser

import (
	"fmt"
)

// Registry holds all available parsers and provides auto-detection.
type Registry struct {
	parsers []Parser
}

// Global registry instance
var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewHMICSVParser(),
		},
	}
}

// GetGlobalRegistry returns the shared registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// FindParser detects the correct parser for a file. A file no parser accepts
// yields ErrUnsupportedFile; a file that cannot be read yields the read error.
func (r *Registry) FindParser(filePath string) (Parser, error) {
	for _, p := range r.parsers {
		can, err := p.CanParse(filePath)
		if err != nil {
			return nil, fmt.Errorf("detecting format of %s: %w", filePath, err)
		}
		if can {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filePath)
}
