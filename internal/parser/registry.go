package parser

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Registry holds all available parsers and provides auto-detection.
type Registry struct {
	parsers []Parser
}

// Global registry instance
var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return NewRegistryInLocation(time.UTC)
}

// NewRegistryInLocation returns a registry whose parsers read log
// timestamps in loc.
func NewRegistryInLocation(loc *time.Location) *Registry {
	return &Registry{
		parsers: []Parser{
			NewPHDLogParser().WithLocation(loc),
			NewAutorunLogParser().WithLocation(loc),
		},
	}
}

// GetGlobalRegistry returns the singleton registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds a new parser to the registry.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Parsers returns the registered parsers in detection order.
func (r *Registry) Parsers() []Parser {
	out := make([]Parser, len(r.parsers))
	copy(out, r.parsers)
	return out
}

// FindParser detects the correct parser for a file.
func (r *Registry) FindParser(filePath string) (Parser, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	p, err := r.FindParserForReader(file)
	if err != nil {
		return nil, fmt.Errorf("no suitable parser found for file: %s", filePath)
	}
	return p, nil
}

// FindParserForReader detects the parser from the first line of r.
func (r *Registry) FindParserForReader(rd io.Reader) (Parser, error) {
	line, err := FirstLine(rd)
	if err != nil {
		return nil, err
	}
	return r.FindParserForLine(line)
}

// FindParserForLine matches a log's first line against each parser.
func (r *Registry) FindParserForLine(firstLine string) (Parser, error) {
	for _, p := range r.parsers {
		if p.Sniff(firstLine) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unrecognized log header: %q", truncate(firstLine, 40))
}

// GetParserByName returns a parser by its name.
func (r *Registry) GetParserByName(name string) (Parser, error) {
	name = strings.ToLower(name)
	for _, p := range r.parsers {
		if strings.ToLower(p.Name()) == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("parser not found: %s", name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
