package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sourcerank/internal/model"
)

// Format is the encoding of a source list
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// sourceFile is the wrapped form of a source list: {"sources": [...]}
type sourceFile struct {
	Sources []model.SourceMetadata `json:"sources" yaml:"sources"`
}

// LoadSourcesFile reads a JSON or YAML source list, choosing the format from
// the file extension. A path of "-" reads JSON from stdin.
func LoadSourcesFile(path string) ([]model.SourceMetadata, error) {
	if path == "-" {
		return LoadSources(os.Stdin, FormatJSON)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadSources(f, FormatFor(path))
}

// FormatFor picks a format from a file name.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadSources decodes a source list, either a bare list or wrapped in a
// "sources" key, and drops repeated ids (the first occurrence wins).
func LoadSources(r io.Reader, format Format) ([]model.SourceMetadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}

	var sources []model.SourceMetadata
	switch format {
	case FormatYAML:
		sources, err = decodeYAML(data)
	default:
		sources, err = decodeJSON(data)
	}
	if err != nil {
		return nil, err
	}
	return dedupe(sources), nil
}

func decodeJSON(data []byte) ([]model.SourceMetadata, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped sourceFile
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode JSON sources: %w", err)
		}
		return wrapped.Sources, nil
	}

	var sources []model.SourceMetadata
	if err := json.Unmarshal(trimmed, &sources); err != nil {
		return nil, fmt.Errorf("decode JSON sources: %w", err)
	}
	return sources, nil
}

func decodeYAML(data []byte) ([]model.SourceMetadata, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decode YAML sources: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	if node.Content[0].Kind == yaml.MappingNode {
		var wrapped sourceFile
		if err := node.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode YAML sources: %w", err)
		}
		return wrapped.Sources, nil
	}

	var sources []model.SourceMetadata
	if err := node.Decode(&sources); err != nil {
		return nil, fmt.Errorf("decode YAML sources: %w", err)
	}
	return sources, nil
}

func dedupe(sources []model.SourceMetadata) []model.SourceMetadata {
	seen := make(map[string]bool, len(sources))
	out := make([]model.SourceMetadata, 0, len(sources))
	for _, src := range sources {
		if seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		out = append(out, src)
	}
	return out
}
