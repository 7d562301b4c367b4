package labels

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/micmon/errdefs"
)

// Format identifies a label file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from the file extension; anything that is
// not .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseFile reads a label file and builds its timeline.
func ParseFile(path string) (*Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdefs.Resource("labels.ParseFile", "cannot open label file "+path, err)
	}
	defer f.Close()

	tl, err := Parse(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tl, nil
}

// Parse decodes a timestamp -> label object from r.
func Parse(r io.Reader, format Format) (*Timeline, error) {
	var raw map[string]string
	var err error

	switch format {
	case FormatYAML:
		raw, err = decodeYAML(r)
	default:
		raw, err = decodeJSON(r)
	}
	if err != nil {
		return nil, err
	}

	return NewTimeline(raw)
}

func decodeJSON(r io.Reader) (map[string]string, error) {
	var obj map[string]any
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, errdefs.Configuration("labels.Parse", "label file is not a JSON object", err)
	}

	raw := make(map[string]string, len(obj))
	for ts, v := range obj {
		switch val := v.(type) {
		case string:
			raw[ts] = val
		case float64, bool:
			raw[ts] = fmt.Sprint(val)
		default:
			return nil, errdefs.Configuration("labels.Parse",
				fmt.Sprintf("label at %q must be a scalar, got %T", ts, v), nil)
		}
	}
	return raw, nil
}

// decodeYAML walks the node tree so that keys such as 00:05 keep their literal
// text regardless of how a resolver would type them.
func decodeYAML(r io.Reader) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errdefs.Configuration("labels.Parse", "label file is not valid YAML", err)
	}

	node := &doc
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, errdefs.Configuration("labels.Parse", "label file must be a mapping", nil)
	}

	raw := make(map[string]string, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, errdefs.Configuration("labels.Parse",
				fmt.Sprintf("label at %q must be a scalar", key.Value), nil)
		}
		raw[key.Value] = val.Value
	}
	return raw, nil
}
