package evaluation

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/doc-extract/internal/model"
)

// datasetFile is the on-disk layout. A bare list of items is accepted too.
type datasetFile struct {
	Items []model.BatchItem `json:"items" yaml:"items"`
}

// LoadDataset reads evaluation items from a YAML or JSON file. The format is
// chosen by extension; .yaml, .yml and .json are supported.
func LoadDataset(path string) ([]model.BatchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "evaluation: read dataset")
	}

	var items []model.BatchItem
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		items, err = decodeJSON(data)
	case ".yaml", ".yml":
		items, err = decodeYAML(data)
	default:
		return nil, eris.Errorf("evaluation: unsupported dataset format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	for i, it := range items {
		if strings.TrimSpace(it.Label) == "" || it.Schema.Len() == 0 || strings.TrimSpace(it.PDFPath) == "" {
			return nil, eris.Errorf("evaluation: item %d: label, extraction_schema and pdf_path are required", i)
		}
	}
	return items, nil
}

func decodeJSON(data []byte) ([]model.BatchItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []model.BatchItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, eris.Wrap(err, "evaluation: decode json dataset")
		}
		return items, nil
	}
	var f datasetFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "evaluation: decode json dataset")
	}
	return f.Items, nil
}

func decodeYAML(data []byte) ([]model.BatchItem, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, eris.Wrap(err, "evaluation: decode yaml dataset")
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var items []model.BatchItem
		if err := root.Decode(&items); err != nil {
			return nil, eris.Wrap(err, "evaluation: decode yaml dataset")
		}
		return items, nil
	}
	var f datasetFile
	if err := root.Decode(&f); err != nil {
		return nil, eris.Wrap(err, "evaluation: decode yaml dataset")
	}
	return f.Items, nil
}
