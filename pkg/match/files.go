package match

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

// resultsFile is the YAML document shape for persisted match results.
type resultsFile struct {
	Results []Result `yaml:"results"`
}

// LoadResults reads a YAML results file into a memory store.
func LoadResults(path string) (Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var doc resultsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}

	store := NewMemoryStore()
	for _, r := range doc.Results {
		if err := store.Save(r); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// SaveResults writes a store's results to a YAML file, ordered by listing
// ref so successive saves diff cleanly.
func SaveResults(path string, store Store) error {
	doc := resultsFile{Results: store.List()}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
