package dedup

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/shelfmatch/shelfmatch/pkg/catalogs"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

// verdictRecord is one persisted arbitration answer.
type verdictRecord struct {
	Left  catalogs.ProductID `yaml:"left"`
	Right catalogs.ProductID `yaml:"right"`
	Same  bool               `yaml:"same"`
}

// verdictFile is the YAML document shape for a persisted verdict cache.
type verdictFile struct {
	Verdicts []verdictRecord `yaml:"verdicts"`
}

// loadVerdicts seeds the cache from a YAML file. A missing file is an empty
// cache; verdicts already in memory win over the file.
func (e *Engine) loadVerdicts(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapIO("read", path, err)
	}

	var doc verdictFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.WrapParse("yaml", path, err)
	}

	e.cache.seed(doc.Verdicts)
	return nil
}

// saveVerdicts writes every definitive verdict to a YAML file so later scans
// skip pairs the arbiter already answered.
func (e *Engine) saveVerdicts(path string) error {
	doc := verdictFile{Verdicts: e.cache.snapshot()}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
