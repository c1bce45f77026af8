package review

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/shelfmatch/shelfmatch/pkg/errors"
)

// queueFile is the YAML document shape for a persisted review queue.
type queueFile struct {
	Entries []Entry `yaml:"entries"`
}

// LoadManager reads a YAML queue file into a manager. Pending entries are
// re-enqueued in file order; terminal entries are replayed so Blocked keeps
// suppressing their listings across process restarts.
func LoadManager(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var doc queueFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}

	m := NewManager()
	for _, entry := range doc.Entries {
		if err := m.restore(entry); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SaveManager writes all queue entries to a YAML file in insertion order.
func SaveManager(path string, m *Manager) error {
	doc := queueFile{Entries: m.Entries()}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
