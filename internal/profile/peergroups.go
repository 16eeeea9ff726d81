package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LoadPeerGroups reads the external user→peer-group assignment. A missing
// file returns a nil map and no error: the caller runs in degraded mode
// with the peer-group deviation rule disabled.
func LoadPeerGroups(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read peer group map: %w", err)
	}

	groups := make(map[string]int)
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse peer group map: %w", err)
	}
	return groups, nil
}
