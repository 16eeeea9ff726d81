package markov

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/util"
)

// SaveModel writes the model artifact with the same atomic-replace policy
// as the profile snapshot.
func SaveModel(path string, m *model.SequenceModel) error {
	if err := util.WriteJSONAtomic(path, m); err != nil {
		return fmt.Errorf("failed to save sequence model: %w", err)
	}
	return nil
}

// LoadModel reads a previously built model artifact. A missing model is
// an error: scoring cannot proceed without one.
func LoadModel(path string) (*model.SequenceModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence model: %w", err)
	}
	var m model.SequenceModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse sequence model: %w", err)
	}
	return &m, nil
}
