package files

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/okian/rnaught/internal/domain/model"
)

// ReadGenerationTime loads a JSON array of gamma parameterizations and
// returns the first one.
func ReadGenerationTime(path string) (model.Gamma, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Gamma{}, fmt.Errorf("open generation time: %w", err)
	}
	var gammas []model.Gamma
	if err := json.Unmarshal(data, &gammas); err != nil {
		return model.Gamma{}, fmt.Errorf("%w: generation time: %w", ErrMalformedRecord, err)
	}
	if len(gammas) == 0 {
		return model.Gamma{}, fmt.Errorf("generation time: %w", ErrEmptyInput)
	}
	g := gammas[0]
	if err := g.Validate(); err != nil {
		return model.Gamma{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return g, nil
}
