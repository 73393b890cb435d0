package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/regionbrief/regionbrief/internal/models"
)

// Feeds is the region topology loaded from the feeds file. It is immutable
// at runtime; changing it requires a restart.
type Feeds struct {
	Regions []models.RegionConfig `json:"regions" validate:"required,min=1,dive"`

	byCode map[string]models.RegionConfig
}

// LoadFeeds reads and validates the feeds file at path.
func LoadFeeds(path string) (*Feeds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file %s: %w", path, err)
	}

	var feeds Feeds
	if err := json.Unmarshal(data, &feeds); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file %s: %w", path, err)
	}

	validate := validator.New()
	if err := validate.Struct(&feeds); err != nil {
		return nil, fmt.Errorf("invalid feeds file %s: %w", path, err)
	}

	feeds.byCode = make(map[string]models.RegionConfig, len(feeds.Regions))
	for i := range feeds.Regions {
		region := feeds.Regions[i]
		code := strings.ToUpper(strings.TrimSpace(region.Code))
		if _, dup := feeds.byCode[code]; dup {
			return nil, fmt.Errorf("duplicate region %q in feeds file %s", code, path)
		}
		// Sources inherit their region code so downstream stages never
		// depend on the file being fully denormalized.
		for j := range region.Sources {
			region.Sources[j].Region = code
		}
		region.Code = code
		feeds.Regions[i] = region
		feeds.byCode[code] = region
	}

	return &feeds, nil
}

// Region returns the configuration for a region code.
func (f *Feeds) Region(code string) (models.RegionConfig, bool) {
	region, ok := f.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return region, ok
}

// HasWebhooks reports whether at least one region has a delivery target.
func (f *Feeds) HasWebhooks() bool {
	for _, region := range f.Regions {
		if region.WebhookURL != "" {
			return true
		}
	}
	return false
}

// Codes returns all configured region codes in file order.
func (f *Feeds) Codes() []string {
	codes := make([]string, 0, len(f.Regions))
	for _, region := range f.Regions {
		codes = append(codes, region.Code)
	}
	return codes
}
