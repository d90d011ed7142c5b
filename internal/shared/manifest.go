package shared

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"review_collector/internal/domain"
)

// Manifest is the batch-mode apps file. Each entry expands to one job
// per marketplace id it carries.
type Manifest struct {
	Apps []ManifestApp `yaml:"apps"`
}

type ManifestApp struct {
	Name     string `yaml:"name"`
	GoogleID string `yaml:"google_id"`
	AppleID  string `yaml:"apple_id"`
	Lang     string `yaml:"lang"`
	Country  string `yaml:"country"`
}

func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}

	if len(m.Apps) == 0 {
		return Manifest{}, fmt.Errorf("manifest has no apps")
	}
	for i, a := range m.Apps {
		if a.GoogleID == "" && a.AppleID == "" {
			return Manifest{}, fmt.Errorf("apps[%d] (%q): google_id or apple_id is required", i, a.Name)
		}
	}
	return m, nil
}

// Jobs expands the manifest into collection jobs. Per-app lang/country
// win over the supplied defaults.
func (m Manifest) Jobs(maxReviews, pageSize int, lang, country string, resume bool) []domain.Job {
	var jobs []domain.Job
	for _, a := range m.Apps {
		l, c := a.Lang, a.Country
		if l == "" {
			l = lang
		}
		if c == "" {
			c = country
		}
		if a.GoogleID != "" {
			jobs = append(jobs, domain.Job{
				AppID: a.GoogleID, Source: domain.GooglePlay,
				MaxReviews: maxReviews, PageSize: pageSize,
				Lang: l, Country: c, Resume: resume,
			})
		}
		if a.AppleID != "" {
			jobs = append(jobs, domain.Job{
				AppID: a.AppleID, Source: domain.AppStore,
				MaxReviews: maxReviews, PageSize: pageSize,
				Lang: l, Country: c, Resume: resume,
			})
		}
	}
	return jobs
}
