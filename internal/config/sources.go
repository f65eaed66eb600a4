package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SourceDef describes one upstream site to scrape. Kind selects the adapter
// implementation; BaseURL overrides the adapter's default endpoint.
type SourceDef struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	BaseURL string `yaml:"base_url"`
	Enabled bool   `yaml:"enabled"`
}

type sourcesFile struct {
	Sources []SourceDef `yaml:"sources"`
}

// DefaultSources returns the built-in upstream source definitions, used when
// no sources file exists.
func DefaultSources() []SourceDef {
	return []SourceDef{
		{Name: "hetzi-hinam", Kind: "hetzi", BaseURL: "https://shop.hazi-hinam.co.il", Enabled: true},
		{Name: "shufersal", Kind: "shufersal", BaseURL: "https://www.shufersal.co.il", Enabled: true},
	}
}

// LoadSources reads source definitions from the given yaml file. A missing
// file is not an error: the built-in defaults are returned instead. Disabled
// entries are filtered out.
func LoadSources(path string) ([]SourceDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return enabledOnly(DefaultSources()), nil
		}
		return nil, eris.Wrapf(err, "config: read sources file %s", path)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse sources file %s", path)
	}
	if len(f.Sources) == 0 {
		return nil, eris.Errorf("config: sources file %s defines no sources", path)
	}

	for _, s := range f.Sources {
		if s.Name == "" || s.Kind == "" {
			return nil, eris.Errorf("config: sources file %s: every source needs a name and a kind", path)
		}
	}

	return enabledOnly(f.Sources), nil
}

func enabledOnly(defs []SourceDef) []SourceDef {
	out := make([]SourceDef, 0, len(defs))
	for _, d := range defs {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}
