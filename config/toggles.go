package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type togglesTmp struct {
	Strategies map[string]bool `yaml:"strategies"`
}

// LoadToggles reads the reloadable strategy enable/disable file. Unknown
// strategy names are rejected so a typo cannot silently disable a worker.
func LoadToggles(path string) (map[string]bool, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tmp togglesTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return nil, err
	}

	for name := range tmp.Strategies {
		switch name {
		case StrategyShadowBid, StrategyCooldownTaker, StrategyBigFish:
		default:
			return nil, fmt.Errorf("unknown strategy %q in toggles file %s", name, path)
		}
	}

	if tmp.Strategies == nil {
		tmp.Strategies = make(map[string]bool)
	}

	return tmp.Strategies, nil
}
