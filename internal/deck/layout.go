package deck

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout is the operator-provided labware mapping for a deck. Sections
// are keyed A-D; Roles is the fallback used when a section has no
// explicit entry.
type Layout struct {
	Deck    string `yaml:"deck"`
	Pipette string `yaml:"pipette"`
	Tip     string `yaml:"tip"`

	// SlotMap overrides the builtin slot-id aliases (lowercased slot id
	// to section letter).
	SlotMap map[string]string `yaml:"slot_map"`

	Sections map[string]SectionConfig `yaml:"sections"`
	Roles    map[string]string        `yaml:"roles"`
}

// SectionConfig configures one deck section.
type SectionConfig struct {
	Labware string `yaml:"labware"`
}

// Defaults match the 3-position universal deck used by the reference
// instrument setup.
const (
	defaultDeck    = "3 Position Universal Deck"
	defaultPipette = "VOYAGER EIGHT 125 µl"
	defaultTip     = "50 125 µl GripTip Non-sterile"
)

// LoadLayout reads a layout YAML file. An empty path returns a layout
// with instrument defaults and no labware mappings.
func LoadLayout(path string) (*Layout, error) {
	layout := &Layout{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read deck layout: %w", err)
		}
		if err := yaml.Unmarshal(data, layout); err != nil {
			return nil, fmt.Errorf("failed to parse deck layout %s: %w", path, err)
		}
	}
	if layout.Deck == "" {
		layout.Deck = defaultDeck
	}
	if layout.Pipette == "" {
		layout.Pipette = defaultPipette
	}
	if layout.Tip == "" {
		layout.Tip = defaultTip
	}
	return layout, nil
}

// Labware resolves the labware name for a section, falling back to the
// slot's role mapping. A missing mapping is an error; the mapper cannot
// guess which plate sits on a deck position.
func (l *Layout) Labware(section, role string) (string, error) {
	if cfg, ok := l.Sections[section]; ok && cfg.Labware != "" {
		return cfg.Labware, nil
	}
	if role != "" {
		if name, ok := l.Roles[role]; ok && name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("no labware mapping for section %q (role %q); provide a deck layout file", section, role)
}
