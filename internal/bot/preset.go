package bot

import (
	"fmt"
	"sort"
	"strings"
)

type Preset struct {
	Name  string
	Depth int
	// Varied breaks root ties at random instead of taking the first.
	Varied bool
}

var DefaultPresets = map[string]Preset{
	"level1": {Name: "level1", Depth: 1, Varied: true},
	"level2": {Name: "level2", Depth: 2, Varied: true},
	"level3": {Name: "level3", Depth: 2},
	"level4": {Name: "level4", Depth: 3},
}

// GetPreset resolves a preset by level name or by its friendly alias.
func GetPreset(name string) (Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "beginner":
		name = "level1"
	case "", "intermediate":
		name = "level2"
	case "advanced":
		name = "level3"
	case "master":
		name = "level4"
	}
	p, ok := DefaultPresets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown bot preset: %s", name)
	}
	return p, nil
}

func PresetNames() []string {
	names := make([]string, 0, len(DefaultPresets))
	for k := range DefaultPresets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// NewFromPreset builds a bot for p. Varied presets use seed for tie-breaks;
// other presets ignore it.
func NewFromPreset(p Preset, seed int64) *Bot {
	b := New(p.Depth)
	if p.Varied {
		b.SetRandomSeed(seed)
	}
	return b
}
