package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpawnPoint is the placement for a player with no persisted position.
type SpawnPoint struct {
	Scene string
	X     float64
	Y     float64
}

// SpawnTable maps scene name to its spawn point.
type SpawnTable struct {
	points map[string]*SpawnPoint
}

// fallbackSpawn matches the client's hardcoded start position.
var fallbackSpawn = SpawnPoint{Scene: "main", X: 688, Y: 231}

// Get returns the spawn point for a scene, falling back to the default
// when the scene is unknown.
func (t *SpawnTable) Get(scene string) SpawnPoint {
	if p := t.points[scene]; p != nil {
		return *p
	}
	return fallbackSpawn
}

// Count returns the number of loaded spawn points.
func (t *SpawnTable) Count() int {
	return len(t.points)
}

// --- YAML loading ---

type spawnEntry struct {
	Scene string  `yaml:"scene"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
}

type spawnFile struct {
	Spawns []spawnEntry `yaml:"spawns"`
}

// LoadSpawnTable loads spawn points from YAML. A missing file yields an
// empty table: every scene then resolves to the built-in fallback.
func LoadSpawnTable(path string) (*SpawnTable, error) {
	t := &SpawnTable{points: make(map[string]*SpawnPoint)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read spawn table: %w", err)
	}
	var f spawnFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse spawn table: %w", err)
	}
	for _, e := range f.Spawns {
		t.points[e.Scene] = &SpawnPoint{Scene: e.Scene, X: e.X, Y: e.Y}
	}
	return t, nil
}
