package simulation

import (
	"github.com/ajitpratap0/spawnpool/pkg/config"
	"github.com/ajitpratap0/spawnpool/pkg/pool"
)

// Entity is the pooled game object the simulation spawns.
type Entity struct {
	pool.Poolable[string]

	Serial  uint64
	X, Y    float64
	VX, VY  float64
	Visible bool
	// Placed is true between placement and return.
	Placed bool

	destroyed bool
}

// SetActive shows or hides the entity.
func (e *Entity) SetActive(active bool) {
	e.Visible = active
}

// Detach clears the placement applied at spawn.
func (e *Entity) Detach() {
	e.X, e.Y, e.VX, e.VY = 0, 0, 0, 0
	e.Placed = false
}

// Destroyed reports whether the catalog released the entity.
func (e *Entity) Destroyed() bool {
	return e.destroyed
}

func (e *Entity) step() {
	e.X += e.VX
	e.Y += e.VY
}

// NewCatalog builds the pool catalog of the configured templates. Every
// entity it creates gets the next serial number.
func NewCatalog(templates []config.TemplateConfig) *pool.TemplateSet[string] {
	var serial uint64
	set := pool.NewTemplateSet[string]()
	for _, tc := range templates {
		settings := tc.Settings()
		// Names were validated unique with the configuration.
		_ = set.Register(pool.Template[string]{
			Key:      tc.Name,
			Settings: &settings,
			New: func(string) (pool.Object[string], error) {
				serial++
				return &Entity{Serial: serial}, nil
			},
			Destroy: func(_ string, obj pool.Object[string]) {
				if e, ok := obj.(*Entity); ok {
					e.destroyed = true
					e.Visible = false
				}
			},
		})
	}
	return set
}
