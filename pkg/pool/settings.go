package pool

import (
	"fmt"
	"strings"
)

// CapacityLimitBehavior selects what a pool does when every slot up to its
// capacity is active and another instance is requested.
type CapacityLimitBehavior int

const (
	// LimitNone constructs a new instance regardless of capacity.
	LimitNone CapacityLimitBehavior = iota
	// LimitDisposeOnReturn constructs a new instance on demand and trims the
	// idle set back to capacity as instances are returned.
	LimitDisposeOnReturn
	// LimitRetrieveOldestActive hands out the oldest active instance again
	// without running its retrieve transition.
	LimitRetrieveOldestActive
	// LimitRecycleOldestActive returns the oldest active instance and hands
	// it straight back out.
	LimitRecycleOldestActive
	// LimitRejectPopulation yields no instance.
	LimitRejectPopulation
	// LimitThrowException fails the request with ErrPoolExhausted.
	LimitThrowException
)

var behaviorNames = [...]string{
	LimitNone:                 "none",
	LimitDisposeOnReturn:      "dispose_on_return",
	LimitRetrieveOldestActive: "retrieve_oldest_active",
	LimitRecycleOldestActive:  "recycle_oldest_active",
	LimitRejectPopulation:     "reject_population",
	LimitThrowException:       "throw_exception",
}

func (b CapacityLimitBehavior) String() string {
	if b < 0 || int(b) >= len(behaviorNames) {
		return fmt.Sprintf("CapacityLimitBehavior(%d)", int(b))
	}
	return behaviorNames[b]
}

// Valid reports whether b is one of the declared behaviors.
func (b CapacityLimitBehavior) Valid() bool {
	return b >= 0 && int(b) < len(behaviorNames)
}

// ParseCapacityLimitBehavior parses the snake_case name of a behavior.
// Matching ignores case and accepts dashes in place of underscores.
func ParseCapacityLimitBehavior(s string) (CapacityLimitBehavior, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if name == "" {
		return LimitNone, nil
	}
	for i, n := range behaviorNames {
		if n == name {
			return CapacityLimitBehavior(i), nil
		}
	}
	return LimitNone, fmt.Errorf("unknown capacity limit behavior %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (b CapacityLimitBehavior) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid capacity limit behavior %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *CapacityLimitBehavior) UnmarshalText(text []byte) error {
	v, err := ParseCapacityLimitBehavior(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Settings configures a single pool.
type Settings struct {
	CapacityLimitBehavior CapacityLimitBehavior `yaml:"capacity_limit_behavior" json:"capacity_limit_behavior"`
	PoolCapacity          int                   `yaml:"pool_capacity" json:"pool_capacity"`
}

// Copy returns an independent copy of s.
func (s Settings) Copy() Settings {
	return Settings{
		CapacityLimitBehavior: s.CapacityLimitBehavior,
		PoolCapacity:          s.PoolCapacity,
	}
}

// normalized clamps the capacity to at least one.
func (s Settings) normalized() Settings {
	c := s.Copy()
	if c.PoolCapacity < 1 {
		c.PoolCapacity = 1
	}
	return c
}
