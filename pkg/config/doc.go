// Package config loads and validates spawnpool configuration files.
//
// # Usage
//
//	cfg, err := config.LoadFile("spawnpool.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// LoadFile starts from Default, so a file only needs the fields it changes.
// A template list in the file replaces the default templates.
//
// # Environment Variable Substitution
//
//	# spawnpool.yaml
//	logging:
//	  level: ${SPAWNPOOL_LOG_LEVEL:-info}
//	simulation:
//	  seed: ${SEED}
//	templates:
//	  - name: bullet
//	    pool_capacity: 64
//	    capacity_limit_behavior: recycle_oldest_active
//	    spawn_per_frame: 3
//	    lifetime_frames: 10
//
// ${VAR} expands to the variable's value and ${VAR:-fallback} to the
// fallback when the variable is unset or empty.
//
// # Capacity Limit Behaviors
//
// capacity_limit_behavior takes the snake_case name of a
// pool.CapacityLimitBehavior: none, dispose_on_return,
// retrieve_oldest_active, recycle_oldest_active, reject_population or
// throw_exception. Dashes and upper case are accepted.
package config
