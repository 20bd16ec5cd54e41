// Package config loads the server configuration and the expectation
// initialization files.
//
// Configuration is layered: Default() values, then a YAML or JSON file
// (chosen by extension), then EXPECTD_* environment variables. The result
// is checked with Validate before use:
//
//	cfg, err := config.Load("expectd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// A minimal YAML file:
//
//	addr: ":1080"
//	maxExpectations: 1000
//	log:
//	  level: debug
//	initializationFiles:
//	  - "expectations/**/*.json"
//
// Initialization files hold a single expectation or an array of them, as
// JSON or YAML. Patterns support ** through doublestar.
package config
