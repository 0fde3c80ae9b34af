// Package config provides configuration management for hifibridge.
//
// Configuration is layered. Later sources override earlier ones:
//
//  1. Default configuration (GetDefaultConfig)
//  2. User configuration (~/.config/hifibridge/config.yaml)
//  3. Project configuration (./.hifibridge/config.yaml)
//  4. HIFI_* environment variables, optionally loaded from a .env file
//
// A file passed with --config replaces layers 2 and 3.
//
// # Configuration Structure
//
//	logLevel: info
//	bus:
//	  capacity: 1024
//	coordinator:
//	  shutdownTimeout: 5s
//	  stopTimeout: 5s
//	  joinTimeout: 1s
//	retry:
//	  initialDelay: 5s
//	  maxDelay: 60s
//	  stableRunThreshold: 30s
//	adapters:
//	  - name: sim
//	    type: simulated
//	    enabled: true
//	    simulated:
//	      zones:
//	        - id: living
//	          name: Living Room
//	          volume: 30
//	http:
//	  enabled: true
//	  listen: ":8088"
//	mqtt:
//	  enabled: false
//	  broker: tcp://localhost:1883
//
// Adapters are merged by name across layers: an entry in the project file
// replaces the user entry with the same name.
package config
