// Package config provides centralized configuration management for the
// import pipeline and its command line tools.
//
// # Configuration Sources
//
// Configuration is resolved in this order, later sources winning:
//
//	1. Default values
//	2. YAML file (rps.yaml or configs/rps.yaml, or an explicit path)
//	3. Environment variables prefixed with RPS_
//
// # Environment Variables
//
//	RPS_STORE_PATH=/projects/tower-a.rps
//	RPS_STORE_BUSY_TIMEOUT=10s
//	RPS_IMPORT_PRESCAN_WORKERS=8
//	RPS_LOGGING_LEVEL=debug
//	RPS_TELEMETRY_ENABLED=true
//
// The command line tools load a .env file before calling Load, so the same
// variables can live next to the project.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Tests should start from Default() and override fields directly.
package config
