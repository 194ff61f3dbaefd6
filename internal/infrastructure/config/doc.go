// Package config handles loading and validating the Lighthouse hub configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Populating the environment from an optional .env file
//   - Overriding with LIGHTHOUSE_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - JWT secrets and broker credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Hub.Name)
package config
