// Package config handles loading and validating the bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with ZBBRIDGE_* environment variables
//   - Validation of required fields and every accessory definition
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, def := range cfg.Accessories {
//	    fmt.Println(def.ID, def.Properties)
//	}
package config
