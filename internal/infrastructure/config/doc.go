// Package config handles loading and validating Gardener Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/gardener.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Robot.Name)
//
// Validation is strict about safety-relevant fields: the initial operating
// mode may never be autonomous, moisture thresholds must be ordered, and
// the pump runtime cap cannot be below the per-run watering cap. A config
// that fails validation aborts startup; nothing is ever "fixed up" at
// runtime.
package config
