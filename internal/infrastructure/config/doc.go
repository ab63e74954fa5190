// Package config handles loading and validating the screen time agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The JWT secret and pairing hash should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Enable security.require_token on any network you do not fully trust;
//     without it any host on the LAN can read and change restrictions
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Receiver.TCPPort)
package config
