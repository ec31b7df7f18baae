// Package config loads httpbridge configuration with Viper.
//
// Values come from a YAML file, then a .env file (via godotenv), then
// environment variables with the BRIDGE_ prefix. Underscores in a
// variable name may separate sections or belong to a key, so
// BRIDGE_TRANSPORT_LIMITS_MAX_CONNECTIONS sets
// transport.limits.max_connections.
//
// # Usage
//
//	var cfg config.BridgeConfig
//	if err := config.Load("bridgefetch", &cfg, config.WithConfigFile(path)); err != nil {
//	    return err
//	}
package config
