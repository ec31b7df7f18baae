// Package validation validates configuration structs using struct tags.
//
//	type Limits struct {
//	    MaxConnections int `mapstructure:"max_connections" validate:"gte=0"`
//	}
//	err := validation.Validate(limits)
//
// Field names in error messages come from the mapstructure tag so they
// match the keys used in configuration files.
package validation
