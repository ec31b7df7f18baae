// Package component defines lifecycle-managed services and a registry
// that starts, stops and health-checks them as a group.
//
// A transport is exposed as a Component so a host process can start it
// alongside its other infrastructure and report its health.
package component
