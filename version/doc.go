// Package version reports the httpbridge build.
//
// Values are stamped at link time:
//
//	go build -ldflags "-X github.com/kbukum/httpbridge/version.Version=1.2.0" ./cmd/bridgefetch
//
// Unset values fall back to the module's embedded VCS settings.
package version
