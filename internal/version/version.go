// Package version carries the build version string.
package version

// Version is injected at link time via
// -ldflags "-X github.com/quangtd/vnsentry/internal/version.Version=v0.3.0".
var Version = "dev"
