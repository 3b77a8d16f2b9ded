package server

// Version is the service version, overridable at build time with
// -ldflags "-X github.com/sightline-io/sightline/internal/server.Version=...".
var Version = "0.1.0"
