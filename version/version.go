package version

// Version is the suite version stamped at build time via
// -ldflags "-X github.com/nncert/nncert/version.Version=...".
var Version = "0.0.0"
