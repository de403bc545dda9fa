package version

// will be replaced with the release version when using goreleaser
var version = "development"

// Version returns the application version
func Version() string {
	return version
}

// IsDevelopment reports whether the binary was built without a release version
func IsDevelopment() bool {
	return version == "development"
}
