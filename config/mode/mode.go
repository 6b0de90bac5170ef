// Package mode holds the build mode, set once from main.
package mode

const (
	// Dev is the development build.
	Dev = "dev"
	// Prod is the release build, it skips development config files.
	Prod = "prod"
	// TestDev is used by tests.
	TestDev = "testdev"
)

var mode = Dev

// Set changes the mode.
func Set(newMode string) {
	mode = newMode
}

// Get returns the mode.
func Get() string {
	return mode
}
