// Package emulators spins up the external stores as disposable containers
// for integration tests.
package emulators

type ImageContainer struct {
	EmulatorImage    string
	EmulatorHTTPPort string
}

type GCImageContainer struct {
	ImageContainer
	ProjectID string
}
