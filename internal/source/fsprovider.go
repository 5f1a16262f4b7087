package source

import "os"

// FSProvider reads source text directly from the filesystem. It is a host
// convenience, not part of the core pipeline: the core only ever consumes
// the Provider interface, never os directly.
type FSProvider struct{}

func (FSProvider) Read(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is produced by Resolve from controlled import statements
	if err != nil {
		return "", err
	}
	return string(data), nil
}
