// Package descfile writes the broadcast's description to a companion
// ".description" file, youtube-dl's --write-description convention,
// supplementing a feature the distilled spec added beyond the original
// tool.
package descfile

import "os"

// Write saves description to path, overwriting any existing file.
func Write(path, description string) error {
	return os.WriteFile(path, []byte(description), 0o644)
}
