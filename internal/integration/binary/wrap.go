// Package binary locates the external tools the decoders fall back on.
package binary

import (
	"fmt"
	"os/exec"

	"github.com/farcloser/primordium/fault"
)

// Find resolves name on PATH. A missing tool is reported as fault.ErrMissingRequirements.
func Find(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", fault.ErrMissingRequirements, name, err)
	}

	return path, nil
}
