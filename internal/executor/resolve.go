package executor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

const defaultBinaryName = "claude"

// conventionalLocations lists the places node-based CLI installers tend to
// put the binary when it is not on PATH.
func conventionalLocations(home string) []string {
	if runtime.GOOS == "windows" {
		return []string{
			filepath.Join(home, "AppData", "Roaming", "npm", defaultBinaryName+".cmd"),
			filepath.Join(home, "AppData", "Roaming", "npm", defaultBinaryName),
		}
	}
	return []string{
		filepath.Join(home, ".local", "bin", defaultBinaryName),
		filepath.Join(home, ".npm-global", "bin", defaultBinaryName),
		"/usr/local/bin/" + defaultBinaryName,
		"/opt/homebrew/bin/" + defaultBinaryName,
	}
}

// ResolveCLI locates the code-generation CLI binary. Precedence: explicit
// configured path, then PATH lookup, then conventional install locations.
func ResolveCLI(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured cli path %s: %w", configured, err)
		}
		return configured, nil
	}
	if path, err := exec.LookPath(defaultBinaryName); err == nil {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	for _, candidate := range conventionalLocations(home) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s cli not found: not on PATH and no conventional install location exists", defaultBinaryName)
}
