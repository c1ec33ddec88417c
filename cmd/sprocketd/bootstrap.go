package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// resolveWorkerBinary turns the configured worker binary into a launchable
// path. Bare names are looked up on PATH, then next to the daemon binary, so
// a side-by-side install works without configuration.
func resolveWorkerBinary(configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" || strings.ContainsRune(configured, os.PathSeparator) {
		return configured
	}
	if resolved, err := exec.LookPath(configured); err == nil {
		return resolved
	}
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), configured)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling
		}
	}
	return configured
}
