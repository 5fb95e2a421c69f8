package session

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// loadProjectEnv reads <repoPath>/.schaltwerk/env, a KEY=VALUE file (blank
// lines and '#' comments ignored) used to inject extra variables into setup
// scripts without editing the script itself. Missing file is not an error.
func loadProjectEnv(repoPath string) map[string]string {
	env := map[string]string{}

	f, err := os.Open(filepath.Join(repoPath, ".schaltwerk", "env"))
	if err != nil {
		return env
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		env[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return env
}
