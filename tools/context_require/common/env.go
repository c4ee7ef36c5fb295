package common

import (
	"fmt"
	"os"
	"strings"
)

// LoadEnvFiles reads the .env files derived from basePath and returns the
// variables whose names start with prefix. Later files override earlier
// ones: basePath, basePath.local, then, when mode is set, basePath.<mode>
// and basePath.<mode>.local. Missing files are skipped.
func LoadEnvFiles(basePath, mode, prefix string) (map[string]string, error) {
	files := []string{basePath, basePath + ".local"}
	if mode != "" {
		files = append(files, basePath+"."+mode, basePath+"."+mode+".local")
	}

	env := make(map[string]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if key, value, ok := parseEnvLine(line); ok && strings.HasPrefix(key, prefix) {
				env[key] = value
			}
		}
	}
	return env, nil
}

// parseEnvLine parses one KEY=value line. Blank lines, comments and lines
// without "=" report ok=false. An optional "export " keyword is accepted.
// Single-quoted values are literal; double-quoted values expand \n; unquoted
// values end at " #".
func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", false
	}
	key, value, ok = strings.Cut(strings.TrimPrefix(line, "export "), "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", false
	}

	value = strings.TrimSpace(value)
	switch {
	case len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'':
		value = value[1 : len(value)-1]
	case len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"':
		value = strings.ReplaceAll(value[1:len(value)-1], `\n`, "\n")
	default:
		if i := strings.Index(value, " #"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}
	}
	return key, value, true
}
