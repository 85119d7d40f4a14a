package main

import (
	"bufio"
	"os"
	"sort"
	"strings"
)

// parseDotEnv reads KEY=value lines and reports keys assigned more than once.
func parseDotEnv(path string) (map[string]string, []string, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, nil, openErr
	}
	defer func() { _ = file.Close() }()

	entries := make(map[string]string)
	duplicateSet := make(map[string]struct{})

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		if _, already := entries[key]; already {
			duplicateSet[key] = struct{}{}
		}
		entries[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, nil, scanErr
	}

	duplicates := make([]string, 0, len(duplicateSet))
	for key := range duplicateSet {
		duplicates = append(duplicates, key)
	}
	sort.Strings(duplicates)
	return entries, duplicates, nil
}
