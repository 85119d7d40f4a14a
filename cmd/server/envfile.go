package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	environmentKeyEnvFile = "COMMISSION_ENV_FILE"
	defaultEnvFile        = ".env"
)

// loadEnvironmentFiles exports KEY=value pairs from the first readable file without overriding variables already set.
func loadEnvironmentFiles(candidatePaths ...string) (string, error) {
	for _, candidatePath := range candidatePaths {
		trimmedPath := strings.TrimSpace(candidatePath)
		if trimmedPath == "" {
			continue
		}
		loadErr := godotenv.Load(trimmedPath)
		if loadErr == nil {
			return trimmedPath, nil
		}
		if errors.Is(loadErr, fs.ErrNotExist) {
			continue
		}
		return "", fmt.Errorf("load env file %s: %w", trimmedPath, loadErr)
	}
	return "", nil
}

func environmentFileCandidates() []string {
	return []string{os.Getenv(environmentKeyEnvFile), defaultEnvFile}
}
