package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// stringList accepts either a scalar or a sequence, as compose does for env_file and ports.
type stringList []string

func (list *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*list = nil
		if value := strings.TrimSpace(node.Value); value != "" {
			*list = []string{value}
		}
		return nil
	case yaml.SequenceNode:
		entries := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			if value := strings.TrimSpace(child.Value); value != "" {
				entries = append(entries, value)
			}
		}
		*list = entries
		return nil
	default:
		return fmt.Errorf("unsupported yaml node kind %d for list", node.Kind)
	}
}

// environmentMap accepts the mapping form and the KEY=value sequence form of environment.
type environmentMap map[string]string

func (environment *environmentMap) UnmarshalYAML(node *yaml.Node) error {
	normalized := make(map[string]string)
	switch node.Kind {
	case yaml.MappingNode:
		decoded := make(map[string]string)
		if err := node.Decode(&decoded); err != nil {
			return err
		}
		for key, value := range decoded {
			normalized[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	case yaml.SequenceNode:
		var decoded []string
		if err := node.Decode(&decoded); err != nil {
			return err
		}
		for _, entry := range decoded {
			key, value, _ := strings.Cut(strings.TrimSpace(entry), "=")
			if key = strings.TrimSpace(key); key != "" {
				normalized[key] = strings.TrimSpace(value)
			}
		}
	default:
		return fmt.Errorf("unsupported yaml node kind %d for environment", node.Kind)
	}
	*environment = normalized
	return nil
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image       string         `yaml:"image"`
	EnvFile     stringList     `yaml:"env_file"`
	Environment environmentMap `yaml:"environment"`
	Ports       stringList     `yaml:"ports"`
	OtherKeys   map[string]any `yaml:",inline"`
}

func parseComposeFile(document []byte) (composeFile, error) {
	var compose composeFile
	if decodeErr := yaml.Unmarshal(document, &compose); decodeErr != nil {
		return composeFile{}, decodeErr
	}
	return compose, nil
}

// parseHostPort extracts the published host port from a "host:container" mapping.
func parseHostPort(portMapping string) (string, bool) {
	parts := strings.Split(strings.Trim(portMapping, `"`), ":")
	if len(parts) < 2 {
		return "", false
	}
	hostPort := strings.TrimSpace(parts[len(parts)-2])
	if hostPort == "" {
		return "", false
	}
	for _, runeValue := range hostPort {
		if runeValue < '0' || runeValue > '9' {
			return "", false
		}
	}
	return hostPort, true
}
