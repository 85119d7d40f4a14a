package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/commission_svc/internal/commission"
)

const (
	defaultComposePath      = "docker-compose.yml"
	commissionServiceName   = "commission"
	sandboxSenderDomain     = "@resend.dev"
	environmentKeyAPIKey    = "RESEND_API_KEY"
	environmentKeyRecipient = "COMMISSION_INBOX"
	environmentKeyFrom      = "COMMISSION_FROM"
	environmentKeyLocale    = "COMMISSION_LOCALE"
	environmentKeyTimezone  = "COMMISSION_TIMEZONE"
	environmentKeyOrigins   = "ALLOWED_ORIGINS"
	environmentKeyTimeout   = "SEND_TIMEOUT"
)

type auditResult struct {
	errors   []string
	warnings []string
}

func (result *auditResult) addError(message string, arguments ...any) {
	result.errors = append(result.errors, fmt.Sprintf(message, arguments...))
}

func (result *auditResult) addWarning(message string, arguments ...any) {
	result.warnings = append(result.warnings, fmt.Sprintf(message, arguments...))
}

func (result auditResult) ok() bool {
	return len(result.errors) == 0
}

func main() {
	composePath := defaultComposePath
	if len(os.Args) > 1 {
		composePath = os.Args[1]
	}
	os.Exit(runAuditCommand(composePath, os.Stdout, os.Stderr))
}

func runAuditCommand(composePath string, stdout io.Writer, stderr io.Writer) int {
	result := runAudit(composePath)
	sort.Strings(result.errors)
	sort.Strings(result.warnings)

	for _, warning := range result.warnings {
		_, _ = fmt.Fprintf(stdout, "WARN: %s\n", warning)
	}
	for _, errorMessage := range result.errors {
		_, _ = fmt.Fprintf(stderr, "ERROR: %s\n", errorMessage)
	}
	if !result.ok() {
		_, _ = fmt.Fprintf(stderr, "config-audit failed\n")
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "config-audit OK\n")
	return 0
}

func runAudit(composePath string) auditResult {
	var result auditResult

	composeDocument, readErr := os.ReadFile(composePath)
	if readErr != nil {
		result.addError("read compose file %s: %v", composePath, readErr)
		return result
	}

	compose, parseErr := parseComposeFile(composeDocument)
	if parseErr != nil {
		result.addError("parse compose file %s: %v", composePath, parseErr)
		return result
	}
	if len(compose.Services) == 0 {
		result.addError("compose file %s: no services defined", composePath)
		return result
	}

	composeDirectory := filepath.Dir(composePath)
	hostPortToService := make(map[string]string)
	serviceNames := make([]string, 0, len(compose.Services))
	for serviceName := range compose.Services {
		serviceNames = append(serviceNames, serviceName)
	}
	sort.Strings(serviceNames)

	for _, serviceName := range serviceNames {
		service := compose.Services[serviceName]
		checkHostPortCollisions(serviceName, service.Ports, hostPortToService, &result)
		if serviceName != commissionServiceName {
			continue
		}
		environment := loadServiceEnvironment(composeDirectory, serviceName, service, &result)
		checkCommissionEnvironment(environment, &result)
	}

	if _, found := compose.Services[commissionServiceName]; !found {
		result.addError("compose file %s: service %s is not defined", composePath, commissionServiceName)
	}

	return result
}

func loadServiceEnvironment(composeDirectory string, serviceName string, service composeService, result *auditResult) map[string]string {
	merged := make(map[string]string)

	for _, envFile := range service.EnvFile {
		resolvedPath := filepath.Clean(filepath.Join(composeDirectory, envFile))
		values, duplicates, parseErr := parseDotEnv(resolvedPath)
		if parseErr != nil {
			result.addError("service %s: env_file %s: %v", serviceName, envFile, parseErr)
			continue
		}
		for _, duplicate := range duplicates {
			result.addError("service %s: env_file %s defines %s more than once", serviceName, envFile, duplicate)
		}
		for key, value := range values {
			merged[key] = value
		}
	}

	for key, value := range service.Environment {
		if key != "" {
			merged[key] = value
		}
	}
	return merged
}

func checkCommissionEnvironment(environment map[string]string, result *auditResult) {
	for _, key := range []string{environmentKeyAPIKey, environmentKeyRecipient} {
		if strings.TrimSpace(environment[key]) == "" {
			result.addError("service %s: required env %s is missing or empty", commissionServiceName, key)
		}
	}

	recipient := strings.TrimSpace(environment[environmentKeyRecipient])
	if recipient != "" && !commission.IsEmailAddress(recipient) {
		result.addError("service %s: %s %q is not an email address", commissionServiceName, environmentKeyRecipient, recipient)
	}

	sender := strings.TrimSpace(environment[environmentKeyFrom])
	if sender == "" || strings.Contains(sender, sandboxSenderDomain) {
		result.addWarning("service %s: %s uses the provider sandbox sender; set a verified domain sender", commissionServiceName, environmentKeyFrom)
	}

	if locale, found := environment[environmentKeyLocale]; found {
		if _, catalogErr := commission.CatalogFor(locale); catalogErr != nil {
			result.addError("service %s: %s: %v", commissionServiceName, environmentKeyLocale, catalogErr)
		}
	}

	if timezone, found := environment[environmentKeyTimezone]; found {
		if _, locationErr := time.LoadLocation(strings.TrimSpace(timezone)); locationErr != nil {
			result.addError("service %s: %s: %v", commissionServiceName, environmentKeyTimezone, locationErr)
		}
	}

	if timeout, found := environment[environmentKeyTimeout]; found {
		if duration, parseErr := time.ParseDuration(strings.TrimSpace(timeout)); parseErr != nil || duration <= 0 {
			result.addError("service %s: %s %q must be a positive duration", commissionServiceName, environmentKeyTimeout, timeout)
		}
	}

	for _, origin := range strings.Split(environment[environmentKeyOrigins], ",") {
		trimmed := strings.TrimSpace(origin)
		if strings.Contains(trimmed, "localhost") || strings.Contains(trimmed, "127.0.0.1") {
			result.addWarning("service %s: %s allows local origin %s", commissionServiceName, environmentKeyOrigins, trimmed)
		}
	}
}

func checkHostPortCollisions(serviceName string, ports []string, hostPortToService map[string]string, result *auditResult) {
	for _, mapping := range ports {
		hostPort, ok := parseHostPort(strings.TrimSpace(mapping))
		if !ok {
			continue
		}
		if existingService, already := hostPortToService[hostPort]; already {
			result.addError("compose: host port %s is published by both %s and %s", hostPort, existingService, serviceName)
			continue
		}
		hostPortToService[hostPort] = serviceName
	}
}
