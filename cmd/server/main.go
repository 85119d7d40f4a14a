package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/commission_svc/internal/commission"
	"github.com/MarkoPoloResearchLab/commission_svc/internal/httpapi"
	"github.com/MarkoPoloResearchLab/commission_svc/internal/notifications"
)

const (
	commandUseName                = "server"
	commandShortDescription       = "Run the commission relay server"
	commandLongDescription        = "Accept commission form posts from static pages and relay them as email through Resend"
	invalidConfigurationMessage   = "invalid configuration"
	loggerCreationErrorMessage    = "logger"
	logEventListening             = "listening"
	logFieldAddress               = "addr"
	loggerContextServer           = "server"
	loggerContextRouter           = "router"
	readHeaderTimeoutSeconds      = 5
	unexpectedArgumentsMessage    = "unexpected command arguments"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"

	flagNameApplicationAddress = "app-addr"
	flagNameResendAPIKey       = "resend-api-key"
	flagNameRecipient          = "commission-inbox"
	flagNameFrom               = "commission-from"
	flagNameResendBaseURL      = "resend-base-url"
	flagNameLocale             = "locale"
	flagNameTimezone           = "timezone"
	flagNameAllowedOrigins     = "allowed-origins"
	flagNameSendTimeout        = "send-timeout"
	flagNameCommissionRoute    = "route"
	flagNameLogFile            = "log-file"

	environmentKeyApplicationAddress = "APP_ADDR"
	environmentKeyResendAPIKey       = "RESEND_API_KEY"
	environmentKeyRecipient          = "COMMISSION_INBOX"
	environmentKeyFrom               = "COMMISSION_FROM"
	environmentKeyResendBaseURL      = "RESEND_BASE_URL"
	environmentKeyLocale             = "COMMISSION_LOCALE"
	environmentKeyTimezone           = "COMMISSION_TIMEZONE"
	environmentKeyAllowedOrigins     = "ALLOWED_ORIGINS"
	environmentKeySendTimeout        = "SEND_TIMEOUT"
	environmentKeyCommissionRoute    = "COMMISSION_ROUTE"
	environmentKeyLogFile            = "LOG_FILE"

	defaultApplicationAddress = ":8080"
	defaultFrom               = "KONIGIN <onboarding@resend.dev>"
	defaultTimezone           = "UTC"
	defaultAllowedOrigins     = corsOriginWildcard
	defaultSendTimeout        = "15s"
	defaultCommissionRoute    = "/api/commission"
)

type settingDefinition struct {
	environmentKey string
	flagName       string
	defaultValue   string
	usage          string
}

var serverSettings = []settingDefinition{
	{environmentKeyApplicationAddress, flagNameApplicationAddress, defaultApplicationAddress, "address for the HTTP server to listen on"},
	{environmentKeyResendAPIKey, flagNameResendAPIKey, "", "Resend API key used as the bearer token"},
	{environmentKeyRecipient, flagNameRecipient, "", "inbox that receives commission requests"},
	{environmentKeyFrom, flagNameFrom, defaultFrom, "sender address and display name"},
	{environmentKeyResendBaseURL, flagNameResendBaseURL, notifications.DefaultResendBaseURL, "Resend API base URL"},
	{environmentKeyLocale, flagNameLocale, commission.LocaleEnglish, "message catalog locale (en, zh-CN)"},
	{environmentKeyTimezone, flagNameTimezone, defaultTimezone, "IANA time zone for submission timestamps"},
	{environmentKeyAllowedOrigins, flagNameAllowedOrigins, defaultAllowedOrigins, "comma separated origins allowed to post the form"},
	{environmentKeySendTimeout, flagNameSendTimeout, defaultSendTimeout, "timeout for the provider request"},
	{environmentKeyCommissionRoute, flagNameCommissionRoute, defaultCommissionRoute, "path of the commission endpoint"},
	{environmentKeyLogFile, flagNameLogFile, "", "optional file that also receives rotated JSON logs"},
}

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress string
	ResendAPIKey       string
	ResendBaseURL      string
	Recipient          string
	From               string
	Locale             string
	Location           *time.Location
	AllowedOrigins     []string
	SendTimeout        time.Duration
	CommissionRoute    string
	LogFile            string
}

// EmailSenderFactory builds the provider client from configuration.
type EmailSenderFactory func(*zap.Logger, notifications.ResendConfig) (httpapi.EmailSender, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	emailSenderFactory  EmailSenderFactory
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		emailSenderFactory:  newResendEmailSender,
	}
}

// WithEmailSenderFactory overrides the provider client factory.
func (application *ServerApplication) WithEmailSenderFactory(factory EmailSenderFactory) *ServerApplication {
	application.emailSenderFactory = factory
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	commandFlags := command.Flags()
	for _, setting := range serverSettings {
		application.configurationLoader.SetDefault(setting.environmentKey, setting.defaultValue)
		commandFlags.String(setting.flagName, setting.defaultValue, setting.usage)
	}
	application.configurationLoader.AutomaticEnv()

	for _, setting := range serverSettings {
		if bindErr := application.bindFlag(commandFlags, setting.environmentKey, setting.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, setting.environmentKey, setting.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadServerConfig() (ServerConfig, error) {
	loader := application.configurationLoader
	var problems []string

	serverConfig := ServerConfig{
		ApplicationAddress: strings.TrimSpace(loader.GetString(environmentKeyApplicationAddress)),
		ResendAPIKey:       strings.TrimSpace(loader.GetString(environmentKeyResendAPIKey)),
		ResendBaseURL:      strings.TrimSpace(loader.GetString(environmentKeyResendBaseURL)),
		Recipient:          strings.TrimSpace(loader.GetString(environmentKeyRecipient)),
		From:               strings.TrimSpace(loader.GetString(environmentKeyFrom)),
		Locale:             strings.TrimSpace(loader.GetString(environmentKeyLocale)),
		AllowedOrigins:     splitOrigins(loader.GetString(environmentKeyAllowedOrigins)),
		CommissionRoute:    strings.TrimSpace(loader.GetString(environmentKeyCommissionRoute)),
		LogFile:            strings.TrimSpace(loader.GetString(environmentKeyLogFile)),
	}

	if serverConfig.ApplicationAddress == "" {
		problems = append(problems, flagNameApplicationAddress+" is empty")
	}
	if serverConfig.From == "" {
		serverConfig.From = defaultFrom
	}
	if !strings.HasPrefix(serverConfig.CommissionRoute, "/") {
		problems = append(problems, flagNameCommissionRoute+" must start with /")
	}
	if len(serverConfig.AllowedOrigins) == 0 {
		problems = append(problems, flagNameAllowedOrigins+" is empty")
	}
	for _, origin := range serverConfig.AllowedOrigins {
		if origin != corsOriginWildcard && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			problems = append(problems, fmt.Sprintf("%s: origin %q must be * or start with http:// or https://", flagNameAllowedOrigins, origin))
		}
	}

	if _, catalogErr := commission.CatalogFor(serverConfig.Locale); catalogErr != nil {
		problems = append(problems, fmt.Sprintf("%s: %v", flagNameLocale, catalogErr))
	}

	location, locationErr := time.LoadLocation(strings.TrimSpace(loader.GetString(environmentKeyTimezone)))
	if locationErr != nil {
		problems = append(problems, fmt.Sprintf("%s: %v", flagNameTimezone, locationErr))
	}
	serverConfig.Location = location

	sendTimeout, timeoutErr := time.ParseDuration(strings.TrimSpace(loader.GetString(environmentKeySendTimeout)))
	if timeoutErr != nil || sendTimeout <= 0 {
		problems = append(problems, flagNameSendTimeout+" must be a positive duration")
	}
	serverConfig.SendTimeout = sendTimeout

	if len(problems) > 0 {
		return ServerConfig{}, fmt.Errorf("%s: %s", invalidConfigurationMessage, strings.Join(problems, "; "))
	}
	return serverConfig, nil
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig, configErr := application.loadServerConfig()
	if configErr != nil {
		return configErr
	}

	logger, loggerErr := newLogger(serverConfig.LogFile)
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	router, routerErr := buildRouter(logger, serverConfig, application.emailSenderFactory)
	if routerErr != nil {
		logger.Fatal(loggerContextRouter, zap.Error(routerErr))
	}

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeoutSeconds * time.Second,
	}

	logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress), zap.String("route", serverConfig.CommissionRoute))
	if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Fatal(loggerContextServer, zap.Error(serveErr))
	}

	return nil
}

func splitOrigins(rawOrigins string) []string {
	var origins []string
	for _, origin := range strings.Split(rawOrigins, ",") {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func newResendEmailSender(logger *zap.Logger, cfg notifications.ResendConfig) (httpapi.EmailSender, error) {
	client, clientErr := notifications.NewResendClient(logger, nil, cfg)
	if clientErr != nil {
		return nil, clientErr
	}
	return client, nil
}

func main() {
	if _, envFileErr := loadEnvironmentFiles(environmentFileCandidates()...); envFileErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, envFileErr)
		os.Exit(1)
	}

	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
