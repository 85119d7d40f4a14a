package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/commission_svc/internal/commission"
	"github.com/MarkoPoloResearchLab/commission_svc/internal/httpapi"
	"github.com/MarkoPoloResearchLab/commission_svc/internal/notifications"
)

const (
	healthRoute             = "/healthz"
	metricsRoute            = "/metrics"
	corsOriginWildcard      = "*"
	corsHeaderContentType   = "Content-Type"
	corsHeaderRequestID     = httpapi.HeaderRequestID
	logEventNotConfigured   = "commission_not_configured"
	logFieldAPIKeyPresent   = "api_key_present"
	logFieldRecipientExists = "recipient_present"
)

var (
	corsAllowedMethods = []string{http.MethodPost, http.MethodOptions}
	corsAllowedHeaders = []string{corsHeaderContentType, corsHeaderRequestID}
	corsExposedHeaders = []string{corsHeaderContentType, corsHeaderRequestID}
)

func buildRouter(logger *zap.Logger, serverConfig ServerConfig, senderFactory EmailSenderFactory) (*gin.Engine, error) {
	catalog, catalogErr := commission.CatalogFor(serverConfig.Locale)
	if catalogErr != nil {
		return nil, catalogErr
	}
	composer := commission.NewComposer(catalog, serverConfig.Location)

	var sender httpapi.EmailSender
	if serverConfig.ResendAPIKey != "" && senderFactory != nil {
		createdSender, senderErr := senderFactory(logger, notifications.ResendConfig{
			BaseURL: serverConfig.ResendBaseURL,
			APIKey:  serverConfig.ResendAPIKey,
			Timeout: serverConfig.SendTimeout,
		})
		if senderErr != nil {
			return nil, fmt.Errorf("create email sender: %w", senderErr)
		}
		sender = createdSender
	}
	if sender == nil || serverConfig.Recipient == "" {
		logger.Warn(logEventNotConfigured,
			zap.Bool(logFieldAPIKeyPresent, sender != nil),
			zap.Bool(logFieldRecipientExists, serverConfig.Recipient != ""),
		)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	commissionMetrics, metricsErr := httpapi.NewCommissionMetrics(registry)
	if metricsErr != nil {
		return nil, fmt.Errorf("register metrics: %w", metricsErr)
	}

	commissionHandlers := httpapi.NewCommissionHandlers(logger, sender, httpapi.CommissionConfig{
		Recipient: serverConfig.Recipient,
		From:      serverConfig.From,
	}, composer).WithMetrics(commissionMetrics)

	router := gin.New()
	router.Use(httpapi.RequestID())
	router.Use(httpapi.Recovery(logger, catalog.SubmissionFailed))
	router.Use(httpapi.RequestLogger(logger))
	router.Use(cors.New(corsConfig(serverConfig.AllowedOrigins)))

	registerCommissionRoutes(router, serverConfig.CommissionRoute, commissionHandlers)
	router.GET(metricsRoute, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return router, nil
}

func corsConfig(allowedOrigins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range allowedOrigins {
		if origin == corsOriginWildcard {
			config.AllowAllOrigins = true
			return config
		}
	}
	config.AllowOrigins = allowedOrigins
	return config
}

func registerCommissionRoutes(router *gin.Engine, commissionRoute string, commissionHandlers *httpapi.CommissionHandlers) {
	router.GET(healthRoute, commissionHandlers.Health)
	router.Any(commissionRoute, commissionHandlers.Submit)
	// Methods outside gin's Any set fall through to NoRoute; they still get the handler's 405.
	router.NoRoute(func(context *gin.Context) {
		if context.Request.URL.Path == commissionRoute {
			commissionHandlers.Submit(context)
		}
	})
}
