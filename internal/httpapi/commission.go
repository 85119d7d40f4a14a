package httpapi

import (
	stdcontext "context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/commission_svc/internal/commission"
	"github.com/MarkoPoloResearchLab/commission_svc/internal/notifications"
)

const (
	// DefaultMaxRequestBytes bounds the commission form body.
	DefaultMaxRequestBytes int64 = 1 << 20

	multipartMemoryBytes int64 = 256 << 10

	mediaTypeURLEncoded = "application/x-www-form-urlencoded"
	mediaTypeMultipart  = "multipart/form-data"
)

// ErrUnsupportedContentType indicates a body that is not an HTML form encoding.
var ErrUnsupportedContentType = errors.New("httpapi: unsupported form content type")

// CommissionConfig captures delivery settings for the commission endpoint.
type CommissionConfig struct {
	Recipient       string
	From            string
	MaxRequestBytes int64
}

// CommissionHandlers relays commission form submissions as email.
type CommissionHandlers struct {
	logger          *zap.Logger
	sender          EmailSender
	composer        *commission.Composer
	recipient       string
	from            string
	maxRequestBytes int64
	metrics         *CommissionMetrics
}

// NewCommissionHandlers builds the handlers. A nil sender marks the service as not configured.
func NewCommissionHandlers(logger *zap.Logger, sender EmailSender, config CommissionConfig, composer *commission.Composer) *CommissionHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRequestBytes := config.MaxRequestBytes
	if maxRequestBytes <= 0 {
		maxRequestBytes = DefaultMaxRequestBytes
	}
	return &CommissionHandlers{
		logger:          logger,
		sender:          sender,
		composer:        composer,
		recipient:       strings.TrimSpace(config.Recipient),
		from:            strings.TrimSpace(config.From),
		maxRequestBytes: maxRequestBytes,
	}
}

// WithMetrics records submission outcomes into metrics.
func (h *CommissionHandlers) WithMetrics(metrics *CommissionMetrics) *CommissionHandlers {
	h.metrics = metrics
	return h
}

// Configured reports whether both the provider and the recipient are available.
func (h *CommissionHandlers) Configured() bool {
	return h.sender != nil && h.recipient != ""
}

// Submit validates one commission form post and forwards it to the email provider.
func (h *CommissionHandlers) Submit(context *gin.Context) {
	catalog := h.composer.Catalog()
	requestID := RequestIDFromContext(context)

	if context.Request.Method != http.MethodPost {
		h.metrics.observeOutcome(OutcomeMethodNotAllowed)
		context.JSON(http.StatusMethodNotAllowed, gin.H{"error": catalog.MethodNotAllowed})
		return
	}

	values, parseErr := parseSubmissionForm(context.Writer, context.Request, h.maxRequestBytes)
	if context.Request.MultipartForm != nil {
		defer func() {
			_ = context.Request.MultipartForm.RemoveAll()
		}()
	}
	if parseErr != nil {
		h.logger.Warn("commission_parse_failed", zap.Error(parseErr), zap.String("request_id", requestID))
		h.metrics.observeOutcome(OutcomeParseFailed)
		context.JSON(http.StatusInternalServerError, gin.H{"error": catalog.SubmissionFailed})
		return
	}

	if commission.IsHoneypotTriggered(values) {
		h.logger.Info("commission_honeypot", zap.String("request_id", requestID), zap.String("ip", context.ClientIP()))
		h.metrics.observeOutcome(OutcomeHoneypot)
		context.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	submission := commission.SubmissionFromForm(values)
	if missingFields := submission.MissingFields(); len(missingFields) > 0 {
		h.metrics.observeOutcome(OutcomeInvalid)
		context.JSON(http.StatusBadRequest, gin.H{"error": catalog.MissingFieldsMessage(missingFields)})
		return
	}

	if !h.Configured() {
		h.logger.Error("commission_not_configured",
			zap.Bool("sender_configured", h.sender != nil),
			zap.Bool("recipient_configured", h.recipient != ""),
			zap.String("request_id", requestID),
		)
		h.metrics.observeOutcome(OutcomeNotConfigured)
		context.JSON(http.StatusInternalServerError, gin.H{"error": catalog.NotConfigured})
		return
	}

	message := h.composer.Compose(submission)
	email := notifications.OutboundEmail{
		From:    h.from,
		To:      []string{h.recipient},
		Subject: message.Subject,
		HTML:    message.HTML,
		Text:    message.Text,
		ReplyTo: message.ReplyTo,
	}

	sendStartedAt := time.Now()
	// The provider call outlives a disconnected caller; the sender's own timeout bounds it.
	sendContext := stdcontext.WithoutCancel(context.Request.Context())
	messageID, sendErr := h.sender.SendEmail(sendContext, email)
	h.metrics.observeSend(sendStartedAt)
	if sendErr != nil {
		h.logger.Error("commission_send_failed", zap.Error(sendErr), zap.String("request_id", requestID))
		h.metrics.observeOutcome(OutcomeSendFailed)
		context.JSON(http.StatusInternalServerError, gin.H{"error": catalog.SubmissionFailed})
		return
	}

	h.logger.Info("commission_sent",
		zap.String("message_id", messageID),
		zap.String("request_id", requestID),
		zap.Bool("reply_to", message.ReplyTo != ""),
		zap.Int("message_length", len(submission.Message)),
	)
	h.metrics.observeOutcome(OutcomeSent)
	context.JSON(http.StatusOK, gin.H{"ok": true})
}

func parseSubmissionForm(writer http.ResponseWriter, request *http.Request, maxRequestBytes int64) (url.Values, error) {
	mediaType, _, mediaErr := mime.ParseMediaType(request.Header.Get("Content-Type"))
	if mediaErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedContentType, mediaErr)
	}

	request.Body = http.MaxBytesReader(writer, request.Body, maxRequestBytes)

	switch mediaType {
	case mediaTypeURLEncoded:
		if parseErr := request.ParseForm(); parseErr != nil {
			return nil, fmt.Errorf("parse urlencoded form: %w", parseErr)
		}
	case mediaTypeMultipart:
		if parseErr := request.ParseMultipartForm(multipartMemoryBytes); parseErr != nil {
			return nil, fmt.Errorf("parse multipart form: %w", parseErr)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
	}

	return request.PostForm, nil
}
