package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/commission_svc/internal/commission"
	"github.com/MarkoPoloResearchLab/commission_svc/internal/httpapi"
	"github.com/MarkoPoloResearchLab/commission_svc/internal/notifications"
)

const (
	testCommissionRoute      = "/api/commission"
	testHealthRoute          = "/healthz"
	testRecipient            = "inbox@example.com"
	testSender               = "KONIGIN <onboarding@resend.dev>"
	testGenericFailure       = "The commission form could not be sent. Please try again later."
	testNotConfiguredMessage = "The commission service is not configured: recipient address or Resend API key is missing."
	testOKBody               = `{"ok":true}`
)

type stubEmailSender struct {
	mutex      sync.Mutex
	emails     []notifications.OutboundEmail
	sendErr    error
	panicValue any
}

func (sender *stubEmailSender) SendEmail(ctx context.Context, email notifications.OutboundEmail) (string, error) {
	if sender.panicValue != nil {
		panic(sender.panicValue)
	}
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	sender.emails = append(sender.emails, email)
	if sender.sendErr != nil {
		return "", sender.sendErr
	}
	return "message-id", nil
}

func (sender *stubEmailSender) sent() []notifications.OutboundEmail {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	return append([]notifications.OutboundEmail(nil), sender.emails...)
}

type commissionHarness struct {
	router   *gin.Engine
	handlers *httpapi.CommissionHandlers
}

func buildCommissionHarness(testingT *testing.T, sender httpapi.EmailSender, recipient string) commissionHarness {
	testingT.Helper()

	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	catalog, catalogErr := commission.CatalogFor(commission.LocaleEnglish)
	require.NoError(testingT, catalogErr)
	composer := commission.NewComposer(catalog, time.UTC).WithClock(func() time.Time {
		return time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	})

	handlers := httpapi.NewCommissionHandlers(logger, sender, httpapi.CommissionConfig{
		Recipient:       recipient,
		From:            testSender,
		MaxRequestBytes: 64 << 10,
	}, composer)

	router := gin.New()
	router.Use(httpapi.RequestID())
	router.Use(httpapi.Recovery(logger, catalog.SubmissionFailed))
	router.Use(httpapi.RequestLogger(logger))
	router.Any(testCommissionRoute, handlers.Submit)
	router.GET(testHealthRoute, handlers.Health)

	return commissionHarness{router: router, handlers: handlers}
}

func validFormValues() url.Values {
	return url.Values{
		commission.FieldName:     {"Jane"},
		commission.FieldContact:  {"jane@example.com"},
		commission.FieldType:     {"portrait"},
		commission.FieldBudget:   {"$100-200"},
		commission.FieldMessage:  {"Please draw..."},
		commission.FieldAgree:    {"on"},
		commission.FieldHoneypot: {""},
	}
}

func performFormRequest(testingT *testing.T, router *gin.Engine, method string, values url.Values) *httptest.ResponseRecorder {
	testingT.Helper()
	request := httptest.NewRequest(method, testCommissionRoute, strings.NewReader(values.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func performMultipartRequest(testingT *testing.T, router *gin.Engine, values url.Values) *httptest.ResponseRecorder {
	testingT.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, fieldValues := range values {
		for _, value := range fieldValues {
			require.NoError(testingT, writer.WriteField(name, value))
		}
	}
	require.NoError(testingT, writer.Close())

	request := httptest.NewRequest(http.MethodPost, testCommissionRoute, body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func performRawRequest(testingT *testing.T, router *gin.Engine, contentType string, body io.Reader) *httptest.ResponseRecorder {
	testingT.Helper()
	request := httptest.NewRequest(http.MethodPost, testCommissionRoute, body)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeError(testingT *testing.T, recorder *httptest.ResponseRecorder) string {
	testingT.Helper()
	var payload map[string]string
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return payload["error"]
}

func TestCommissionRejectsNonPostMethods(t *testing.T) {
	sender := &stubEmailSender{}
	harness := buildCommissionHarness(t, sender, testRecipient)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions} {
		method := method
		t.Run(method, func(t *testing.T) {
			recorder := performFormRequest(t, harness.router, method, validFormValues())
			require.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
			require.JSONEq(t, `{"error":"Method Not Allowed"}`, recorder.Body.String())
		})
	}
	require.Empty(t, sender.sent())
}

func TestCommissionHoneypotAcceptsSilently(t *testing.T) {
	testCases := []struct {
		name   string
		values url.Values
	}{
		{
			name: "honeypot with valid fields",
			values: func() url.Values {
				values := validFormValues()
				values.Set(commission.FieldHoneypot, "http://spam.example")
				return values
			}(),
		},
		{
			name:   "honeypot with missing fields",
			values: url.Values{commission.FieldHoneypot: {"x"}},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			sender := &stubEmailSender{}
			harness := buildCommissionHarness(t, sender, testRecipient)

			urlencoded := performFormRequest(t, harness.router, http.MethodPost, testCase.values)
			require.Equal(t, http.StatusOK, urlencoded.Code)
			require.JSONEq(t, testOKBody, urlencoded.Body.String())

			multipartResponse := performMultipartRequest(t, harness.router, testCase.values)
			require.Equal(t, http.StatusOK, multipartResponse.Code)
			require.JSONEq(t, testOKBody, multipartResponse.Body.String())

			require.Empty(t, sender.sent())
		})
	}
}

func TestCommissionRejectsMissingRequiredFields(t *testing.T) {
	testCases := []struct {
		name          string
		removeField   string
		overrideValue string
		expectedLabel string
	}{
		{name: "missing name", removeField: commission.FieldName, expectedLabel: "Name"},
		{name: "missing contact", removeField: commission.FieldContact, expectedLabel: "Contact"},
		{name: "missing message", removeField: commission.FieldMessage, expectedLabel: "Request"},
		{name: "missing agree", removeField: commission.FieldAgree, expectedLabel: "Terms agreement"},
		{name: "blank message", removeField: commission.FieldMessage, overrideValue: "   ", expectedLabel: "Request"},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			sender := &stubEmailSender{}
			harness := buildCommissionHarness(t, sender, testRecipient)

			values := validFormValues()
			values.Del(testCase.removeField)
			if testCase.overrideValue != "" {
				values.Set(testCase.removeField, testCase.overrideValue)
			}

			recorder := performFormRequest(t, harness.router, http.MethodPost, values)
			require.Equal(t, http.StatusBadRequest, recorder.Code)
			errorMessage := decodeError(t, recorder)
			require.True(t, strings.HasPrefix(errorMessage, "Please fill in the required fields: "))
			require.Contains(t, errorMessage, testCase.expectedLabel)
			require.Empty(t, sender.sent())
		})
	}
}

func TestCommissionReportsMissingConfiguration(t *testing.T) {
	testCases := []struct {
		name      string
		sender    httpapi.EmailSender
		recipient string
	}{
		{name: "missing api key", sender: nil, recipient: testRecipient},
		{name: "missing recipient", sender: &stubEmailSender{}, recipient: "  "},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			harness := buildCommissionHarness(t, testCase.sender, testCase.recipient)
			require.False(t, harness.handlers.Configured())

			recorder := performFormRequest(t, harness.router, http.MethodPost, validFormValues())
			require.Equal(t, http.StatusInternalServerError, recorder.Code)
			require.Equal(t, testNotConfiguredMessage, decodeError(t, recorder))
			if stub, ok := testCase.sender.(*stubEmailSender); ok {
				require.Empty(t, stub.sent())
			}
		})
	}
}

func TestCommissionValidationPrecedesConfigurationCheck(t *testing.T) {
	harness := buildCommissionHarness(t, nil, "")
	recorder := performFormRequest(t, harness.router, http.MethodPost, url.Values{commission.FieldName: {"Jane"}})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCommissionProviderFailureReturnsGenericError(t *testing.T) {
	sender := &stubEmailSender{sendErr: &notifications.ProviderError{StatusCode: http.StatusUnprocessableEntity, Body: "Invalid `from` field secret-detail"}}
	harness := buildCommissionHarness(t, sender, testRecipient)

	recorder := performFormRequest(t, harness.router, http.MethodPost, validFormValues())
	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	require.Equal(t, testGenericFailure, decodeError(t, recorder))
	require.NotContains(t, recorder.Body.String(), "secret-detail")
	require.Len(t, sender.sent(), 1)
}

func TestCommissionTransportFailureReturnsGenericError(t *testing.T) {
	sender := &stubEmailSender{sendErr: errors.New("dial tcp: connection refused")}
	harness := buildCommissionHarness(t, sender, testRecipient)

	recorder := performFormRequest(t, harness.router, http.MethodPost, validFormValues())
	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	require.Equal(t, testGenericFailure, decodeError(t, recorder))
	require.NotContains(t, recorder.Body.String(), "connection refused")
}

func TestCommissionUnparseableBodyReturnsGenericError(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		body        io.Reader
	}{
		{name: "json body", contentType: "application/json", body: strings.NewReader(`{"name":"Jane"}`)},
		{name: "missing content type", contentType: "", body: strings.NewReader("name=Jane")},
		{name: "malformed multipart", contentType: "multipart/form-data; boundary=missing", body: strings.NewReader("garbage")},
		{name: "oversized body", contentType: "application/x-www-form-urlencoded", body: strings.NewReader("message=" + strings.Repeat("a", 128<<10))},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			sender := &stubEmailSender{}
			harness := buildCommissionHarness(t, sender, testRecipient)

			recorder := performRawRequest(t, harness.router, testCase.contentType, testCase.body)
			require.Equal(t, http.StatusInternalServerError, recorder.Code)
			require.Equal(t, testGenericFailure, decodeError(t, recorder))
			require.Empty(t, sender.sent())
		})
	}
}

func TestCommissionRecoversFromPanics(t *testing.T) {
	sender := &stubEmailSender{panicValue: "provider exploded"}
	harness := buildCommissionHarness(t, sender, testRecipient)

	recorder := performFormRequest(t, harness.router, http.MethodPost, validFormValues())
	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	require.Equal(t, testGenericFailure, decodeError(t, recorder))
	require.NotContains(t, recorder.Body.String(), "exploded")
}

func TestCommissionReplyToFollowsContactShape(t *testing.T) {
	testCases := []struct {
		name            string
		contact         string
		expectedReplyTo string
	}{
		{name: "email contact", contact: "user@example.com", expectedReplyTo: "user@example.com"},
		{name: "phone contact", contact: "call me, 555-1234", expectedReplyTo: ""},
		{name: "padded email contact", contact: "  user@example.com \n", expectedReplyTo: "user@example.com"},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			sender := &stubEmailSender{}
			harness := buildCommissionHarness(t, sender, testRecipient)

			values := validFormValues()
			values.Set(commission.FieldContact, testCase.contact)
			recorder := performFormRequest(t, harness.router, http.MethodPost, values)
			require.Equal(t, http.StatusOK, recorder.Code)

			emails := sender.sent()
			require.Len(t, emails, 1)
			require.Equal(t, testCase.expectedReplyTo, emails[0].ReplyTo)
		})
	}
}

func TestCommissionEscapesAndTruncatesFields(t *testing.T) {
	sender := &stubEmailSender{}
	harness := buildCommissionHarness(t, sender, testRecipient)

	values := validFormValues()
	values.Set(commission.FieldMessage, "<script>alert(1)</script>")
	values.Set(commission.FieldBudget, strings.Repeat("z", commission.MaxFieldLength+500))

	recorder := performMultipartRequest(t, harness.router, values)
	require.Equal(t, http.StatusOK, recorder.Code)

	emails := sender.sent()
	require.Len(t, emails, 1)
	email := emails[0]
	require.Contains(t, email.HTML, "&lt;script&gt;alert(1)&lt;/script&gt;")
	require.NotContains(t, email.HTML, "<script>")
	require.Equal(t, commission.MaxFieldLength, strings.Count(email.Text, "z"))
	require.Equal(t, commission.MaxFieldLength, strings.Count(email.HTML, "z"))
}

func TestCommissionEndToEndThroughResend(t *testing.T) {
	var (
		mutex    sync.Mutex
		received []map[string]any
		authKeys []string
	)
	providerServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		decoded := map[string]any{}
		require.NoError(t, json.NewDecoder(request.Body).Decode(&decoded))
		mutex.Lock()
		received = append(received, decoded)
		authKeys = append(authKeys, request.Header.Get("Authorization"))
		mutex.Unlock()
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`))
	}))
	t.Cleanup(providerServer.Close)

	resendClient, clientErr := notifications.NewResendClient(zap.NewNop(), providerServer.Client(), notifications.ResendConfig{
		BaseURL: providerServer.URL,
		APIKey:  "re_live_key",
	})
	require.NoError(t, clientErr)
	harness := buildCommissionHarness(t, resendClient, testRecipient)

	recorder := performMultipartRequest(t, harness.router, validFormValues())
	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, testOKBody, recorder.Body.String())

	mutex.Lock()
	defer mutex.Unlock()
	require.Len(t, received, 1)
	require.Equal(t, "Bearer re_live_key", authKeys[0])
	email := received[0]
	subject, _ := email["subject"].(string)
	require.Contains(t, subject, "Jane")
	require.Contains(t, subject, "portrait")
	require.Equal(t, "jane@example.com", email["reply_to"])
	require.Equal(t, []any{testRecipient}, email["to"])
	require.Equal(t, testSender, email["from"])
	require.Contains(t, email["text"], "Budget: $100-200")
}

func TestCommissionEndToEndProviderRejection(t *testing.T) {
	providerServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusForbidden)
		_, _ = writer.Write([]byte(`{"message":"The gmail.com domain is not verified"}`))
	}))
	t.Cleanup(providerServer.Close)

	resendClient, clientErr := notifications.NewResendClient(zap.NewNop(), providerServer.Client(), notifications.ResendConfig{
		BaseURL: providerServer.URL,
		APIKey:  "re_live_key",
	})
	require.NoError(t, clientErr)
	harness := buildCommissionHarness(t, resendClient, testRecipient)

	recorder := performFormRequest(t, harness.router, http.MethodPost, validFormValues())
	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	require.Equal(t, testGenericFailure, decodeError(t, recorder))
	require.NotContains(t, recorder.Body.String(), "not verified")
}

func TestHealthReportsConfiguration(t *testing.T) {
	configured := buildCommissionHarness(t, &stubEmailSender{}, testRecipient)
	recorder := httptest.NewRecorder()
	configured.router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, testHealthRoute, nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, `{"status":"ok","configured":true}`, recorder.Body.String())

	unconfigured := buildCommissionHarness(t, nil, testRecipient)
	recorder = httptest.NewRecorder()
	unconfigured.router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, testHealthRoute, nil))
	require.JSONEq(t, `{"status":"ok","configured":false}`, recorder.Body.String())
}

type contextCapturingSender struct {
	mutex      sync.Mutex
	contextErr error
	calls      int
}

func (sender *contextCapturingSender) SendEmail(ctx context.Context, email notifications.OutboundEmail) (string, error) {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	sender.calls++
	sender.contextErr = ctx.Err()
	return "message-id", nil
}

func TestCommissionSendIgnoresCallerCancellation(t *testing.T) {
	sender := &contextCapturingSender{}
	harness := buildCommissionHarness(t, sender, testRecipient)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()
	request := httptest.NewRequest(http.MethodPost, testCommissionRoute, strings.NewReader(validFormValues().Encode())).WithContext(cancelledContext)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	require.Equal(t, 1, sender.calls)
	require.NoError(t, sender.contextErr)
}

func TestCommissionDeliveryCompletesAfterCallerDeadline(t *testing.T) {
	var deliveries atomic.Int32
	providerServer := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		time.Sleep(150 * time.Millisecond)
		deliveries.Add(1)
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"id":"1b6f5c1e-5d4e-4a59-9d0c-6a2f7a3c1e11"}`))
	}))
	t.Cleanup(providerServer.Close)

	resendClient, clientErr := notifications.NewResendClient(zap.NewNop(), nil, notifications.ResendConfig{
		BaseURL: providerServer.URL,
		APIKey:  "re_live_key",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, clientErr)
	harness := buildCommissionHarness(t, resendClient, testRecipient)

	deadlineContext, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	request := httptest.NewRequest(http.MethodPost, testCommissionRoute, strings.NewReader(validFormValues().Encode())).WithContext(deadlineContext)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.JSONEq(t, testOKBody, recorder.Body.String())
	require.Equal(t, int32(1), deliveries.Load())
}
