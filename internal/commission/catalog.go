package commission

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// LocaleEnglish is the default catalog.
	LocaleEnglish = "en"
	// LocaleChinese reproduces the wording of the original commission page.
	LocaleChinese = "zh-CN"
)

// ErrUnknownLocale indicates a locale without a message catalog.
var ErrUnknownLocale = errors.New("commission: unknown locale")

// Catalog holds every user-facing string for one locale.
type Catalog struct {
	Locale string

	MethodNotAllowed      string
	MissingFieldsPrefix   string
	NotConfigured         string
	SubmissionFailed      string
	FieldLabels           map[string]string
	FieldLabelSeparator   string
	SubjectPrefix         string
	NoTypePlaceholder     string
	EmptyValuePlaceholder string
	Heading               string
	TimeLabel             string
	SubmittedAtLabel      string
	HTMLLabelSuffix       string
	HTMLValuePrefix       string
	Separator             string
	TimestampLayout       string
}

var catalogs = map[string]Catalog{
	LocaleEnglish: {
		Locale:              LocaleEnglish,
		MethodNotAllowed:    "Method Not Allowed",
		MissingFieldsPrefix: "Please fill in the required fields: ",
		NotConfigured:       "The commission service is not configured: recipient address or Resend API key is missing.",
		SubmissionFailed:    "The commission form could not be sent. Please try again later.",
		FieldLabels: map[string]string{
			FieldName:       "Name",
			FieldContact:    "Contact",
			FieldType:       "Type",
			FieldBudget:     "Budget",
			FieldDeadline:   "Deadline",
			FieldReferences: "References",
			FieldMessage:    "Request",
			FieldAgree:      "Terms agreement",
		},
		FieldLabelSeparator:   ", ",
		SubjectPrefix:         "[Commission] ",
		NoTypePlaceholder:     "No type selected",
		EmptyValuePlaceholder: "-",
		Heading:               "New commission request",
		TimeLabel:             "Time",
		SubmittedAtLabel:      "Submitted at",
		HTMLLabelSuffix:       ":",
		HTMLValuePrefix:       " ",
		Separator:             "——",
		TimestampLayout:       "1/2/2006, 15:04:05",
	},
	LocaleChinese: {
		Locale:              LocaleChinese,
		MethodNotAllowed:    "Method Not Allowed",
		MissingFieldsPrefix: "请填写必填字段：",
		NotConfigured:       "服务端未配置收件邮箱或 Resend API Key。",
		SubmissionFailed:    "委托表单发送失败，请稍后再试。",
		FieldLabels: map[string]string{
			FieldName:       "称呼",
			FieldContact:    "联系方式",
			FieldType:       "类型",
			FieldBudget:     "预算",
			FieldDeadline:   "截止",
			FieldReferences: "参考",
			FieldMessage:    "需求描述",
			FieldAgree:      "同意条款",
		},
		FieldLabelSeparator:   " / ",
		SubjectPrefix:         "【Commission】",
		NoTypePlaceholder:     "未选择类型",
		EmptyValuePlaceholder: "-",
		Heading:               "新委托表单",
		TimeLabel:             "时间",
		SubmittedAtLabel:      "提交时间",
		HTMLLabelSuffix:       "：",
		HTMLValuePrefix:       "",
		Separator:             "——",
		TimestampLayout:       "2006/1/2 15:04:05",
	},
}

// CatalogFor returns the catalog for locale. An empty locale selects English.
func CatalogFor(locale string) (Catalog, error) {
	normalized := strings.TrimSpace(locale)
	if normalized == "" {
		normalized = LocaleEnglish
	}
	catalog, found := catalogs[normalized]
	if !found {
		return Catalog{}, fmt.Errorf("%w: %s", ErrUnknownLocale, locale)
	}
	return catalog, nil
}

// Label returns the display label of a form field, falling back to the field name.
func (catalog Catalog) Label(field string) string {
	if label, found := catalog.FieldLabels[field]; found {
		return label
	}
	return field
}

// MissingFieldsMessage names the missing required fields for the client.
func (catalog Catalog) MissingFieldsMessage(fields []string) string {
	labels := make([]string, 0, len(fields))
	for _, field := range fields {
		labels = append(labels, catalog.Label(field))
	}
	return catalog.MissingFieldsPrefix + strings.Join(labels, catalog.FieldLabelSeparator)
}
