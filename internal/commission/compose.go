package commission

import (
	"fmt"
	"strings"
	"time"
)

const htmlContainerStyle = "font-family:ui-sans-serif,system-ui,-apple-system"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Message is a composed commission mail, independent of the delivery provider.
type Message struct {
	Subject string
	Text    string
	HTML    string
	ReplyTo string
}

// Composer renders submissions into messages using one catalog and time zone.
type Composer struct {
	catalog  Catalog
	location *time.Location
	now      func() time.Time
}

type labeledValue struct {
	label string
	value string
}

// NewComposer builds a Composer. A nil location renders timestamps in UTC.
func NewComposer(catalog Catalog, location *time.Location) *Composer {
	if location == nil {
		location = time.UTC
	}
	return &Composer{
		catalog:  catalog,
		location: location,
		now:      time.Now,
	}
}

// WithClock overrides the time source used for the submission timestamp.
func (composer *Composer) WithClock(now func() time.Time) *Composer {
	if now != nil {
		composer.now = now
	}
	return composer
}

// Catalog returns the catalog the composer renders with.
func (composer *Composer) Catalog() Catalog {
	return composer.catalog
}

// EscapeHTML replaces the five markup-significant characters with entities.
func EscapeHTML(value string) string {
	return htmlEscaper.Replace(value)
}

// Compose renders the subject, plain-text body, HTML body and reply-to for a submission.
func (composer *Composer) Compose(submission Submission) Message {
	timestamp := composer.now().In(composer.location).Format(composer.catalog.TimestampLayout)
	fields := composer.labeledFields(submission)

	message := Message{
		Subject: composer.subject(submission),
		Text:    composer.text(fields, submission.Message, timestamp),
		HTML:    composer.html(fields, submission.Message, timestamp),
	}
	if contact := strings.TrimSpace(submission.Contact); IsEmailAddress(contact) {
		message.ReplyTo = contact
	}
	return message
}

func (composer *Composer) subject(submission Submission) string {
	requestType := submission.Type
	if IsBlank(requestType) {
		requestType = composer.catalog.NoTypePlaceholder
	}
	subject := fmt.Sprintf("%s%s - %s", composer.catalog.SubjectPrefix, submission.Name, requestType)
	return strings.Join(strings.Fields(subject), " ")
}

func (composer *Composer) labeledFields(submission Submission) []labeledValue {
	fields := []labeledValue{
		{label: composer.catalog.Label(FieldName), value: submission.Name},
		{label: composer.catalog.Label(FieldContact), value: submission.Contact},
		{label: composer.catalog.Label(FieldType), value: composer.orPlaceholder(submission.Type)},
		{label: composer.catalog.Label(FieldBudget), value: composer.orPlaceholder(submission.Budget)},
	}
	// deadline and refs are only posted by the extended form
	if !IsBlank(submission.Deadline) {
		fields = append(fields, labeledValue{label: composer.catalog.Label(FieldDeadline), value: submission.Deadline})
	}
	if !IsBlank(submission.References) {
		fields = append(fields, labeledValue{label: composer.catalog.Label(FieldReferences), value: submission.References})
	}
	return fields
}

func (composer *Composer) orPlaceholder(value string) string {
	if IsBlank(value) {
		return composer.catalog.EmptyValuePlaceholder
	}
	return value
}

func (composer *Composer) text(fields []labeledValue, body string, timestamp string) string {
	lines := make([]string, 0, len(fields)+4)
	for _, field := range fields {
		lines = append(lines, fmt.Sprintf("%s: %s", field.label, field.value))
	}
	lines = append(lines,
		composer.catalog.Separator,
		body,
		composer.catalog.Separator,
		fmt.Sprintf("%s: %s", composer.catalog.TimeLabel, timestamp),
	)
	return strings.Join(lines, "\n")
}

func (composer *Composer) html(fields []labeledValue, body string, timestamp string) string {
	builder := &strings.Builder{}
	_, _ = fmt.Fprintf(builder, "<div style=\"%s\">\n", htmlContainerStyle)
	_, _ = fmt.Fprintf(builder, "  <h2>%s</h2>\n", EscapeHTML(composer.catalog.Heading))
	for _, field := range fields {
		_, _ = fmt.Fprintf(builder, "  <p><b>%s%s</b>%s%s</p>\n",
			EscapeHTML(field.label), composer.catalog.HTMLLabelSuffix, composer.catalog.HTMLValuePrefix, EscapeHTML(field.value))
	}
	builder.WriteString("  <hr />\n")
	_, _ = fmt.Fprintf(builder, "  <pre style=\"white-space:pre-wrap;font-family:inherit\">%s</pre>\n", EscapeHTML(body))
	builder.WriteString("  <hr />\n")
	_, _ = fmt.Fprintf(builder, "  <small>%s%s%s%s</small>\n",
		EscapeHTML(composer.catalog.SubmittedAtLabel), composer.catalog.HTMLLabelSuffix, composer.catalog.HTMLValuePrefix, EscapeHTML(timestamp))
	builder.WriteString("</div>\n")
	return builder.String()
}
