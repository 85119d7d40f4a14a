package commission

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxFieldLength bounds every text field of a submission, counted in characters.
const MaxFieldLength = 5000

// Form field names posted by the commission page.
const (
	FieldName       = "name"
	FieldContact    = "contact"
	FieldType       = "type"
	FieldBudget     = "budget"
	FieldDeadline   = "deadline"
	FieldReferences = "refs"
	FieldMessage    = "message"
	FieldAgree      = "agree"
	FieldHoneypot   = "website"
)

var emailAddressExpression = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Submission is one commission request as read from the form.
type Submission struct {
	Name       string
	Contact    string
	Type       string
	Budget     string
	Deadline   string
	References string
	Message    string
	Agreed     bool
}

// Sanitize truncates the value to MaxFieldLength characters. Whitespace is kept as posted.
func Sanitize(value string) string {
	if utf8.RuneCountInString(value) <= MaxFieldLength {
		return value
	}
	return string([]rune(value)[:MaxFieldLength])
}

// IsBlank reports whether value is empty after trimming surrounding whitespace.
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// IsHoneypotTriggered reports whether the hidden website field carries a value.
func IsHoneypotTriggered(values url.Values) bool {
	return values.Get(FieldHoneypot) != ""
}

// SubmissionFromForm reads and sanitizes the commission fields from decoded form values.
func SubmissionFromForm(values url.Values) Submission {
	return Submission{
		Name:       Sanitize(values.Get(FieldName)),
		Contact:    Sanitize(values.Get(FieldContact)),
		Type:       Sanitize(values.Get(FieldType)),
		Budget:     Sanitize(values.Get(FieldBudget)),
		Deadline:   Sanitize(values.Get(FieldDeadline)),
		References: Sanitize(values.Get(FieldReferences)),
		Message:    Sanitize(values.Get(FieldMessage)),
		Agreed:     values.Get(FieldAgree) != "",
	}
}

// MissingFields lists the required fields that are blank, in form order.
func (submission Submission) MissingFields() []string {
	var missing []string
	if IsBlank(submission.Name) {
		missing = append(missing, FieldName)
	}
	if IsBlank(submission.Contact) {
		missing = append(missing, FieldContact)
	}
	if IsBlank(submission.Message) {
		missing = append(missing, FieldMessage)
	}
	if !submission.Agreed {
		missing = append(missing, FieldAgree)
	}
	return missing
}

// IsEmailAddress reports whether value has the local@domain.tld shape without whitespace.
func IsEmailAddress(value string) bool {
	return emailAddressExpression.MatchString(value)
}
