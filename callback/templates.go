package callback

import (
	"bytes"
	_ "embed"
	"html/template"
	"strings"
)

//go:embed templates/success.html
var successHTML string

//go:embed templates/error.html
var errorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(successHTML))
	errorTemplate   = template.Must(template.New("error").Parse(errorHTML))
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// EscapeHTML entity-escapes & < > " ' and /.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// RenderSuccess returns the page shown after a successful redirect.
func RenderSuccess(message string) (string, error) {
	var buf bytes.Buffer
	err := successTemplate.Execute(&buf, map[string]any{
		"Message": template.HTML(EscapeHTML(message)), // #nosec G203 -- escaped above
	})
	return buf.String(), err
}

// RenderError returns the page shown when the redirect carried an error or
// failed validation.
func RenderError(title, message, code string) (string, error) {
	var buf bytes.Buffer
	err := errorTemplate.Execute(&buf, map[string]any{
		"Title":   template.HTML(EscapeHTML(title)),   // #nosec G203 -- escaped above
		"Message": template.HTML(EscapeHTML(message)), // #nosec G203 -- escaped above
		"Code":    template.HTML(EscapeHTML(code)),    // #nosec G203 -- escaped above
	})
	return buf.String(), err
}
