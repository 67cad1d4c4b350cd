package notifx

import (
	"bytes"
	"html/template"
	"sync"
)

// TemplateRegistry stores and renders named Go html/templates.
type TemplateRegistry struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

// NewTemplateRegistry creates a new template registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*template.Template),
	}
}

// Built-in template names
const (
	TemplateSetupProbe       = "setup_probe"
	TemplateWelcome          = "welcome"
	TemplateVerificationCode = "verification_code"
)

const setupProbeTemplate = `<p>This is a test message from {{.ServiceName}}.</p>
<p>If you can read it, outbound email is configured correctly.</p>`

const welcomeTemplate = `<p>Hi {{if .FirstName}}{{.FirstName}}{{else}}there{{end}},</p>
<p>Your account for {{.ApplicationName}} has been created with {{.Email}}.</p>`

const verificationCodeTemplate = `<p>Your {{.ApplicationName}} verification code is <strong>{{.Code}}</strong>.</p>
<p>It expires in {{.ExpiresInMinutes}} minutes. If you did not ask for it, ignore this email.</p>`

// NewDefaultTemplateRegistry returns a registry holding the built-in templates.
func NewDefaultTemplateRegistry() *TemplateRegistry {
	r := NewTemplateRegistry()
	r.mustRegister(TemplateSetupProbe, setupProbeTemplate)
	r.mustRegister(TemplateWelcome, welcomeTemplate)
	r.mustRegister(TemplateVerificationCode, verificationCodeTemplate)
	return r
}

func (r *TemplateRegistry) mustRegister(name, tmplString string) {
	if err := r.Register(name, tmplString); err != nil {
		panic(err)
	}
}

// Register parses and stores a template by name.
func (r *TemplateRegistry) Register(name, tmplString string) error {
	t, err := template.New(name).Parse(tmplString)
	if err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}

	r.mu.Lock()
	r.templates[name] = t
	r.mu.Unlock()

	return nil
}

// Render executes a named template with the given data and returns the result.
func (r *TemplateRegistry) Render(name string, data any) (string, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return "", notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}

	return buf.String(), nil
}
