// Package masking redacts credentials and other secrets from text before
// it reaches users: error messages, step stdout/stderr, and anything else
// embedded in a Response. Patterns are compiled eagerly at startup;
// sanitization of untrusted output fails closed.
package masking

import (
	"log/slog"
	"regexp"
)

// pattern pairs a compiled regex with its replacement.
type pattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

type patternSpec struct {
	name        string
	expr        string
	replacement string
}

// builtinPatterns covers the credential shapes that show up in
// infrastructure tool output. Order matters: specific shapes first so the
// generic key/value sweeps do not eat their context.
var builtinPatterns = []patternSpec{
	{
		name:        "certificate",
		expr:        `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
		replacement: `__MASKED_CERTIFICATE__`,
	},
	{
		name:        "ssh_key",
		expr:        `ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]+`,
		replacement: `__MASKED_SSH_KEY__`,
	},
	{
		name:        "aws_access_key",
		expr:        `(?i)(?:aws[_-]?access[_-]?key[_-]?id)["']?\s*[:=]\s*["']?(AKIA[A-Z0-9]{16})["']?`,
		replacement: `"aws_access_key_id": "__MASKED_AWS_KEY__"`,
	},
	{
		name:        "aws_secret_key",
		expr:        `(?i)(?:aws[_-]?secret[_-]?access[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`,
		replacement: `"aws_secret_access_key": "__MASKED_AWS_SECRET__"`,
	},
	{
		name:        "bearer_token",
		expr:        `(?i)bearer\s+[A-Za-z0-9_\-\.]{16,}`,
		replacement: `Bearer __MASKED_TOKEN__`,
	},
	{
		name:        "token",
		expr:        `(?i)(?:token|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
		replacement: `"token": "__MASKED_TOKEN__"`,
	},
	{
		name:        "api_key",
		expr:        `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{16,})["']?`,
		replacement: `"api_key": "__MASKED_API_KEY__"`,
	},
	{
		name:        "secret_key",
		expr:        `(?i)(?:secret[_-]?key|private[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{16,})["']?`,
		replacement: `"secret_key": "__MASKED_SECRET_KEY__"`,
	},
	{
		name:        "password",
		expr:        `(?i)(?:password|passwd|pwd)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
		replacement: `"password": "__MASKED_PASSWORD__"`,
	},
}

// Sanitizer applies credential redaction to user-visible text. Created
// once at startup; thread-safe and stateless aside from compiled patterns.
type Sanitizer struct {
	patterns []*pattern
}

// NewSanitizer compiles the built-in pattern set. Compilation failures are
// a programming error in the pattern table and panic at startup rather
// than silently weakening redaction.
func NewSanitizer() *Sanitizer {
	s := &Sanitizer{patterns: make([]*pattern, 0, len(builtinPatterns))}
	for _, spec := range builtinPatterns {
		s.patterns = append(s.patterns, &pattern{
			name:        spec.name,
			regex:       regexp.MustCompile(spec.expr),
			replacement: spec.replacement,
		})
	}
	slog.Info("Output sanitizer initialized", "patterns", len(s.patterns))
	return s
}

// Sanitize redacts credential-shaped content from text.
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}
	masked := text
	for _, p := range s.patterns {
		masked = p.regex.ReplaceAllString(masked, p.replacement)
	}
	return masked
}

// SanitizeOutput redacts step stdout/stderr before it is embedded in a
// Response. Fails closed: a panic inside the regex engine redacts the
// whole block instead of leaking it.
func (s *Sanitizer) SanitizeOutput(output string) (masked string) {
	if output == "" {
		return output
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Output sanitization failed, redacting content", "panic", r)
			masked = "[REDACTED: output could not be safely processed]"
		}
	}()
	return s.Sanitize(output)
}
