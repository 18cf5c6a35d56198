// Package validation checks agent descriptors and A2A requests before they
// reach the registry or the session broker. Failures are domain validation
// errors pinned to the offending field.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/xiaot623/agentdir/internal/domain"
)

// Limits on request payloads.
const (
	MinAgentNameLength = 3
	MaxAgentNameLength = 253
	MaxFingerprintSize = 512
	MaxTaskLength      = 100
	MaxContextBytes    = 10 * 1024
)

var agentNamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?$`)

type compiledSchemas struct {
	descriptor  *jsonschema.Schema
	negotiation *jsonschema.Schema
}

var schemas = sync.OnceValues(func() (*compiledSchemas, error) {
	descriptor, err := compile("descriptor.json", descriptorSchema)
	if err != nil {
		return nil, err
	}
	negotiation, err := compile("negotiation.json", negotiationSchema)
	if err != nil {
		return nil, err
	}
	return &compiledSchemas{descriptor: descriptor, negotiation: negotiation}, nil
})

func compile(name, source string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return schema, nil
}

// AgentName checks the DNS-style agent name rules.
func AgentName(field, name string) error {
	switch {
	case name == "":
		return domain.FieldError(field, "is required")
	case len(name) < MinAgentNameLength || len(name) > MaxAgentNameLength:
		return domain.FieldError(field, "must be %d to %d characters", MinAgentNameLength, MaxAgentNameLength)
	case strings.Contains(name, ".."):
		return domain.FieldError(field, "must not contain consecutive dots")
	case !agentNamePattern.MatchString(name):
		return domain.FieldError(field, "must contain only letters, digits, dots and hyphens and start and end alphanumerically")
	}
	return nil
}

// Fingerprint checks a certificate fingerprint is present and bounded.
// The value itself is never echoed back.
func Fingerprint(field, fp string) error {
	if strings.TrimSpace(fp) == "" {
		return domain.FieldError(field, "is required")
	}
	if len(fp) > MaxFingerprintSize {
		return domain.FieldError(field, "must be at most %d bytes", MaxFingerprintSize)
	}
	return nil
}

// Task checks a requested task name.
func Task(field, task string) error {
	task = strings.TrimSpace(task)
	if task == "" {
		return domain.FieldError(field, "is required")
	}
	if !utf8.ValidString(task) {
		return domain.FieldError(field, "must be valid UTF-8")
	}
	if len(task) > MaxTaskLength {
		return domain.FieldError(field, "must be at most %d characters", MaxTaskLength)
	}
	return nil
}

// Context bounds the serialized size of a session context. Keys and values
// must be valid UTF-8 so the stored context is the one submitted.
func Context(field string, c domain.SessionContext) error {
	if len(c) == 0 {
		return nil
	}
	for k, v := range c {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return domain.FieldError(field, "must be valid UTF-8")
		}
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return domain.FieldError(field, "is not serializable")
	}
	if len(raw) > MaxContextBytes {
		return domain.FieldError(field, "must be at most %d bytes when serialized", MaxContextBytes)
	}
	return nil
}

// Descriptor validates a normalized capability descriptor.
func Descriptor(d domain.Descriptor) error {
	s, err := schemas()
	if err != nil {
		return domain.Internal("descriptor schema unavailable", err)
	}
	return validate(s.descriptor, "descriptor", d)
}

// NegotiationRequest validates a negotiation request.
func NegotiationRequest(req domain.NegotiationRequest) error {
	if err := AgentName("initiatingAgentName", req.InitiatingAgent); err != nil {
		return err
	}
	if err := Task("requestedTask", req.RequestedTask); err != nil {
		return err
	}
	s, err := schemas()
	if err != nil {
		return domain.Internal("negotiation schema unavailable", err)
	}
	if err := validate(s.negotiation, "", req); err != nil {
		return err
	}
	return Context("context", req.Context)
}

func validate(schema *jsonschema.Schema, root string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return domain.FieldError(root, "is not serializable")
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return domain.FieldError(root, "is not valid JSON")
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return domain.FieldError(root, "%s", err.Error())
	}
	leaf := deepest(verr)
	return domain.FieldError(fieldPath(root, leaf.InstanceLocation), "%s", leafMessage(leaf))
}

// deepest follows the first cause chain down to the most specific failure.
func deepest(e *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	return e
}

func fieldPath(root string, location []string) string {
	parts := make([]string, 0, len(location)+1)
	if root != "" {
		parts = append(parts, root)
	}
	parts = append(parts, location...)
	return strings.Join(parts, ".")
}

// leafMessage keeps the last line of the validator output, minus its location prefix.
func leafMessage(e *jsonschema.ValidationError) string {
	lines := strings.Split(strings.TrimSpace(e.Error()), "\n")
	msg := strings.TrimSpace(lines[len(lines)-1])
	msg = strings.TrimPrefix(msg, "- ")
	if strings.HasPrefix(msg, "at '") {
		if i := strings.Index(msg, "': "); i >= 0 {
			msg = msg[i+3:]
		}
	}
	if msg == "" {
		return "is invalid"
	}
	return msg
}
