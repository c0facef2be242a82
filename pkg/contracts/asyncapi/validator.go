// Package asyncapi validates published CloudEvents against the AsyncAPI
// document of warehouse-core.
package asyncapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed asyncapi.yaml
var document []byte

// Document returns the embedded AsyncAPI document
func Document() []byte {
	return document
}

const documentURI = "asyncapi://warehouse-core/asyncapi.json"

// EventValidator validates CloudEvents against AsyncAPI message payloads.
type EventValidator struct {
	schemas  map[string]*jsonschema.Schema
	channels map[string]string
}

// CloudEvent is the envelope as it appears on the wire
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	ID              string          `json:"id"`
	Time            string          `json:"time,omitempty"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// Spec is the part of an AsyncAPI document the validator reads
type Spec struct {
	AsyncAPI   string             `yaml:"asyncapi"`
	Info       Info               `yaml:"info"`
	Channels   map[string]Channel `yaml:"channels"`
	Components Components         `yaml:"components"`
}

// Info contains the AsyncAPI info section.
type Info struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// Channel is a Kafka topic and the messages carried on it
type Channel struct {
	Address  string         `yaml:"address"`
	Messages map[string]Ref `yaml:"messages"`
}

// Ref is a JSON reference
type Ref struct {
	Ref string `yaml:"$ref"`
}

// Message ties an event type to its payload schema
type Message struct {
	Name    string `yaml:"name"`
	Payload Ref    `yaml:"payload"`
}

// Components contains reusable components.
type Components struct {
	Messages map[string]Message `yaml:"messages"`
}

// NewEventValidator loads the embedded document
func NewEventValidator() (*EventValidator, error) {
	return NewEventValidatorFromBytes(document)
}

// NewEventValidatorFromFile loads an AsyncAPI document from disk
func NewEventValidatorFromFile(path string) (*EventValidator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AsyncAPI spec: %w", err)
	}
	return NewEventValidatorFromBytes(data)
}

// NewEventValidatorFromBytes compiles the payload schema of every message in
// the document. Every message must name its event type.
func NewEventValidatorFromBytes(specBytes []byte) (*EventValidator, error) {
	var spec Spec
	if err := yaml.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}

	// The whole document is one schema resource so payloads can share
	// definitions through local refs.
	var raw any
	if err := yaml.Unmarshal(specBytes, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI spec: %w", err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert AsyncAPI spec: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to convert AsyncAPI spec: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(documentURI, doc); err != nil {
		return nil, fmt.Errorf("failed to add AsyncAPI spec: %w", err)
	}

	v := &EventValidator{
		schemas:  make(map[string]*jsonschema.Schema),
		channels: make(map[string]string),
	}
	for key, msg := range spec.Components.Messages {
		if msg.Name == "" {
			return nil, fmt.Errorf("message %s has no name", key)
		}
		if !strings.HasPrefix(msg.Payload.Ref, "#/") {
			return nil, fmt.Errorf("message %s: payload must be a local $ref", key)
		}
		schema, err := compiler.Compile(documentURI + msg.Payload.Ref)
		if err != nil {
			return nil, fmt.Errorf("failed to compile payload of %s: %w", key, err)
		}
		v.schemas[msg.Name] = schema
	}

	for _, channel := range spec.Channels {
		for key, ref := range channel.Messages {
			msg, ok := spec.Components.Messages[strings.TrimPrefix(ref.Ref, "#/components/messages/")]
			if !ok {
				return nil, fmt.Errorf("channel %s: unknown message %s", channel.Address, key)
			}
			v.channels[msg.Name] = channel.Address
		}
	}
	return v, nil
}

// ValidateEvent checks the envelope and validates the data payload
func (v *EventValidator) ValidateEvent(event CloudEvent) error {
	switch {
	case event.Type == "":
		return fmt.Errorf("event type is required")
	case event.SpecVersion != "1.0":
		return fmt.Errorf("unsupported specversion %q", event.SpecVersion)
	case event.ID == "" || event.Source == "":
		return fmt.Errorf("event %s: id and source are required", event.Type)
	}

	schema, ok := v.schemas[event.Type]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", event.Type)
	}
	if len(event.Data) == 0 {
		return fmt.Errorf("event data is required")
	}

	data, err := jsonschema.UnmarshalJSON(bytes.NewReader(event.Data))
	if err != nil {
		return fmt.Errorf("failed to decode event data: %w", err)
	}
	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", event.Type, err)
	}
	return nil
}

// ValidateEventJSON validates a CloudEvent from JSON bytes.
func (v *EventValidator) ValidateEventJSON(eventJSON []byte) error {
	var event CloudEvent
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return fmt.Errorf("failed to parse CloudEvent: %w", err)
	}
	return v.ValidateEvent(event)
}

// Channel returns the topic an event type is documented on
func (v *EventValidator) Channel(eventType string) (string, bool) {
	address, ok := v.channels[eventType]
	return address, ok
}

// HasSchema checks if a schema exists for the given event type.
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

// SupportedEventTypes returns the documented event types, sorted
func (v *EventValidator) SupportedEventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for eventType := range v.schemas {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}
