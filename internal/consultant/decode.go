package consultant

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/silbaram/artifact-driven-agent/internal/models"
)

// ErrNoJSON is returned when no JSON object can be found in the output
var ErrNoJSON = errors.New("no JSON object in manager output")

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func decisionSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(models.DecisionSchema()))
	})
	return schema, schemaErr
}

// ExtractJSON finds the decision object in free-form tool output. It tries
// the whole output, then a fenced code block, then the span from the first
// '{' to the last '}'.
func ExtractJSON(output string) ([]byte, error) {
	candidates := []string{strings.TrimSpace(output)}
	if m := fencedJSON.FindStringSubmatch(output); m != nil {
		candidates = append(candidates, m[1])
	}
	if first, last := strings.Index(output, "{"), strings.LastIndex(output, "}"); first != -1 && last > first {
		candidates = append(candidates, output[first:last+1])
	}

	for _, c := range candidates {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(c), &obj); err == nil {
			return []byte(c), nil
		}
	}
	return nil, ErrNoJSON
}

// Validate checks raw against the decision schema, decodes it and applies
// the decision's own rules, which also reject reasons made of Unicode spaces
func Validate(raw []byte) (*models.Decision, error) {
	s, err := decisionSchema()
	if err != nil {
		return nil, fmt.Errorf("load decision schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("decision does not match schema: %s", strings.Join(msgs, "; "))
	}

	var d models.Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decision: %w", err)
	}
	return &d, nil
}

// ParseDecision extracts and validates a decision from tool output
func ParseDecision(output string) (*models.Decision, error) {
	raw, err := ExtractJSON(output)
	if err != nil {
		return nil, err
	}
	return Validate(raw)
}
