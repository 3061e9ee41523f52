package config

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/planforge/pkg/model"
)

var validate = validator.New()

// DecodeProblemDocument decodes and validates a YAML or JSON problem document.
func DecodeProblemDocument(data []byte, format Format) (*ProblemDocument, error) {
	var doc ProblemDocument
	if err := decodeStrict(data, format, &doc); err != nil {
		return nil, err
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("invalid problem document: %w", err)
	}
	return &doc, nil
}

// DecodePlanDocument decodes and validates a YAML or JSON plan document.
func DecodePlanDocument(data []byte, format Format) (*PlanDocument, error) {
	var doc PlanDocument
	if err := decodeStrict(data, format, &doc); err != nil {
		return nil, err
	}
	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("invalid plan document: %w", err)
	}
	return &doc, nil
}

// decodeStrict rejects unknown fields.
func decodeStrict(data []byte, format Format, target interface{}) error {
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(target); err != nil {
			return fmt.Errorf("failed to decode JSON: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(target); err != nil {
			return fmt.Errorf("failed to decode YAML: %w", err)
		}
	default:
		return fmt.Errorf("format %s cannot be decoded from bytes", format)
	}
	return nil
}

// ParsePlanText parses a plan written one action instance per line, as
// "move(l0, l1)" or "move l0 l1". Blank lines and lines starting with ';'
// or '#' are ignored.
func ParsePlanText(data []byte) (*PlanDocument, error) {
	doc := &PlanDocument{Actions: []PlanStepDecl{}}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, ";") || strings.HasPrefix(text, "#") {
			continue
		}

		var fields []string
		if open := strings.IndexByte(text, '('); open >= 0 {
			if !strings.HasSuffix(text, ")") {
				return nil, fmt.Errorf("line %d: unbalanced parentheses in %q", line, text)
			}
			fields = append(fields, strings.TrimSpace(text[:open]))
			for _, arg := range strings.Split(text[open+1:len(text)-1], ",") {
				if arg = strings.TrimSpace(arg); arg != "" {
					fields = append(fields, arg)
				}
			}
		} else {
			fields = strings.Fields(text)
		}
		if fields[0] == "" {
			return nil, fmt.Errorf("line %d: missing action name", line)
		}
		doc.Actions = append(doc.Actions, PlanStepDecl{Action: fields[0], Params: fields[1:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Loader reads problem and plan documents in every supported format.
type Loader struct {
	cue      *CUEParser
	starlark *StarlarkEvaluator
}

// NewLoader creates a loader. starlarkTimeout bounds problem scripts.
func NewLoader(starlarkTimeout time.Duration) *Loader {
	return &Loader{
		cue:      NewCUEParser(),
		starlark: NewStarlarkEvaluator(starlarkTimeout),
	}
}

// LoadProblemDocument reads a problem document. A directory is loaded as a
// CUE package.
func (l *Loader) LoadProblemDocument(ctx context.Context, path string) (*ProblemDocument, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return l.cue.ParseProblem(ctx, path)
	}

	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatCUE:
		doc, err := l.cue.ParseProblem(ctx, path)
		if err != nil {
			return nil, err
		}
		if err := validate.Struct(doc); err != nil {
			return nil, fmt.Errorf("invalid problem document: %w", err)
		}
		return doc, nil
	case FormatStarlark:
		script, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return l.starlark.EvaluateProblem(ctx, path, string(script), nil)
	case FormatYAML, FormatJSON:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err := DecodeProblemDocument(data, format)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return doc, nil
	}
	return nil, fmt.Errorf("%s: %s is not a problem format", path, format)
}

// LoadProblem reads a problem document and builds the problem.
func (l *Loader) LoadProblem(ctx context.Context, path string) (*model.Problem, error) {
	doc, err := l.LoadProblemDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	p, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadPlan reads a plan document and resolves it against p.
func (l *Loader) LoadPlan(ctx context.Context, path string, p *model.Problem) (*model.SequentialPlan, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	var doc *PlanDocument
	switch format {
	case FormatCUE:
		doc, err = l.cue.ParsePlan(ctx, path)
	case FormatYAML, FormatJSON, FormatText:
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if format == FormatText {
			doc, err = ParsePlanText(data)
		} else {
			doc, err = DecodePlanDocument(data, format)
		}
	default:
		return nil, fmt.Errorf("%s: %s is not a plan format", path, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	plan, err := doc.Build(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

// EncodeProblemDocument renders a document in YAML or JSON.
func EncodeProblemDocument(doc *ProblemDocument, format Format) ([]byte, error) {
	return encode(doc, format)
}

// EncodePlanDocument renders a plan document in YAML or JSON.
func EncodePlanDocument(doc *PlanDocument, format Format) ([]byte, error) {
	return encode(doc, format)
}

func encode(v interface{}, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(v, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("format %s cannot be encoded", format)
}
