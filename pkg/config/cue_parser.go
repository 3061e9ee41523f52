package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// CUEParser parses CUE documents and validates them against the built-in schemas.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	return &CUEParser{
		ctx:            ctx,
		schemaRegistry: newSchemaRegistry(ctx),
	}
}

// ParseProblem parses a CUE file or a directory holding a CUE package into a
// problem document. The document may sit at the root or under a "problem" field.
func (cp *CUEParser) ParseProblem(ctx context.Context, path string) (*ProblemDocument, error) {
	val, err := cp.load(path)
	if err != nil {
		return nil, err
	}
	var doc ProblemDocument
	if err := cp.decode(val, SchemaProblem, "problem", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParsePlan parses a CUE plan document.
func (cp *CUEParser) ParsePlan(ctx context.Context, path string) (*PlanDocument, error) {
	val, err := cp.load(path)
	if err != nil {
		return nil, err
	}
	var doc PlanDocument
	if err := cp.decode(val, SchemaPlan, "plan", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseInline parses inline CUE content into a problem document.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ProblemDocument, error) {
	val := cp.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return nil, cp.convertCUEErrors(err)
	}
	var doc ProblemDocument
	if err := cp.decode(val, SchemaProblem, "problem", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (cp *CUEParser) load(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to stat source %s: %w", path, err)
	}
	if info.IsDir() {
		return cp.loadDirectory(path)
	}
	return cp.loadFile(path)
}

// loadDirectory loads a directory as a CUE package.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, error) {
	// absolute paths are not valid import paths, so load "." relative to dir
	buildInstances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(buildInstances) == 0 {
		return cue.Value{}, ValidationErrors{{File: dir, Message: "no CUE files found", Severity: "error"}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, cp.convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}
	return val, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read file: %w", err)
	}

	val := cp.ctx.CompileBytes(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}
	return val, nil
}

// decode validates val, or its field named field when present, against a
// schema and decodes the exported JSON into target.
func (cp *CUEParser) decode(val cue.Value, schemaName, field string, target interface{}) error {
	if sub := val.LookupPath(cue.ParsePath(field)); sub.Exists() {
		val = sub
	}

	unified, err := cp.schemaRegistry.Unify(schemaName, val)
	if err != nil {
		return cp.convertCUEErrors(err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", schemaName, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", schemaName, err)
	}
	return nil
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func (cp *CUEParser) convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}
