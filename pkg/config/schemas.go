package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Built-in schema names.
const (
	SchemaProblem = "problem"
	SchemaPlan    = "plan"
)

type schema struct {
	root       cue.Value
	definition string
}

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]schema
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	return newSchemaRegistry(cuecontext.New())
}

func newSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]schema),
	}
	sr.registerBuiltInSchemas()
	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	for name, def := range map[string]struct{ src, def string }{
		SchemaProblem: {builtinProblemSchema, "#Problem"},
		SchemaPlan:    {builtinPlanSchema, "#Plan"},
	} {
		if err := sr.RegisterSchema(name, def.src, def.def); err != nil {
			panic(fmt.Sprintf("built-in schema %s: %v", name, err))
		}
	}
}

// RegisterSchema compiles a CUE schema and registers definition as its entry point.
func (sr *SchemaRegistry) RegisterSchema(name, src, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(src, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	if !val.LookupPath(cue.ParsePath(definition)).Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, definition)
	}

	sr.schemas[name] = schema{root: val, definition: definition}
	return nil
}

// GetSchema returns the entry definition of a schema.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	s, ok := sr.schemas[name]
	if !ok {
		return cue.Value{}, false
	}
	return s.root.LookupPath(cue.ParsePath(s.definition)), true
}

// Unify unifies val with a named schema and checks the result is concrete.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	def, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}
	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinProblemSchema = `
#Ident: =~"^[A-Za-z_][A-Za-z0-9_-]*$"

#Scalar: bool | number | string

#Param: {
	name: #Ident
	type: #Ident
}

#Problem: {
	name: string & !=""

	types?: [...{
		name:    #Ident
		parent?: #Ident
	}]

	// type is bool, int, real, int[lo, hi], real[lo, hi] or a user type
	fluents?: [...{
		name:     #Ident
		type:     string
		params?:  [...#Param]
		default?: #Scalar
	}]

	objects?: [...{
		name: #Ident
		type: #Ident
	}]

	actions?: [...{
		name:           #Ident
		params?:        [...#Param]
		preconditions?: [...string]
		effects?: [...{
			fluent:     string
			value:      #Scalar
			condition?: string
			kind?:      "assign" | "increase" | "decrease"
		}]
	}]

	init?: [...{
		fluent: string
		value:  #Scalar
	}]

	goals?: [...string]
}
`

const builtinPlanSchema = `
#Plan: {
	actions: [...{
		action:  string & !=""
		params?: [...string]
	}]
}
`
