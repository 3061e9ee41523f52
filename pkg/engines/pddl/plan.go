package pddl

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/openfroyo/planforge/pkg/engine"
	"github.com/openfroyo/planforge/pkg/model"
)

// stepLine matches "(move l0 l1)", "0: (move l0 l1) [1]" and
// "0.001: (move l0 l1) [1.000]".
var stepLine = regexp.MustCompile(`^(?:\d+(?:\.\d+)?\s*:\s*)?\(\s*([^()\s]+)((?:\s+[^()\s]+)*)\s*\)\s*(?:\[\s*\d+(?:\.\d+)?\s*\])?$`)

// stepStart recognizes lines that claim to be plan steps in noisy output.
var stepStart = regexp.MustCompile(`^(?:\d+(?:\.\d+)?\s*:\s*)?\(`)

// ParsePlan reads plan steps from planner output. In strict mode, for plan
// files, every line that is not blank or a ';' comment must be a step; in
// lenient mode, for standard output, lines that do not start like a step
// are skipped. It returns the number of steps found.
func ParsePlan(name string, text string, names *Names, strict bool) (*model.SequentialPlan, int, error) {
	var steps []*model.ActionInstance

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Text()
		content := raw
		if i := strings.IndexByte(content, ';'); i >= 0 {
			content = content[:i]
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		if !strict && !stepStart.MatchString(content) {
			continue
		}

		fail := func(err error) error {
			return &engine.ResultParsingError{Engine: name, Line: line, Output: raw, Err: err}
		}

		m := stepLine.FindStringSubmatch(content)
		if m == nil {
			return nil, 0, fail(fmt.Errorf("expected a plan step"))
		}
		a, ok := names.Action(m[1])
		if !ok {
			return nil, 0, fail(fmt.Errorf("unknown action %q", m[1]))
		}
		var params []*model.Object
		for _, arg := range strings.Fields(m[2]) {
			o, ok := names.Object(arg)
			if !ok {
				return nil, 0, fail(fmt.Errorf("unknown object %q", arg))
			}
			params = append(params, o)
		}
		ai, err := model.NewActionInstance(a, params...)
		if err != nil {
			return nil, 0, fail(err)
		}
		steps = append(steps, ai)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, &engine.ResultParsingError{Engine: name, Line: line + 1, Err: err}
	}
	return model.NewSequentialPlan(steps...), len(steps), nil
}
