package config

import (
	"os"
	"path/filepath"
	"testing"
)

const robotYAML = `
name: robot
types:
  - name: Location
fluents:
  - name: robot_at
    type: bool
    params: [{name: position, type: Location}]
    default: false
  - name: connected
    type: bool
    params: [{name: l_from, type: Location}, {name: l_to, type: Location}]
    default: false
objects:
  - {name: l0, type: Location}
  - {name: l1, type: Location}
actions:
  - name: move
    params: [{name: l_from, type: Location}, {name: l_to, type: Location}]
    preconditions: ["(robot_at ?l_from)", "(connected ?l_from ?l_to)"]
    effects:
      - {fluent: "(robot_at ?l_from)", value: false}
      - {fluent: "(robot_at ?l_to)", value: true}
init:
  - {fluent: "(robot_at l0)", value: true}
  - {fluent: "(connected l0 l1)", value: true}
goals: ["(robot_at l1)"]
`

const robotCUE = `
name: "robot"
types: [{name: "Location"}]
fluents: [{
	name: "robot_at"
	type: "bool"
	params: [{name: "position", type: "Location"}]
	default: false
}]
objects: [for i in [0, 1] {name: "l\(i)", type: "Location"}]
actions: [{
	name: "jump"
	params: [{name: "to", type: "Location"}]
	effects: [{fluent: "(robot_at ?to)", value: true}]
}]
goals: ["(robot_at l1)"]
`

const robotStarlark = `
locations = names("l", 3)

problem = {
    "name": "robot",
    "types": [{"name": "Location"}],
    "fluents": [
        {"name": "robot_at", "type": "bool", "params": [{"name": "position", "type": "Location"}], "default": False},
        {"name": "connected", "type": "bool", "params": [{"name": "l_from", "type": "Location"}, {"name": "l_to", "type": "Location"}], "default": False},
    ],
    "objects": [{"name": l, "type": "Location"} for l in locations],
    "actions": [{
        "name": "move",
        "params": [{"name": "l_from", "type": "Location"}, {"name": "l_to", "type": "Location"}],
        "preconditions": [sexpr("robot_at", "?l_from"), sexpr("connected", "?l_from", "?l_to")],
        "effects": [
            {"fluent": sexpr("robot_at", "?l_from"), "value": False},
            {"fluent": sexpr("robot_at", "?l_to"), "value": True},
        ],
    }],
    "init": [{"fluent": sexpr("robot_at", "l0"), "value": True}] + [
        {"fluent": sexpr("connected", locations[i], locations[i + 1]), "value": True}
        for i in range(len(locations) - 1)
    ],
    "goals": [sexpr("robot_at", locations[-1])],
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}
