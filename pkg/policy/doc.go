// Package policy admits or denies engines during selection with Open Policy
// Agent (OPA) Rego policies.
//
// Every candidate engine is evaluated against the query
// data.planforge.selection.deny with the candidate as input:
//
//	{
//	  "engine":   "fd",
//	  "priority": 20,
//	  "source":   "/etc/planforge/engines/fd.yaml",
//	  "mode":     "oneshot_planner",
//	  "kind":     ["ACTION_BASED", "FLAT_TYPING"],
//	  "explicit": false,
//	  "params":   {"search": "lama"}
//	}
//
// Each element of the deny set is a reason, either a string or an object
// with a "message" field. A candidate with no reasons is admitted.
//
//	package planforge.selection
//
//	import rego.v1
//
//	deny contains msg if {
//	    startswith(input.source, "/tmp/")
//	    msg := sprintf("engine %s is declared in a temporary directory", [input.engine])
//	}
//
// Policies are loaded from .rego files or directories of them. All modules
// are compiled together so several files may contribute to the deny set.
package policy
