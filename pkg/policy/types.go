package policy

// Query is the rule evaluated for every candidate engine.
const Query = "data.planforge.selection.deny"

// Policy is one Rego module.
type Policy struct {
	// Name identifies the module, the file name without extension.
	Name string `json:"name"`

	// Description is taken from the leading comment block.
	Description string `json:"description,omitempty"`

	Rego string `json:"rego"`

	// Source is the path the module was read from.
	Source string `json:"source,omitempty"`
}
