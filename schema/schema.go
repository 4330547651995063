// Package schema holds the JSON Schema subset the tool catalogue needs to
// describe its inputs to the model: flat objects of scalar and string-array
// parameters.
package schema

// Schema is the input contract of one tool.
type Schema struct {
	Type       string               `json:"type"`
	Properties map[string]*Property `json:"properties"`
	Required   []string             `json:"required,omitempty"`
}

// Property describes a single tool parameter. Items is set for array
// parameters and describes the element type.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Items       *Property `json:"items,omitempty"`
}
