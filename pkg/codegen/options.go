// Package codegen turns a committed composition snapshot into ordered,
// executable Python source plus its inputs, outputs and advisory warnings.
package codegen

// Options controls source emission. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	// Comments toggles emitted comments, including note nodes.
	Comments bool `json:"comments"`
	// Indent is the indentation unit.
	Indent string `json:"indent"`
	// TypeHints toggles parameter and return annotations.
	TypeHints bool `json:"type_hints"`
	// Async selects the asynchronous calling convention.
	Async bool `json:"async"`
}

// DefaultOptions is the editor's default emission configuration.
func DefaultOptions() Options {
	return Options{
		Comments:  true,
		Indent:    "    ",
		TypeHints: false,
		Async:     false,
	}
}

func (o Options) indent() string {
	if o.Indent == "" {
		return "    "
	}
	return o.Indent
}

// Generated is the immutable result of one compilation. It is recomputed
// wholesale on every graph change, never patched incrementally.
type Generated struct {
	Code           string   `json:"code"`
	ExecutionOrder []string `json:"execution_order"`
	Inputs         []string `json:"inputs"`
	Outputs        []string `json:"outputs"`
	Warnings       []string `json:"warnings"`
}
