package codegen

import (
	"fmt"
	"strings"

	"weave/pkg/flow"
)

// helperOrder fixes the import order of runtime helpers so emission stays
// byte-stable regardless of which node introduced a helper first.
var helperOrder = []string{"run_program", "run_model", "merge", "map_values", "filter_values", "debug"}

var pythonKeywords = map[string]bool{
	"and": true, "as": true, "assert": true, "async": true, "await": true,
	"break": true, "class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true,
	"pass": true, "raise": true, "return": true, "try": true, "while": true,
	"with": true, "yield": true, "None": true, "True": true, "False": true,
}

type emitter struct {
	nodes   map[string]*flow.Node
	topo    []*flow.Node
	edges   []flow.Edge
	opts    Options
	vars    map[string]string
	depth   map[string]int
	owner   map[string]string
	helpers map[string]bool
	inputs  []string
	outputs []string
	returns []string
	body    []string
}

func newEmitter(nodes map[string]*flow.Node, topo []*flow.Node, edges []flow.Edge, opts Options) *emitter {
	return &emitter{
		nodes:   nodes,
		topo:    topo,
		edges:   edges,
		opts:    opts,
		vars:    make(map[string]string, len(topo)),
		depth:   make(map[string]int, len(topo)),
		owner:   make(map[string]string, len(topo)),
		helpers: make(map[string]bool),
		inputs:  []string{},
		outputs: []string{},
	}
}

func (e *emitter) emit() string {
	e.assignVars()
	e.computeDepths()
	children := make(map[string][]*flow.Node, len(e.topo))
	for _, n := range e.topo {
		children[e.owner[n.ID]] = append(children[e.owner[n.ID]], n)
	}
	e.emitGroup(children, children[""])

	var b strings.Builder
	if e.opts.Comments {
		b.WriteString("# Code generated by weave. Do not edit by hand.\n")
	}
	for _, line := range e.importLines() {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if e.opts.Comments || len(e.importLines()) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(e.signature())
	b.WriteString("\n")

	indent := e.opts.indent()
	if len(e.body) == 0 && len(e.returns) == 0 {
		b.WriteString(indent)
		b.WriteString("pass\n")
		return b.String()
	}
	for _, line := range e.body {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(indent)
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(e.returns) > 0 {
		b.WriteString(indent)
		b.WriteString("return ")
		b.WriteString(strings.Join(e.returns, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

// assignVars gives every node a unique Python identifier derived from its
// label, falling back to its sequence number. Assignment walks the
// topological order, which is itself stable, so names are deterministic.
func (e *emitter) assignVars() {
	taken := make(map[string]bool)
	for _, n := range e.topo {
		base := n.Label
		if n.Category == flow.CategoryUtility && n.Payload.Utility == flow.UtilityInput && len(n.Outputs) > 0 {
			base = n.Outputs[0].Label
		}
		name := sanitizeIdent(base)
		if name == "" {
			name = fmt.Sprintf("node_%d", n.Seq)
		}
		unique := name
		for i := 2; taken[unique]; i++ {
			unique = fmt.Sprintf("%s_%d", name, i)
		}
		taken[unique] = true
		e.vars[n.ID] = unique
	}
}

// isBlock reports whether a node opens an indented block in the emitted
// source.
func isBlock(n *flow.Node) bool {
	return n.Category == flow.CategoryPrimitive &&
		(n.Payload.Primitive == flow.PrimitiveLoop || n.Payload.Primitive == flow.PrimitiveConditional)
}

// computeDepths nests a node one level deeper for every loop or conditional
// primitive among its upstream chain, so block constructs wrap their
// downstream-connected nodes. Alongside the depth it records the block that
// owns each nested node, so emission can keep a block's members contiguous
// with its header.
func (e *emitter) computeDepths() {
	for _, n := range e.topo {
		depth := 0
		owner := ""
		for _, edge := range e.edges {
			if edge.Target.NodeID != n.ID {
				continue
			}
			src, ok := e.nodes[edge.Source.NodeID]
			if !ok {
				continue
			}
			d := e.depth[src.ID]
			o := e.owner[src.ID]
			if isBlock(src) {
				d++
				o = src.ID
			}
			if d > depth {
				depth = d
				owner = o
			}
		}
		e.depth[n.ID] = depth
		e.owner[n.ID] = owner
	}
}

// emitGroup writes one nesting level. A block's members follow its header
// directly, and a block that ends up wrapping no statement still gets a
// body.
func (e *emitter) emitGroup(children map[string][]*flow.Node, members []*flow.Node) {
	for _, n := range e.orderUnits(members) {
		e.emitNode(n)
		if !isBlock(n) {
			continue
		}
		before := len(e.body)
		e.emitGroup(children, children[n.ID])
		if len(e.body) == before {
			e.body = append(e.body, strings.Repeat(e.opts.indent(), e.depth[n.ID]+1)+"pass")
		}
	}
}

// orderUnits orders the members of one nesting level so that every unit (a
// plain node, or a block header together with everything nested under it)
// comes after the units it reads from. Ties keep topological order, which
// itself ties on creation sequence.
func (e *emitter) orderUnits(members []*flow.Node) []*flow.Node {
	if len(members) < 2 {
		return members
	}
	memberIdx := make(map[string]int, len(members))
	for i, m := range members {
		memberIdx[m.ID] = i
	}
	// Map every node to the member whose subtree contains it.
	unit := make(map[string]string, len(e.topo))
	for _, n := range e.topo {
		id := n.ID
		for id != "" {
			if _, ok := memberIdx[id]; ok {
				unit[n.ID] = id
				break
			}
			id = e.owner[id]
		}
	}

	indeg := make([]int, len(members))
	deps := make([][]int, len(members))
	seen := make(map[[2]int]bool)
	for _, edge := range e.edges {
		su, sok := unit[edge.Source.NodeID]
		tu, tok := unit[edge.Target.NodeID]
		if !sok || !tok || su == tu {
			continue
		}
		key := [2]int{memberIdx[su], memberIdx[tu]}
		if seen[key] {
			continue
		}
		seen[key] = true
		deps[key[0]] = append(deps[key[0]], key[1])
		indeg[key[1]]++
	}

	ordered := make([]*flow.Node, 0, len(members))
	emitted := make([]bool, len(members))
	for len(ordered) < len(members) {
		next := -1
		for i := range members {
			if !emitted[i] && indeg[i] <= 0 {
				next = i
				break
			}
		}
		if next == -1 {
			// Units that read across each other cannot all be contiguous;
			// fall back to topological position for the remainder.
			for i := range members {
				if !emitted[i] {
					next = i
					break
				}
			}
		}
		emitted[next] = true
		ordered = append(ordered, members[next])
		for _, d := range deps[next] {
			indeg[d]--
		}
	}
	return ordered
}

func (e *emitter) emitNode(n *flow.Node) {
	switch n.Category {
	case flow.CategoryProgram:
		e.emitInvocation(n, "run_program")
	case flow.CategoryModel:
		e.emitInvocation(n, "run_model")
	case flow.CategoryPrimitive:
		e.emitPrimitive(n)
	case flow.CategoryUtility:
		e.emitUtility(n)
	}
}

func (e *emitter) emitInvocation(n *flow.Node, helper string) {
	e.helpers[helper] = true
	assetID, version := "", ""
	if n.Payload.Asset != nil {
		assetID = n.Payload.Asset.AssetID
		version = n.Payload.Asset.Version
	}
	call := fmt.Sprintf("%s(%q, version=%q)(%s)", helper, assetID, version, strings.Join(e.args(n), ", "))
	if e.opts.Async {
		call = "await " + call
	}
	e.writeLine(n, fmt.Sprintf("%s = %s", e.vars[n.ID], call))
}

func (e *emitter) emitPrimitive(n *flow.Node) {
	args := e.args(n)
	first := "None"
	if len(args) > 0 {
		first = args[0]
	}
	switch n.Payload.Primitive {
	case flow.PrimitiveLoop:
		e.writeLine(n, fmt.Sprintf("for %s in %s:", e.vars[n.ID], first))
	case flow.PrimitiveConditional:
		e.writeLine(n, fmt.Sprintf("if %s:", first))
		// Downstream consumers read the tested value through this node.
		e.vars[n.ID] = first
	case flow.PrimitiveMerge:
		e.helpers["merge"] = true
		e.writeLine(n, fmt.Sprintf("%s = merge(%s)", e.vars[n.ID], strings.Join(args, ", ")))
	case flow.PrimitiveMap:
		e.helpers["map_values"] = true
		e.writeLine(n, fmt.Sprintf("%s = map_values(%s)", e.vars[n.ID], strings.Join(args, ", ")))
	case flow.PrimitiveFilter:
		e.helpers["filter_values"] = true
		e.writeLine(n, fmt.Sprintf("%s = filter_values(%s)", e.vars[n.ID], strings.Join(args, ", ")))
	}
}

func (e *emitter) emitUtility(n *flow.Node) {
	switch n.Payload.Utility {
	case flow.UtilityInput:
		// Declares a composition parameter; no statement.
		for _, s := range n.Outputs {
			e.inputs = append(e.inputs, s.Label)
		}
	case flow.UtilityOutput:
		args := e.args(n)
		for _, s := range n.Inputs {
			e.outputs = append(e.outputs, s.Label)
		}
		e.returns = append(e.returns, args...)
	case flow.UtilityConstant:
		value := n.Payload.Value
		if value == "" {
			value = "None"
		}
		e.writeLine(n, fmt.Sprintf("%s = %s", e.vars[n.ID], value))
	case flow.UtilityDebug:
		e.helpers["debug"] = true
		e.writeLine(n, fmt.Sprintf("debug(%s)", strings.Join(e.args(n), ", ")))
	case flow.UtilityNote:
		if !e.opts.Comments {
			return
		}
		for _, line := range strings.Split(n.Payload.Text, "\n") {
			e.writeLine(n, "# "+line)
		}
	}
}

// args resolves one argument per input slot, in slot order: the producing
// node's variable when connected, the slot default when declared, else None.
func (e *emitter) args(n *flow.Node) []string {
	args := make([]string, 0, len(n.Inputs))
	for _, s := range n.Inputs {
		arg := ""
		for _, edge := range e.edges {
			if edge.Target.NodeID == n.ID && edge.Target.SlotID == s.ID {
				if v, ok := e.vars[edge.Source.NodeID]; ok {
					arg = v
				}
				break
			}
		}
		if arg == "" {
			arg = s.Default
		}
		if arg == "" {
			arg = "None"
		}
		args = append(args, arg)
	}
	return args
}

func (e *emitter) writeLine(n *flow.Node, line string) {
	prefix := strings.Repeat(e.opts.indent(), e.depth[n.ID])
	e.body = append(e.body, prefix+line)
}

func (e *emitter) importLines() []string {
	used := make([]string, 0, len(e.helpers))
	for _, h := range helperOrder {
		if e.helpers[h] {
			used = append(used, h)
		}
	}
	lines := []string{}
	if e.opts.TypeHints {
		lines = append(lines, "from typing import Any")
	}
	if len(used) > 0 {
		lines = append(lines, "from weave_runtime import "+strings.Join(used, ", "))
	}
	return lines
}

func (e *emitter) signature() string {
	params := make([]string, 0, len(e.inputs))
	for _, p := range e.inputs {
		name := sanitizeIdent(p)
		if name == "" {
			name = "value"
		}
		if e.opts.TypeHints {
			name += ": Any"
		}
		params = append(params, name)
	}
	def := "def"
	if e.opts.Async {
		def = "async def"
	}
	sig := fmt.Sprintf("%s composition(%s)", def, strings.Join(params, ", "))
	if e.opts.TypeHints {
		sig += " -> Any"
	}
	return sig + ":"
}

// sanitizeIdent lowers a display label into a valid Python identifier.
func sanitizeIdent(label string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "n_" + name
	}
	if pythonKeywords[name] {
		name += "_"
	}
	return name
}
