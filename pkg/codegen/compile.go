package codegen

import (
	"fmt"
	"sort"
	"strings"

	"weave/pkg/flow"
)

// Compile derives executable source from a snapshot. It is a pure function:
// identical (nodes, edges, options) always yield byte-identical output.
// Warnings are advisory and never empty the result; only an unresolved
// cycle excludes its node subset from emission.
func Compile(snap flow.Snapshot, opts Options) Generated {
	nodes := make(map[string]*flow.Node, len(snap.Nodes))
	order := make([]*flow.Node, 0, len(snap.Nodes))
	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		nodes[n.ID] = n
		order = append(order, n)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Seq != order[j].Seq {
			return order[i].Seq < order[j].Seq
		}
		return order[i].ID < order[j].ID
	})

	gen := Generated{
		ExecutionOrder: []string{},
		Inputs:         []string{},
		Outputs:        []string{},
		Warnings:       []string{},
	}

	topo, cyclic := topoSort(order, snap.Edges)
	if len(cyclic) > 0 {
		ids := make([]string, len(cyclic))
		for i, n := range cyclic {
			ids[i] = n.ID
		}
		gen.Warnings = append(gen.Warnings,
			fmt.Sprintf("unresolved cycle involving nodes: %s", strings.Join(ids, ", ")))
	}
	for _, n := range topo {
		gen.ExecutionOrder = append(gen.ExecutionOrder, n.ID)
	}

	e := newEmitter(nodes, topo, snap.Edges, opts)
	gen.Code = e.emit()
	gen.Inputs = e.inputs
	gen.Outputs = e.outputs
	gen.Warnings = append(gen.Warnings, collectWarnings(order, topo, snap.Edges, nodes)...)

	return gen
}

// topoSort runs Kahn's algorithm over the forward adjacency. Ties among
// simultaneously-eligible nodes are broken by creation sequence so the
// order is stable. Nodes left with a nonzero indegree form the cyclic
// remainder and are returned separately, in creation order.
func topoSort(order []*flow.Node, edges []flow.Edge) (sorted, cyclic []*flow.Node) {
	indegree := make(map[string]int, len(order))
	next := make(map[string][]string, len(order))
	for _, n := range order {
		indegree[n.ID] = 0
	}
	for _, e := range edges {
		if _, ok := indegree[e.Target.NodeID]; !ok {
			continue
		}
		if _, ok := indegree[e.Source.NodeID]; !ok {
			continue
		}
		indegree[e.Target.NodeID]++
		next[e.Source.NodeID] = append(next[e.Source.NodeID], e.Target.NodeID)
	}

	byID := make(map[string]*flow.Node, len(order))
	for _, n := range order {
		byID[n.ID] = n
	}

	done := make(map[string]bool, len(order))
	for len(sorted) < len(order) {
		var pick *flow.Node
		for _, n := range order {
			if done[n.ID] || indegree[n.ID] != 0 {
				continue
			}
			pick = n
			break
		}
		if pick == nil {
			break
		}
		done[pick.ID] = true
		sorted = append(sorted, pick)
		for _, target := range next[pick.ID] {
			indegree[target]--
		}
	}

	for _, n := range order {
		if !done[n.ID] {
			cyclic = append(cyclic, n)
		}
	}
	return sorted, cyclic
}

// collectWarnings gathers the advisory findings of a compilation: input
// slots with neither a connection nor a default, output slots nothing
// consumes, duplicate labels, and nodes that cannot reach any output node.
func collectWarnings(order, topo []*flow.Node, edges []flow.Edge, nodes map[string]*flow.Node) []string {
	warnings := []string{}

	hasIncoming := make(map[flow.Endpoint]bool, len(edges))
	hasOutgoing := make(map[flow.Endpoint]bool, len(edges))
	for _, e := range edges {
		hasIncoming[e.Target] = true
		hasOutgoing[e.Source] = true
	}

	for _, n := range order {
		for _, s := range n.Inputs {
			if hasIncoming[flow.Endpoint{NodeID: n.ID, SlotID: s.ID}] {
				continue
			}
			if s.Default != "" {
				continue
			}
			warnings = append(warnings,
				fmt.Sprintf("node %q input %q is not connected and has no default", n.Label, s.Label))
		}
	}

	for _, n := range order {
		for _, s := range n.Outputs {
			if hasOutgoing[flow.Endpoint{NodeID: n.ID, SlotID: s.ID}] {
				continue
			}
			warnings = append(warnings,
				fmt.Sprintf("node %q output %q is never consumed", n.Label, s.Label))
		}
	}

	seen := make(map[string]bool, len(order))
	for _, n := range order {
		if n.Label == "" {
			continue
		}
		if seen[n.Label] {
			warnings = append(warnings, fmt.Sprintf("duplicate node label %q", n.Label))
			continue
		}
		seen[n.Label] = true
	}

	warnings = append(warnings, deadCodeWarnings(order, edges, nodes)...)
	return warnings
}

// deadCodeWarnings flags nodes with no path to any output node. Notes,
// debug taps and the output nodes themselves are exempt: they are sinks by
// construction. No warning is raised when the graph declares no outputs.
func deadCodeWarnings(order []*flow.Node, edges []flow.Edge, nodes map[string]*flow.Node) []string {
	outputs := make([]string, 0)
	for _, n := range order {
		if n.Category == flow.CategoryUtility && n.Payload.Utility == flow.UtilityOutput {
			outputs = append(outputs, n.ID)
		}
	}
	if len(outputs) == 0 {
		return nil
	}

	// Walk edges backwards from every output node.
	prev := make(map[string][]string, len(order))
	for _, e := range edges {
		prev[e.Target.NodeID] = append(prev[e.Target.NodeID], e.Source.NodeID)
	}
	reaches := make(map[string]bool, len(order))
	stack := outputs
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reaches[id] {
			continue
		}
		reaches[id] = true
		stack = append(stack, prev[id]...)
	}

	warnings := []string{}
	for _, n := range order {
		if reaches[n.ID] {
			continue
		}
		if n.Category == flow.CategoryUtility {
			switch n.Payload.Utility {
			case flow.UtilityNote, flow.UtilityDebug, flow.UtilityOutput:
				continue
			}
		}
		warnings = append(warnings, fmt.Sprintf("node %q has no path to any output", n.Label))
	}
	return warnings
}
