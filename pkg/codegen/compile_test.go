package codegen

import (
	"reflect"
	"strings"
	"testing"

	"weave/pkg/flow"
)

// linearSnapshot is the canonical input -> program -> output pipeline.
func linearSnapshot() flow.Snapshot {
	return flow.Snapshot{
		Nodes: []flow.Node{
			{
				ID:       "n1",
				Label:    "Input",
				Category: flow.CategoryUtility,
				Payload:  flow.Payload{Utility: flow.UtilityInput},
				Outputs:  []flow.Slot{{ID: "out", Label: "Value"}},
				Seq:      0,
			},
			{
				ID:       "n2",
				Label:    "Process",
				Category: flow.CategoryProgram,
				Payload:  flow.Payload{Asset: &flow.AssetRef{AssetID: "prog", Version: "1"}},
				Inputs:   []flow.Slot{{ID: "in", Label: "In"}},
				Outputs:  []flow.Slot{{ID: "out", Label: "Out"}},
				Seq:      1,
			},
			{
				ID:       "n3",
				Label:    "Output",
				Category: flow.CategoryUtility,
				Payload:  flow.Payload{Utility: flow.UtilityOutput},
				Inputs:   []flow.Slot{{ID: "in", Label: "Result"}},
				Seq:      2,
			},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: flow.Endpoint{NodeID: "n1", SlotID: "out"}, Target: flow.Endpoint{NodeID: "n2", SlotID: "in"}},
			{ID: "e2", Source: flow.Endpoint{NodeID: "n2", SlotID: "out"}, Target: flow.Endpoint{NodeID: "n3", SlotID: "in"}},
		},
	}
}

func TestCompileLinearPipeline(t *testing.T) {
	t.Parallel()

	gen := Compile(linearSnapshot(), DefaultOptions())

	wantOrder := []string{"n1", "n2", "n3"}
	if !reflect.DeepEqual(gen.ExecutionOrder, wantOrder) {
		t.Fatalf("got order %v, want %v", gen.ExecutionOrder, wantOrder)
	}
	if !reflect.DeepEqual(gen.Inputs, []string{"Value"}) {
		t.Fatalf("got inputs %v, want [Value]", gen.Inputs)
	}
	if !reflect.DeepEqual(gen.Outputs, []string{"Result"}) {
		t.Fatalf("got outputs %v, want [Result]", gen.Outputs)
	}
	if len(gen.Warnings) != 0 {
		t.Fatalf("got warnings %v, want none", gen.Warnings)
	}

	wantCode := "# Code generated by weave. Do not edit by hand.\n" +
		"from weave_runtime import run_program\n" +
		"\n" +
		"def composition(value):\n" +
		"    process = run_program(\"prog\", version=\"1\")(value)\n" +
		"    return process\n"
	if gen.Code != wantCode {
		t.Fatalf("code mismatch:\n got:\n%s\nwant:\n%s", gen.Code, wantCode)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	t.Parallel()

	snap := linearSnapshot()
	first := Compile(snap, DefaultOptions())
	for i := 0; i < 10; i++ {
		again := Compile(snap, DefaultOptions())
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("compilation %d differs from the first", i)
		}
	}
}

func TestCompileRespectsEdgeOrder(t *testing.T) {
	t.Parallel()

	// A diamond with deliberately shuffled node sequence numbers.
	snap := flow.Snapshot{
		Nodes: []flow.Node{
			{ID: "top", Label: "Top", Category: flow.CategoryProgram, Outputs: []flow.Slot{{ID: "out", Label: "Out"}}, Seq: 3},
			{ID: "left", Label: "Left", Category: flow.CategoryProgram, Inputs: []flow.Slot{{ID: "in", Label: "In"}}, Outputs: []flow.Slot{{ID: "out", Label: "Out"}}, Seq: 1},
			{ID: "right", Label: "Right", Category: flow.CategoryProgram, Inputs: []flow.Slot{{ID: "in", Label: "In"}}, Outputs: []flow.Slot{{ID: "out", Label: "Out"}}, Seq: 2},
			{ID: "bottom", Label: "Bottom", Category: flow.CategoryProgram, Inputs: []flow.Slot{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}}, Seq: 0},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: flow.Endpoint{NodeID: "top", SlotID: "out"}, Target: flow.Endpoint{NodeID: "left", SlotID: "in"}},
			{ID: "e2", Source: flow.Endpoint{NodeID: "top", SlotID: "out"}, Target: flow.Endpoint{NodeID: "right", SlotID: "in"}},
			{ID: "e3", Source: flow.Endpoint{NodeID: "left", SlotID: "out"}, Target: flow.Endpoint{NodeID: "bottom", SlotID: "a"}},
			{ID: "e4", Source: flow.Endpoint{NodeID: "right", SlotID: "out"}, Target: flow.Endpoint{NodeID: "bottom", SlotID: "b"}},
		},
	}

	gen := Compile(snap, DefaultOptions())
	if len(gen.ExecutionOrder) != 4 {
		t.Fatalf("got %d ordered nodes, want 4", len(gen.ExecutionOrder))
	}

	index := make(map[string]int, len(gen.ExecutionOrder))
	for i, id := range gen.ExecutionOrder {
		index[id] = i
	}
	for _, e := range snap.Edges {
		if index[e.Source.NodeID] >= index[e.Target.NodeID] {
			t.Fatalf("edge %s violated: %s at %d, %s at %d",
				e.ID, e.Source.NodeID, index[e.Source.NodeID], e.Target.NodeID, index[e.Target.NodeID])
		}
	}

	// Ties break on creation sequence: left (seq 1) before right (seq 2).
	if index["left"] > index["right"] {
		t.Fatal("creation-order tie break violated")
	}
}

func TestCompileCycleExcludedWithWarning(t *testing.T) {
	t.Parallel()

	snap := flow.Snapshot{
		Nodes: []flow.Node{
			{ID: "a", Label: "A", Category: flow.CategoryProgram, Inputs: []flow.Slot{{ID: "in", Label: "In"}}, Outputs: []flow.Slot{{ID: "out", Label: "Out"}}, Seq: 0},
			{ID: "b", Label: "B", Category: flow.CategoryProgram, Inputs: []flow.Slot{{ID: "in", Label: "In"}}, Outputs: []flow.Slot{{ID: "out", Label: "Out"}}, Seq: 1},
			{ID: "solo", Label: "Solo", Category: flow.CategoryProgram, Outputs: []flow.Slot{{ID: "out", Label: "Out"}}, Seq: 2},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: flow.Endpoint{NodeID: "a", SlotID: "out"}, Target: flow.Endpoint{NodeID: "b", SlotID: "in"}},
			{ID: "e2", Source: flow.Endpoint{NodeID: "b", SlotID: "out"}, Target: flow.Endpoint{NodeID: "a", SlotID: "in"}},
		},
	}

	gen := Compile(snap, DefaultOptions())

	// The acyclic remainder still compiles.
	if !reflect.DeepEqual(gen.ExecutionOrder, []string{"solo"}) {
		t.Fatalf("got order %v, want [solo]", gen.ExecutionOrder)
	}

	found := false
	for _, w := range gen.Warnings {
		if w == "unresolved cycle involving nodes: a, b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("cycle warning missing from %v", gen.Warnings)
	}
	if strings.Contains(gen.Code, "run_program(\"") && strings.Contains(gen.Code, " a ") {
		t.Fatalf("cyclic node leaked into code:\n%s", gen.Code)
	}
}

func TestCompileWarnings(t *testing.T) {
	t.Parallel()

	snap := flow.Snapshot{
		Nodes: []flow.Node{
			{
				ID:       "p1",
				Label:    "Step",
				Category: flow.CategoryProgram,
				Inputs: []flow.Slot{
					{ID: "in1", Label: "Needed"},
					{ID: "in2", Label: "Optional", Default: "42"},
				},
				Outputs: []flow.Slot{{ID: "out", Label: "Unused"}},
				Seq:     0,
			},
			{ID: "p2", Label: "Step", Category: flow.CategoryProgram, Seq: 1},
		},
	}

	gen := Compile(snap, DefaultOptions())

	want := map[string]bool{
		`node "Step" input "Needed" is not connected and has no default`: false,
		`node "Step" output "Unused" is never consumed`:                  false,
		`duplicate node label "Step"`:                                    false,
	}
	for _, w := range gen.Warnings {
		if _, ok := want[w]; ok {
			want[w] = true
		}
	}
	for w, seen := range want {
		if !seen {
			t.Errorf("missing warning %q in %v", w, gen.Warnings)
		}
	}

	// The defaulted input must not warn.
	for _, w := range gen.Warnings {
		if strings.Contains(w, "Optional") {
			t.Fatalf("defaulted input warned: %q", w)
		}
	}
}

func TestCompileDeadCodeWarning(t *testing.T) {
	t.Parallel()

	snap := linearSnapshot()
	snap.Nodes = append(snap.Nodes, flow.Node{
		ID:       "stray",
		Label:    "Stray",
		Category: flow.CategoryProgram,
		Seq:      3,
	})

	gen := Compile(snap, DefaultOptions())
	found := false
	for _, w := range gen.Warnings {
		if w == `node "Stray" has no path to any output` {
			found = true
		}
	}
	if !found {
		t.Fatalf("dead code warning missing from %v", gen.Warnings)
	}
}

func TestCompileOptions(t *testing.T) {
	t.Parallel()

	t.Run("async", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Async = true
		gen := Compile(linearSnapshot(), opts)
		if !strings.Contains(gen.Code, "async def composition(") {
			t.Fatalf("async signature missing:\n%s", gen.Code)
		}
		if !strings.Contains(gen.Code, "await run_program(") {
			t.Fatalf("await missing:\n%s", gen.Code)
		}
	})

	t.Run("type_hints", func(t *testing.T) {
		opts := DefaultOptions()
		opts.TypeHints = true
		gen := Compile(linearSnapshot(), opts)
		if !strings.Contains(gen.Code, "from typing import Any") {
			t.Fatalf("typing import missing:\n%s", gen.Code)
		}
		if !strings.Contains(gen.Code, "def composition(value: Any) -> Any:") {
			t.Fatalf("annotated signature missing:\n%s", gen.Code)
		}
	})

	t.Run("no_comments", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Comments = false
		gen := Compile(linearSnapshot(), opts)
		if strings.Contains(gen.Code, "#") {
			t.Fatalf("comment emitted with comments disabled:\n%s", gen.Code)
		}
	})

	t.Run("custom_indent", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Indent = "\t"
		gen := Compile(linearSnapshot(), opts)
		if !strings.Contains(gen.Code, "\tprocess = ") {
			t.Fatalf("tab indent missing:\n%s", gen.Code)
		}
	})
}

func TestCompileLoopNesting(t *testing.T) {
	t.Parallel()

	snap := flow.Snapshot{
		Nodes: []flow.Node{
			{
				ID:       "items",
				Label:    "Items",
				Category: flow.CategoryUtility,
				Payload:  flow.Payload{Utility: flow.UtilityInput},
				Outputs:  []flow.Slot{{ID: "out", Label: "Items"}},
				Seq:      0,
			},
			{
				ID:       "loop",
				Label:    "Each",
				Category: flow.CategoryPrimitive,
				Payload:  flow.Payload{Primitive: flow.PrimitiveLoop},
				Inputs:   []flow.Slot{{ID: "in", Label: "Over"}},
				Outputs:  []flow.Slot{{ID: "out", Label: "Item"}},
				Seq:      1,
			},
			{
				ID:       "step",
				Label:    "Step",
				Category: flow.CategoryProgram,
				Payload:  flow.Payload{Asset: &flow.AssetRef{AssetID: "prog", Version: "2"}},
				Inputs:   []flow.Slot{{ID: "in", Label: "In"}},
				Outputs:  []flow.Slot{{ID: "out", Label: "Out"}},
				Seq:      2,
			},
			{
				ID:       "dbg",
				Label:    "Tap",
				Category: flow.CategoryUtility,
				Payload:  flow.Payload{Utility: flow.UtilityDebug},
				Inputs:   []flow.Slot{{ID: "in", Label: "In"}},
				Seq:      3,
			},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: flow.Endpoint{NodeID: "items", SlotID: "out"}, Target: flow.Endpoint{NodeID: "loop", SlotID: "in"}},
			{ID: "e2", Source: flow.Endpoint{NodeID: "loop", SlotID: "out"}, Target: flow.Endpoint{NodeID: "step", SlotID: "in"}},
			{ID: "e3", Source: flow.Endpoint{NodeID: "step", SlotID: "out"}, Target: flow.Endpoint{NodeID: "dbg", SlotID: "in"}},
		},
	}

	gen := Compile(snap, DefaultOptions())

	if !strings.Contains(gen.Code, "    for each in items:") {
		t.Fatalf("loop header missing:\n%s", gen.Code)
	}
	if !strings.Contains(gen.Code, "        step = run_program(\"prog\", version=\"2\")(each)") {
		t.Fatalf("nested body missing:\n%s", gen.Code)
	}
	if !strings.Contains(gen.Code, "        debug(step)") {
		t.Fatalf("nested debug call missing:\n%s", gen.Code)
	}
}

func TestCompileBlockBodyStaysWithHeader(t *testing.T) {
	t.Parallel()

	// An unrelated node whose creation sequence falls between a loop header
	// and the loop body must not end up between them in the emitted source.
	snap := flow.Snapshot{
		Nodes: []flow.Node{
			{
				ID:       "items",
				Label:    "Items",
				Category: flow.CategoryUtility,
				Payload:  flow.Payload{Utility: flow.UtilityConstant, Value: "[1, 2]"},
				Outputs:  []flow.Slot{{ID: "out", Label: "Out"}},
				Seq:      0,
			},
			{
				ID:       "loop",
				Label:    "Each",
				Category: flow.CategoryPrimitive,
				Payload:  flow.Payload{Primitive: flow.PrimitiveLoop},
				Inputs:   []flow.Slot{{ID: "in", Label: "Over"}},
				Outputs:  []flow.Slot{{ID: "out", Label: "Item"}},
				Seq:      1,
			},
			{
				ID:       "other",
				Label:    "Other",
				Category: flow.CategoryUtility,
				Payload:  flow.Payload{Utility: flow.UtilityConstant, Value: "2"},
				Outputs:  []flow.Slot{{ID: "out", Label: "Out"}},
				Seq:      2,
			},
			{
				ID:       "step",
				Label:    "Step",
				Category: flow.CategoryProgram,
				Payload:  flow.Payload{Asset: &flow.AssetRef{AssetID: "prog", Version: "1"}},
				Inputs:   []flow.Slot{{ID: "in", Label: "In"}},
				Outputs:  []flow.Slot{{ID: "out", Label: "Out"}},
				Seq:      3,
			},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: flow.Endpoint{NodeID: "items", SlotID: "out"}, Target: flow.Endpoint{NodeID: "loop", SlotID: "in"}},
			{ID: "e2", Source: flow.Endpoint{NodeID: "loop", SlotID: "out"}, Target: flow.Endpoint{NodeID: "step", SlotID: "in"}},
		},
	}

	gen := Compile(snap, DefaultOptions())
	lines := strings.Split(gen.Code, "\n")

	header := -1
	for i, l := range lines {
		if l == "    for each in items:" {
			header = i
		}
	}
	if header == -1 {
		t.Fatalf("loop header missing:\n%s", gen.Code)
	}
	if lines[header+1] != "        step = run_program(\"prog\", version=\"1\")(each)" {
		t.Fatalf("line after loop header is %q, not the loop body:\n%s", lines[header+1], gen.Code)
	}

	found := false
	for _, l := range lines {
		if l == "    other = 2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("sibling constant missing or pulled into the block:\n%s", gen.Code)
	}
}

func TestCompileEmptyBlockGetsPass(t *testing.T) {
	t.Parallel()

	blockNode := func(p flow.PrimitiveKind) flow.Node {
		return flow.Node{
			ID:       "blk",
			Label:    "Block",
			Category: flow.CategoryPrimitive,
			Payload:  flow.Payload{Primitive: p},
			Inputs:   []flow.Slot{{ID: "in", Label: "In"}},
			Outputs:  []flow.Slot{{ID: "out", Label: "Out"}},
			Seq:      1,
		}
	}

	tests := []struct {
		name       string
		primitive  flow.PrimitiveKind
		wantHeader string
	}{
		{name: "loop", primitive: flow.PrimitiveLoop, wantHeader: "    for block in items:"},
		{name: "conditional", primitive: flow.PrimitiveConditional, wantHeader: "    if items:"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			snap := flow.Snapshot{
				Nodes: []flow.Node{
					{
						ID:       "items",
						Label:    "Items",
						Category: flow.CategoryUtility,
						Payload:  flow.Payload{Utility: flow.UtilityConstant, Value: "[1, 2]"},
						Outputs:  []flow.Slot{{ID: "out", Label: "Out"}},
						Seq:      0,
					},
					blockNode(tc.primitive),
				},
				Edges: []flow.Edge{
					{ID: "e1", Source: flow.Endpoint{NodeID: "items", SlotID: "out"}, Target: flow.Endpoint{NodeID: "blk", SlotID: "in"}},
				},
			}

			gen := Compile(snap, DefaultOptions())
			lines := strings.Split(gen.Code, "\n")
			header := -1
			for i, l := range lines {
				if l == tc.wantHeader {
					header = i
				}
			}
			if header == -1 {
				t.Fatalf("block header missing:\n%s", gen.Code)
			}
			if lines[header+1] != "        pass" {
				t.Fatalf("empty block not closed with pass, got %q:\n%s", lines[header+1], gen.Code)
			}
		})
	}
}
