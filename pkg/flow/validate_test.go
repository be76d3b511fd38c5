package flow

import (
	"strings"
	"testing"
)

// validatorFixture builds a small typed graph:
//
//	a(text) -> b(text), with d as a second text producer and
//	c accepting only numbers.
func validatorFixture(t *testing.T) *Composition {
	t.Helper()
	c := NewComposition()
	c.AddNode(Node{
		ID:       "a",
		Label:    "A",
		Category: CategoryProgram,
		Inputs:   []Slot{{ID: "in", Label: "In", Type: "text"}},
		Outputs:  []Slot{{ID: "out", Label: "Out", Type: "text"}},
	})
	c.AddNode(Node{
		ID:       "b",
		Label:    "B",
		Category: CategoryProgram,
		Inputs:   []Slot{{ID: "in", Label: "In", Type: "text"}},
		Outputs:  []Slot{{ID: "out", Label: "Out", Type: "text"}},
	})
	c.AddNode(Node{
		ID:       "c",
		Label:    "C",
		Category: CategoryProgram,
		Inputs:   []Slot{{ID: "in", Label: "In", Type: "number"}},
	})
	c.AddNode(Node{
		ID:       "d",
		Label:    "D",
		Category: CategoryProgram,
		Outputs:  []Slot{{ID: "out", Label: "Out", Type: "text"}},
	})
	if _, err := c.AddEdge(Edge{
		ID:     "e1",
		Source: Endpoint{NodeID: "a", SlotID: "out"},
		Target: Endpoint{NodeID: "b", SlotID: "in"},
	}); err != nil {
		t.Fatalf("fixture edge: %v", err)
	}
	return c
}

func TestValidateEdgeRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cand       Candidate
		wantValid  bool
		wantReason string
	}{
		{
			name:       "self_loop",
			cand:       Candidate{SourceNodeID: "a", SourceSlotID: "out", TargetNodeID: "a", TargetSlotID: "in"},
			wantReason: "cannot connect a node to itself",
		},
		{
			name:       "missing_source_node",
			cand:       Candidate{SourceNodeID: "ghost", SourceSlotID: "out", TargetNodeID: "b", TargetSlotID: "in"},
			wantReason: "source node does not exist",
		},
		{
			name:       "missing_target_node",
			cand:       Candidate{SourceNodeID: "a", SourceSlotID: "out", TargetNodeID: "ghost", TargetSlotID: "in"},
			wantReason: "target node does not exist",
		},
		{
			name:       "source_slot_not_output",
			cand:       Candidate{SourceNodeID: "a", SourceSlotID: "in", TargetNodeID: "b", TargetSlotID: "in"},
			wantReason: "source slot is not an output",
		},
		{
			name:       "target_slot_not_input",
			cand:       Candidate{SourceNodeID: "a", SourceSlotID: "out", TargetNodeID: "d", TargetSlotID: "out"},
			wantReason: "target slot is not an input",
		},
		{
			name:       "target_slot_occupied",
			cand:       Candidate{SourceNodeID: "d", SourceSlotID: "out", TargetNodeID: "b", TargetSlotID: "in"},
			wantReason: "target slot already has a connection",
		},
		{
			name: "replace_exempts_own_edge",
			cand: Candidate{
				SourceNodeID: "d", SourceSlotID: "out",
				TargetNodeID: "b", TargetSlotID: "in",
				ReplaceEdgeID: "e1",
			},
			wantValid: true,
		},
		{
			name:       "type_mismatch",
			cand:       Candidate{SourceNodeID: "a", SourceSlotID: "out", TargetNodeID: "c", TargetSlotID: "in"},
			wantReason: "slot types are incompatible: text -> number",
		},
		{
			name:       "would_create_cycle",
			cand:       Candidate{SourceNodeID: "b", SourceSlotID: "out", TargetNodeID: "a", TargetSlotID: "in"},
			wantReason: "connection would create a cycle",
		},
		{
			name:      "valid_connection",
			cand:      Candidate{SourceNodeID: "d", SourceSlotID: "out", TargetNodeID: "a", TargetSlotID: "in"},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			c := validatorFixture(t)
			got := c.ValidateEdge(tc.cand)
			if got.Valid != tc.wantValid {
				t.Fatalf("got valid=%v reason=%q, want valid=%v", got.Valid, got.Reason, tc.wantValid)
			}
			if !tc.wantValid && got.Reason != tc.wantReason {
				t.Fatalf("got reason %q, want %q", got.Reason, tc.wantReason)
			}
			if tc.wantValid && got.Reason != "" {
				t.Fatalf("valid result carries reason %q", got.Reason)
			}
		})
	}
}

func TestValidateEdgeUntypedSlotsMatchAnything(t *testing.T) {
	t.Parallel()

	c := NewComposition()
	c.AddNode(Node{
		ID:      "a",
		Label:   "A",
		Outputs: []Slot{{ID: "out", Label: "Out"}},
	})
	c.AddNode(Node{
		ID:     "b",
		Label:  "B",
		Inputs: []Slot{{ID: "in", Label: "In", Type: "number"}},
	})
	got := c.ValidateEdge(Candidate{SourceNodeID: "a", SourceSlotID: "out", TargetNodeID: "b", TargetSlotID: "in"})
	if !got.Valid {
		t.Fatalf("untyped output rejected: %q", got.Reason)
	}
}

func TestValidateEdgeDoesNotMutate(t *testing.T) {
	t.Parallel()

	c := validatorFixture(t)
	before := c.Snapshot()
	c.ValidateEdge(Candidate{SourceNodeID: "d", SourceSlotID: "out", TargetNodeID: "a", TargetSlotID: "in"})
	c.ValidateEdge(Candidate{SourceNodeID: "b", SourceSlotID: "out", TargetNodeID: "a", TargetSlotID: "in"})
	after := c.Snapshot()
	if len(before.Edges) != len(after.Edges) || len(before.Nodes) != len(after.Nodes) {
		t.Fatal("validation mutated the graph")
	}
}

func TestFeedbackGesture(t *testing.T) {
	t.Parallel()

	c := validatorFixture(t)
	f := BeginDrag()
	if f.State() != FeedbackNeutral {
		t.Fatalf("fresh gesture state %q, want %q", f.State(), FeedbackNeutral)
	}

	res := f.Hover(c, Candidate{SourceNodeID: "a", SourceSlotID: "out", TargetNodeID: "c", TargetSlotID: "in"})
	if res.Valid || f.State() != FeedbackInvalid {
		t.Fatalf("hover over incompatible slot: valid=%v state=%q", res.Valid, f.State())
	}
	if !strings.Contains(f.CurrentError, "incompatible") {
		t.Fatalf("feedback error %q does not name the failure", f.CurrentError)
	}

	f.Leave()
	if f.State() != FeedbackNeutral {
		t.Fatalf("state after leave %q, want %q", f.State(), FeedbackNeutral)
	}

	res = f.Hover(c, Candidate{SourceNodeID: "d", SourceSlotID: "out", TargetNodeID: "a", TargetSlotID: "in"})
	if !res.Valid || f.State() != FeedbackValid {
		t.Fatalf("hover over valid slot: valid=%v state=%q", res.Valid, f.State())
	}

	snap, committed := f.Commit(c)
	if !committed {
		t.Fatal("commit of a valid hover failed")
	}
	if len(snap.Edges) != 2 {
		t.Fatalf("got %d edges after commit, want 2", len(snap.Edges))
	}
	if f.Connecting {
		t.Fatal("gesture still active after commit")
	}
}

func TestFeedbackCommitReplacesEdge(t *testing.T) {
	t.Parallel()

	c := validatorFixture(t)
	f := BeginDrag()
	f.Hover(c, Candidate{
		SourceNodeID: "d", SourceSlotID: "out",
		TargetNodeID: "b", TargetSlotID: "in",
		ReplaceEdgeID: "e1",
	})

	snap, committed := f.Commit(c)
	if !committed {
		t.Fatal("replacement commit failed")
	}
	if len(snap.Edges) != 1 {
		t.Fatalf("got %d edges after replacement, want 1", len(snap.Edges))
	}
	if snap.Edges[0].Source.NodeID != "d" {
		t.Fatalf("edge source %q, want %q", snap.Edges[0].Source.NodeID, "d")
	}
}

func TestFeedbackCommitFailureKeepsReplacedEdge(t *testing.T) {
	t.Parallel()

	c := validatorFixture(t)
	f := BeginDrag()
	res := f.Hover(c, Candidate{
		SourceNodeID: "d", SourceSlotID: "out",
		TargetNodeID: "b", TargetSlotID: "in",
		ReplaceEdgeID: "e1",
	})
	if !res.Valid {
		t.Fatalf("hover rejected: %q", res.Reason)
	}

	// The graph changes between hover and drop, invalidating the verdict.
	c.RemoveNode("d")

	snap, committed := f.Commit(c)
	if committed {
		t.Fatal("commit of a stale verdict succeeded")
	}
	if len(snap.Edges) != 1 || snap.Edges[0].ID != "e1" {
		t.Fatalf("replaced edge lost on failed commit: %+v", snap.Edges)
	}
	if snap.Edges[0].Source.NodeID != "a" {
		t.Fatalf("restored edge source %q, want %q", snap.Edges[0].Source.NodeID, "a")
	}
}
