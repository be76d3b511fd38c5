package flow

import (
	"reflect"
	"testing"
)

func producerNode(id, label, slotType string) Node {
	return Node{
		ID:       id,
		Label:    label,
		Category: CategoryProgram,
		Outputs:  []Slot{{ID: "out", Label: "Out", Type: slotType}},
	}
}

func consumerNode(id, label, slotType string) Node {
	return Node{
		ID:       id,
		Label:    label,
		Category: CategoryProgram,
		Inputs:   []Slot{{ID: "in", Label: "In", Type: slotType}},
		Outputs:  []Slot{{ID: "out", Label: "Out", Type: slotType}},
	}
}

func mustAddEdge(t *testing.T, c *Composition, id, from, to string) {
	t.Helper()
	_, err := c.AddEdge(Edge{
		ID:     id,
		Source: Endpoint{NodeID: from, SlotID: "out"},
		Target: Endpoint{NodeID: to, SlotID: "in"},
	})
	if err != nil {
		t.Fatalf("AddEdge(%s -> %s): %v", from, to, err)
	}
}

func TestAddNodeAssignsIDAndSeq(t *testing.T) {
	t.Parallel()

	c := NewComposition()
	snap := c.AddNode(Node{Label: "First", Category: CategoryProgram})
	if len(snap.Nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(snap.Nodes))
	}
	if snap.Nodes[0].ID == "" {
		t.Fatal("expected a generated node id")
	}
	if snap.Nodes[0].State != NodeIdle {
		t.Fatalf("got state %q, want %q", snap.Nodes[0].State, NodeIdle)
	}

	snap = c.AddNode(Node{ID: "b", Label: "Second", Category: CategoryProgram})
	if snap.Nodes[1].Seq <= snap.Nodes[0].Seq {
		t.Fatalf("sequence numbers not increasing: %d then %d", snap.Nodes[0].Seq, snap.Nodes[1].Seq)
	}

	// Re-adding an existing id is a no-op.
	snap = c.AddNode(Node{ID: "b", Label: "Shadow"})
	if len(snap.Nodes) != 2 {
		t.Fatalf("got %d nodes after duplicate add, want 2", len(snap.Nodes))
	}
	if snap.Nodes[1].Label != "Second" {
		t.Fatalf("duplicate add overwrote node: %q", snap.Nodes[1].Label)
	}
}

func TestRemoveNodeCascadesEdges(t *testing.T) {
	t.Parallel()

	c := NewComposition()
	c.AddNode(producerNode("a", "A", ""))
	c.AddNode(consumerNode("b", "B", ""))
	c.AddNode(consumerNode("c", "C", ""))
	mustAddEdge(t, c, "e1", "a", "b")
	mustAddEdge(t, c, "e2", "b", "c")

	snap := c.RemoveNode("b")
	if len(snap.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(snap.Nodes))
	}
	if len(snap.Edges) != 0 {
		t.Fatalf("got %d edges after cascade, want 0", len(snap.Edges))
	}
	for _, e := range snap.Edges {
		if _, ok := c.Node(e.Source.NodeID); !ok {
			t.Fatalf("dangling edge source %q", e.Source.NodeID)
		}
	}
}

func TestAddEdgeRejectsInvalid(t *testing.T) {
	t.Parallel()

	c := NewComposition()
	c.AddNode(producerNode("a", "A", ""))
	c.AddNode(consumerNode("b", "B", ""))
	mustAddEdge(t, c, "e1", "a", "b")

	// Second writer on the same input slot.
	c.AddNode(producerNode("d", "D", ""))
	if _, err := c.AddEdge(Edge{
		Source: Endpoint{NodeID: "d", SlotID: "out"},
		Target: Endpoint{NodeID: "b", SlotID: "in"},
	}); err == nil {
		t.Fatal("expected single-writer rejection")
	}

	// The failed insert must not have changed the graph.
	if got := len(c.Snapshot().Edges); got != 1 {
		t.Fatalf("got %d edges after rejected add, want 1", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewComposition()
	c.AddNode(producerNode("a", "A", "text"))
	c.AddNode(consumerNode("b", "B", "text"))
	c.AddNode(consumerNode("c", "C", "text"))
	mustAddEdge(t, c, "e1", "a", "b")
	mustAddEdge(t, c, "e2", "b", "c")

	snap := c.Snapshot()
	rebuilt, err := FromSnapshot(snap)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if rebuilt.Dirty() {
		t.Fatal("rebuilt composition must start clean")
	}
	if !reflect.DeepEqual(rebuilt.Snapshot(), snap) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", rebuilt.Snapshot(), snap)
	}
}

func TestFromSnapshotRejectsMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		snap Snapshot
	}{
		{
			name: "duplicate_node_id",
			snap: Snapshot{Nodes: []Node{producerNode("a", "A", ""), producerNode("a", "A2", "")}},
		},
		{
			name: "missing_node_id",
			snap: Snapshot{Nodes: []Node{{Label: "NoID"}}},
		},
		{
			name: "dangling_edge_endpoint",
			snap: Snapshot{
				Nodes: []Node{producerNode("a", "A", "")},
				Edges: []Edge{{ID: "e1", Source: Endpoint{NodeID: "a", SlotID: "out"}, Target: Endpoint{NodeID: "ghost", SlotID: "in"}}},
			},
		},
		{
			name: "cycle",
			snap: Snapshot{
				Nodes: []Node{consumerNode("a", "A", ""), consumerNode("b", "B", "")},
				Edges: []Edge{
					{ID: "e1", Source: Endpoint{NodeID: "a", SlotID: "out"}, Target: Endpoint{NodeID: "b", SlotID: "in"}},
					{ID: "e2", Source: Endpoint{NodeID: "b", SlotID: "out"}, Target: Endpoint{NodeID: "a", SlotID: "in"}},
				},
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromSnapshot(tc.snap); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestDirtyFlag(t *testing.T) {
	t.Parallel()

	c := NewComposition()
	if c.Dirty() {
		t.Fatal("new composition must be clean")
	}

	c.AddNode(producerNode("a", "A", ""))
	if !c.Dirty() {
		t.Fatal("AddNode must mark dirty")
	}

	c.MarkClean()
	c.SetSelection([]string{"a"})
	if c.Dirty() {
		t.Fatal("selection changes must not mark dirty")
	}

	c.SetNodeState("a", NodeRunning)
	if c.Dirty() {
		t.Fatal("node state changes must not mark dirty")
	}

	c.RemoveNode("a")
	if !c.Dirty() {
		t.Fatal("RemoveNode must mark dirty")
	}
}

func TestSelectionOrderAndFiltering(t *testing.T) {
	t.Parallel()

	c := NewComposition()
	c.AddNode(producerNode("a", "A", ""))
	c.AddNode(consumerNode("b", "B", ""))
	mustAddEdge(t, c, "e1", "a", "b")

	c.SetSelection([]string{"b", "ghost", "a", "e1"})
	got := c.Selection()
	want := []string{"a", "b", "e1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got selection %v, want %v", got, want)
	}
}

func TestDuplicateSelection(t *testing.T) {
	t.Parallel()

	c := NewComposition()
	c.AddNode(producerNode("a", "A", ""))
	c.AddNode(consumerNode("b", "B", ""))
	c.AddNode(consumerNode("c", "C", ""))
	mustAddEdge(t, c, "e1", "a", "b")
	mustAddEdge(t, c, "e2", "b", "c")

	c.SetSelection([]string{"a", "b"})
	snap := c.DuplicateSelection(Position{X: 20, Y: 30})

	if len(snap.Nodes) != 5 {
		t.Fatalf("got %d nodes, want 5", len(snap.Nodes))
	}
	// Only the edge with both endpoints selected is cloned.
	if len(snap.Edges) != 3 {
		t.Fatalf("got %d edges, want 3", len(snap.Edges))
	}

	sel := c.Selection()
	if len(sel) != 2 {
		t.Fatalf("got %d selected ids, want 2", len(sel))
	}
	for _, id := range sel {
		if id == "a" || id == "b" {
			t.Fatalf("selection still contains original %q", id)
		}
		n, ok := c.Node(id)
		if !ok {
			t.Fatalf("selected clone %q not in graph", id)
		}
		if n.State != NodeIdle {
			t.Fatalf("clone state %q, want %q", n.State, NodeIdle)
		}
	}

	orig, _ := c.Node("a")
	cloneA, _ := c.Node(sel[0])
	if cloneA.Position.X != orig.Position.X+20 || cloneA.Position.Y != orig.Position.Y+30 {
		t.Fatalf("clone position %+v not offset from %+v", cloneA.Position, orig.Position)
	}
}

func TestSubscribeNotifies(t *testing.T) {
	t.Parallel()

	c := NewComposition()
	calls := 0
	unsubscribe := c.Subscribe(func(Snapshot) { calls++ })

	c.AddNode(producerNode("a", "A", ""))
	if calls != 1 {
		t.Fatalf("got %d notifications, want 1", calls)
	}

	// Selection is editor state, not graph state.
	c.SetSelection([]string{"a"})
	if calls != 1 {
		t.Fatalf("got %d notifications after selection, want 1", calls)
	}

	c.SetNodeState("a", NodeRunning)
	if calls != 2 {
		t.Fatalf("got %d notifications after state change, want 2", calls)
	}

	unsubscribe()
	c.RemoveNode("a")
	if calls != 2 {
		t.Fatalf("got %d notifications after unsubscribe, want 2", calls)
	}
}
