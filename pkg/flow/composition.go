package flow

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nodeIDLength = 10

// Composition owns the node and edge sets of one workflow graph. All
// mutation goes through its methods so the edge invariants are checked in
// one place; no caller ever holds a mutable reference into the graph.
// Mutations are synchronous, return the updated snapshot, and notify
// subscribers after committing.
type Composition struct {
	nodes     map[string]*Node
	edges     map[string]*Edge
	nodeOrder []string
	edgeOrder []string
	selection map[string]bool
	dirty     bool
	nextSeq   int
	subs      map[int]func(Snapshot)
	nextSub   int
}

// NewComposition returns an empty composition.
func NewComposition() *Composition {
	return &Composition{
		nodes:     make(map[string]*Node),
		edges:     make(map[string]*Edge),
		selection: make(map[string]bool),
		subs:      make(map[int]func(Snapshot)),
	}
}

// FromSnapshot rebuilds a composition from a persisted snapshot. Edges are
// re-checked against the connection rules, so a malformed snapshot (dangling
// endpoints, double-writer inputs, cycles) is rejected instead of loaded.
func FromSnapshot(snap Snapshot) (*Composition, error) {
	c := NewComposition()
	for _, n := range snap.Nodes {
		node := n
		if node.ID == "" {
			return nil, fmt.Errorf("snapshot node without id")
		}
		if _, ok := c.nodes[node.ID]; ok {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}
		if node.State == "" {
			node.State = NodeIdle
		}
		c.nodes[node.ID] = &node
		c.nodeOrder = append(c.nodeOrder, node.ID)
		if node.Seq >= c.nextSeq {
			c.nextSeq = node.Seq + 1
		}
	}
	// Older snapshots carry no sequence numbers; derive them from slice order.
	if c.nextSeq == 1 && len(snap.Nodes) > 1 {
		c.nextSeq = 0
		for _, id := range c.nodeOrder {
			c.nodes[id].Seq = c.nextSeq
			c.nextSeq++
		}
	}
	for _, e := range snap.Edges {
		if _, err := c.AddEdge(e); err != nil {
			return nil, fmt.Errorf("snapshot edge %q: %w", e.ID, err)
		}
	}
	c.dirty = false
	return c, nil
}

// Snapshot returns the plain persistable form of the graph, nodes in
// creation order and edges in insertion order.
func (c *Composition) Snapshot() Snapshot {
	snap := Snapshot{
		Nodes: make([]Node, 0, len(c.nodeOrder)),
		Edges: make([]Edge, 0, len(c.edgeOrder)),
	}
	for _, id := range c.nodeOrder {
		snap.Nodes = append(snap.Nodes, *c.nodes[id])
	}
	for _, id := range c.edgeOrder {
		snap.Edges = append(snap.Edges, *c.edges[id])
	}
	return snap
}

// Subscribe registers fn to run after every committed graph mutation.
// The returned function removes the subscription.
func (c *Composition) Subscribe(fn func(Snapshot)) func() {
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		delete(c.subs, id)
	}
}

func (c *Composition) notify() Snapshot {
	snap := c.Snapshot()
	for _, fn := range c.subs {
		fn(snap)
	}
	return snap
}

// AddNode inserts a node, assigning an id and creation sequence number if
// missing. Adding an id that already exists is a no-op.
func (c *Composition) AddNode(n Node) Snapshot {
	if n.ID == "" {
		n.ID = gonanoid.Must(nodeIDLength)
	}
	if _, ok := c.nodes[n.ID]; ok {
		return c.Snapshot()
	}
	if n.State == "" {
		n.State = NodeIdle
	}
	n.Seq = c.nextSeq
	c.nextSeq++
	node := n
	c.nodes[n.ID] = &node
	c.nodeOrder = append(c.nodeOrder, n.ID)
	c.dirty = true
	return c.notify()
}

// UpdateNode replaces the stored node's fields, preserving its creation
// sequence number. Unknown ids are a no-op.
func (c *Composition) UpdateNode(n Node) Snapshot {
	existing, ok := c.nodes[n.ID]
	if !ok {
		return c.Snapshot()
	}
	n.Seq = existing.Seq
	if n.State == "" {
		n.State = existing.State
	}
	*existing = n
	c.dirty = true
	return c.notify()
}

// SetNodeState writes the execution-state tag of a node. This is the only
// mutation run tracking consumers perform on the graph.
func (c *Composition) SetNodeState(id string, state NodeState) Snapshot {
	node, ok := c.nodes[id]
	if !ok {
		return c.Snapshot()
	}
	node.State = state
	return c.notify()
}

// RemoveNode deletes a node and, atomically in the same operation, every
// edge touching it. No dangling edge is observable between store operations.
func (c *Composition) RemoveNode(id string) Snapshot {
	if _, ok := c.nodes[id]; !ok {
		return c.Snapshot()
	}
	delete(c.nodes, id)
	c.nodeOrder = removeID(c.nodeOrder, id)
	delete(c.selection, id)

	for _, edgeID := range append([]string(nil), c.edgeOrder...) {
		e := c.edges[edgeID]
		if e.Source.NodeID == id || e.Target.NodeID == id {
			delete(c.edges, edgeID)
			c.edgeOrder = removeID(c.edgeOrder, edgeID)
			delete(c.selection, edgeID)
		}
	}
	c.dirty = true
	return c.notify()
}

// AddEdge inserts an edge after re-running the connection rules, so
// programmatic edits cannot bypass the drag-time validator.
func (c *Composition) AddEdge(e Edge) (Snapshot, error) {
	res := c.ValidateEdge(Candidate{
		SourceNodeID: e.Source.NodeID,
		SourceSlotID: e.Source.SlotID,
		TargetNodeID: e.Target.NodeID,
		TargetSlotID: e.Target.SlotID,
	})
	if !res.Valid {
		return c.Snapshot(), fmt.Errorf("invalid edge: %s", res.Reason)
	}
	if e.ID == "" {
		e.ID = gonanoid.Must(nodeIDLength)
	}
	if _, ok := c.edges[e.ID]; ok {
		return c.Snapshot(), fmt.Errorf("duplicate edge id %q", e.ID)
	}
	edge := e
	c.edges[e.ID] = &edge
	c.edgeOrder = append(c.edgeOrder, e.ID)
	c.dirty = true
	return c.notify(), nil
}

// RemoveEdge deletes an edge. Unknown ids are a no-op.
func (c *Composition) RemoveEdge(id string) Snapshot {
	if _, ok := c.edges[id]; !ok {
		return c.Snapshot()
	}
	delete(c.edges, id)
	c.edgeOrder = removeID(c.edgeOrder, id)
	delete(c.selection, id)
	c.dirty = true
	return c.notify()
}

// SetSelection replaces the selection set. Ids not present in the graph are
// ignored. Selection is editor state, not graph state, so subscribers are
// not notified and the dirty flag is untouched.
func (c *Composition) SetSelection(ids []string) {
	c.selection = make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.nodes[id]; ok {
			c.selection[id] = true
			continue
		}
		if _, ok := c.edges[id]; ok {
			c.selection[id] = true
		}
	}
}

// Selection returns the selected node and edge ids in graph order.
func (c *Composition) Selection() []string {
	out := make([]string, 0, len(c.selection))
	for _, id := range c.nodeOrder {
		if c.selection[id] {
			out = append(out, id)
		}
	}
	for _, id := range c.edgeOrder {
		if c.selection[id] {
			out = append(out, id)
		}
	}
	return out
}

// DuplicateSelection clones the selected nodes with fresh ids at an offset
// position, together with the edges whose both endpoints are selected. The
// clones become the new selection.
func (c *Composition) DuplicateSelection(offset Position) Snapshot {
	idMap := make(map[string]string)
	clones := make([]Node, 0)
	for _, id := range c.nodeOrder {
		if !c.selection[id] {
			continue
		}
		src := c.nodes[id]
		clone := *src
		clone.ID = gonanoid.Must(nodeIDLength)
		clone.Position.X += offset.X
		clone.Position.Y += offset.Y
		clone.State = NodeIdle
		idMap[id] = clone.ID
		clones = append(clones, clone)
	}
	if len(clones) == 0 {
		return c.Snapshot()
	}

	clonedEdges := make([]Edge, 0)
	for _, edgeID := range c.edgeOrder {
		e := c.edges[edgeID]
		srcID, srcOK := idMap[e.Source.NodeID]
		tgtID, tgtOK := idMap[e.Target.NodeID]
		if !srcOK || !tgtOK {
			continue
		}
		clonedEdges = append(clonedEdges, Edge{
			ID:     gonanoid.Must(nodeIDLength),
			Source: Endpoint{NodeID: srcID, SlotID: e.Source.SlotID},
			Target: Endpoint{NodeID: tgtID, SlotID: e.Target.SlotID},
		})
	}

	for i := range clones {
		n := clones[i]
		n.Seq = c.nextSeq
		c.nextSeq++
		node := n
		c.nodes[n.ID] = &node
		c.nodeOrder = append(c.nodeOrder, n.ID)
	}
	for _, e := range clonedEdges {
		edge := e
		c.edges[e.ID] = &edge
		c.edgeOrder = append(c.edgeOrder, e.ID)
	}

	c.selection = make(map[string]bool, len(clones))
	for _, n := range clones {
		c.selection[n.ID] = true
	}
	c.dirty = true
	return c.notify()
}

// Dirty reports whether the graph differs from the last persisted snapshot.
func (c *Composition) Dirty() bool {
	return c.dirty
}

// MarkClean records that the current state has been persisted.
func (c *Composition) MarkClean() {
	c.dirty = false
}

// MarkDirty forces the dirty flag, used when an external snapshot write fails.
func (c *Composition) MarkDirty() {
	c.dirty = true
}

// Node returns a copy of the node with the given id.
func (c *Composition) Node(id string) (Node, bool) {
	n, ok := c.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Edge returns a copy of the edge with the given id.
func (c *Composition) Edge(id string) (Edge, bool) {
	e, ok := c.edges[id]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
