package flow

// Candidate describes an edge being dragged but not yet committed.
type Candidate struct {
	SourceNodeID string `json:"source_node_id"`
	SourceSlotID string `json:"source_slot_id"`
	TargetNodeID string `json:"target_node_id"`
	TargetSlotID string `json:"target_slot_id"`
	// ReplaceEdgeID exempts the edge currently being re-dragged from the
	// single-writer check on its own target slot.
	ReplaceEdgeID string `json:"replace_edge_id,omitempty"`
}

// Result is the validator's verdict. Reason is set only when invalid.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func reject(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// ValidateEdge checks a candidate edge against the current graph. Rules run
// in a fixed order and the first failure wins. The call reads but never
// writes the graph and is bounded by O(V+E).
func (c *Composition) ValidateEdge(cand Candidate) Result {
	if cand.SourceNodeID == cand.TargetNodeID {
		return reject("cannot connect a node to itself")
	}

	source, ok := c.nodes[cand.SourceNodeID]
	if !ok {
		return reject("source node does not exist")
	}
	target, ok := c.nodes[cand.TargetNodeID]
	if !ok {
		return reject("target node does not exist")
	}

	sourceSlot, ok := source.Output(cand.SourceSlotID)
	if !ok {
		return reject("source slot is not an output")
	}
	targetSlot, ok := target.Input(cand.TargetSlotID)
	if !ok {
		return reject("target slot is not an input")
	}

	for _, edgeID := range c.edgeOrder {
		e := c.edges[edgeID]
		if e.Target.NodeID != cand.TargetNodeID || e.Target.SlotID != cand.TargetSlotID {
			continue
		}
		if e.ID == cand.ReplaceEdgeID {
			continue
		}
		return reject("target slot already has a connection")
	}

	if sourceSlot.Type != "" && targetSlot.Type != "" && sourceSlot.Type != targetSlot.Type {
		return reject("slot types are incompatible: " + sourceSlot.Type + " -> " + targetSlot.Type)
	}

	if c.reachable(cand.TargetNodeID, cand.SourceNodeID) {
		return reject("connection would create a cycle")
	}

	return Result{Valid: true}
}

// reachable reports whether to can be reached from from by following
// existing edges forward. One adjacency pass keeps the search at O(V+E).
func (c *Composition) reachable(from, to string) bool {
	next := make(map[string][]string, len(c.nodes))
	for _, edgeID := range c.edgeOrder {
		e := c.edges[edgeID]
		next[e.Source.NodeID] = append(next[e.Source.NodeID], e.Target.NodeID)
	}

	visited := make(map[string]bool, len(c.nodes))
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, target := range next[id] {
			if !visited[target] {
				stack = append(stack, target)
			}
		}
	}
	return false
}

// FeedbackState is the three-way visual state of a drag gesture.
type FeedbackState string

const (
	FeedbackNeutral FeedbackState = "neutral"
	FeedbackValid   FeedbackState = "valid"
	FeedbackInvalid FeedbackState = "invalid"
)

// Feedback is the transient per-gesture validation state. It is created
// when a drag starts and discarded on drop or cancel; it is never persisted
// into the composition.
type Feedback struct {
	Connecting    bool   `json:"is_connecting"`
	TargetNodeID  string `json:"current_target_node_id,omitempty"`
	TargetSlotID  string `json:"current_target_slot_id,omitempty"`
	TargetValid   bool   `json:"is_current_target_valid"`
	CurrentError  string `json:"current_error,omitempty"`
	lastValidated Candidate
}

// BeginDrag returns feedback for a freshly started gesture.
func BeginDrag() *Feedback {
	return &Feedback{Connecting: true}
}

// Hover records the validation result for the slot currently under the
// pointer. Committing the edge is a separate action gated on the last
// result being valid.
func (f *Feedback) Hover(c *Composition, cand Candidate) Result {
	res := c.ValidateEdge(cand)
	f.TargetNodeID = cand.TargetNodeID
	f.TargetSlotID = cand.TargetSlotID
	f.TargetValid = res.Valid
	f.CurrentError = res.Reason
	f.lastValidated = cand
	return res
}

// Leave clears the hovered target without ending the gesture.
func (f *Feedback) Leave() {
	f.TargetNodeID = ""
	f.TargetSlotID = ""
	f.TargetValid = false
	f.CurrentError = ""
	f.lastValidated = Candidate{}
}

// State reports the three-way visual state driving wire color and dash.
func (f *Feedback) State() FeedbackState {
	if !f.Connecting || f.TargetNodeID == "" {
		return FeedbackNeutral
	}
	if f.TargetValid {
		return FeedbackValid
	}
	return FeedbackInvalid
}

// Commit adds the validated edge to the graph if the last hover verdict was
// valid, and ends the gesture either way.
func (f *Feedback) Commit(c *Composition) (Snapshot, bool) {
	defer func() { f.Connecting = false }()
	if !f.TargetValid {
		return c.Snapshot(), false
	}
	cand := f.lastValidated
	var replaced Edge
	restore := false
	if cand.ReplaceEdgeID != "" {
		replaced, restore = c.Edge(cand.ReplaceEdgeID)
		c.RemoveEdge(cand.ReplaceEdgeID)
	}
	snap, err := c.AddEdge(Edge{
		Source: Endpoint{NodeID: cand.SourceNodeID, SlotID: cand.SourceSlotID},
		Target: Endpoint{NodeID: cand.TargetNodeID, SlotID: cand.TargetSlotID},
	})
	if err != nil {
		// The graph may have changed since the hover verdict. Put the
		// replaced edge back so a failed commit loses nothing.
		if restore {
			if restored, rerr := c.AddEdge(replaced); rerr == nil {
				return restored, false
			}
		}
		return c.Snapshot(), false
	}
	return snap, true
}
