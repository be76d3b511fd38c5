// Package flow holds the canonical in-memory model of a composition:
// nodes, edges, selection and the connection rules that gate edge creation.
package flow

// Category classifies a node by what it contributes to the compiled script.
type Category string

const (
	CategoryProgram   Category = "program"
	CategoryModel     Category = "model"
	CategoryPrimitive Category = "primitive"
	CategoryUtility   Category = "utility"
)

// PrimitiveKind selects the control-flow construct a primitive node compiles to.
type PrimitiveKind string

const (
	PrimitiveLoop        PrimitiveKind = "loop"
	PrimitiveConditional PrimitiveKind = "conditional"
	PrimitiveMerge       PrimitiveKind = "merge"
	PrimitiveMap         PrimitiveKind = "map"
	PrimitiveFilter      PrimitiveKind = "filter"
)

// UtilityKind selects the role of a utility node.
type UtilityKind string

const (
	UtilityInput    UtilityKind = "input"
	UtilityOutput   UtilityKind = "output"
	UtilityNote     UtilityKind = "note"
	UtilityConstant UtilityKind = "constant"
	UtilityDebug    UtilityKind = "debug"
)

// NodeState is the execution-state tag of a node. It is written only by
// run tracking consumers, never by the compiler or the validator.
type NodeState string

const (
	NodeIdle      NodeState = "idle"
	NodeQueued    NodeState = "queued"
	NodeRunning   NodeState = "running"
	NodeSucceeded NodeState = "succeeded"
	NodeFailed    NodeState = "failed"
	NodeSkipped   NodeState = "skipped"
	NodeCancelled NodeState = "cancelled"
)

// Slot is a named input or output port on a node.
type Slot struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Type is the declared value type. Empty means unspecified; two
	// connected slots must have equal types unless one side is unspecified.
	Type string `json:"type,omitempty"`
	// Default is an optional compile-time default literal for input slots.
	Default string `json:"default,omitempty"`
}

// AssetRef points a program or model node at an external catalog asset.
type AssetRef struct {
	AssetID string `json:"asset_id"`
	Version string `json:"version"`
}

// Payload carries the category-specific part of a node. Exactly the fields
// matching the node's category are meaningful; the rest stay zero.
type Payload struct {
	Primitive PrimitiveKind `json:"primitive,omitempty"`
	Utility   UtilityKind   `json:"utility,omitempty"`
	Asset     *AssetRef     `json:"asset,omitempty"`
	// Value is the literal for constant nodes.
	Value string `json:"value,omitempty"`
	// Text is the comment body for note nodes.
	Text string `json:"text,omitempty"`
}

// Position is a canvas coordinate. The core never interprets it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one vertex of a composition.
type Node struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Category Category  `json:"category"`
	Payload  Payload   `json:"payload"`
	Inputs   []Slot    `json:"inputs"`
	Outputs  []Slot    `json:"outputs"`
	Position Position  `json:"position"`
	State    NodeState `json:"state"`
	// Seq is the creation sequence number assigned by the composition.
	// It is the stable tie-break key for compilation ordering.
	Seq int `json:"seq"`
}

// Input returns the input slot with the given id.
func (n *Node) Input(slotID string) (Slot, bool) {
	for _, s := range n.Inputs {
		if s.ID == slotID {
			return s, true
		}
	}
	return Slot{}, false
}

// Output returns the output slot with the given id.
func (n *Node) Output(slotID string) (Slot, bool) {
	for _, s := range n.Outputs {
		if s.ID == slotID {
			return s, true
		}
	}
	return Slot{}, false
}

// Endpoint names one side of an edge.
type Endpoint struct {
	NodeID string `json:"node_id"`
	SlotID string `json:"slot_id"`
}

// Edge is a directed connection from an output slot to an input slot.
type Edge struct {
	ID     string   `json:"id"`
	Source Endpoint `json:"source"`
	Target Endpoint `json:"target"`
}

// Snapshot is the plain, persistable form of a composition. Nodes appear in
// creation order and edges in insertion order so that serialization and
// compilation are deterministic.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}
