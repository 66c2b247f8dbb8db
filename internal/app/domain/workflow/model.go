// Package workflow holds the Workflow definition and WorkflowRun execution
// entities, including the graph (nodes/edges) types.
package workflow

import (
	"time"

	"github.com/google/uuid"
)

// NodeType enumerates the supported workflow node kinds.
type NodeType string

const (
	NodeTool         NodeType = "tool"
	NodeCondition    NodeType = "condition"
	NodeDelay        NodeType = "delay"
	NodeNotification NodeType = "notification"
	NodeParallel     NodeType = "parallel"
	NodeLoop         NodeType = "loop"
	NodeManual       NodeType = "manual"
)

// Node is one vertex of a workflow graph.
type Node struct {
	ID   string
	Type NodeType
	Data map[string]any
}

// Edge is one directed connection between two nodes. Source must not equal
// Target. Condition/Label select which successors a condition node follows.
type Edge struct {
	ID        string
	Source    string
	Target    string
	Label     string
	Condition string
}

// Definition is the node/edge graph a Workflow executes.
type Definition struct {
	Nodes []Node
	Edges []Edge
}

// NodeByID returns the node with the given id, or false if absent.
func (d Definition) NodeByID(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// OutgoingEdges returns every edge whose Source equals nodeID, in definition
// order.
func (d Definition) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Roots returns every node with no incoming edges; if none qualify, the
// first defined node is returned alone (per spec: traversal must start
// somewhere).
func (d Definition) Roots() []Node {
	hasIncoming := make(map[string]bool, len(d.Nodes))
	for _, e := range d.Edges {
		hasIncoming[e.Target] = true
	}
	var roots []Node
	for _, n := range d.Nodes {
		if !hasIncoming[n.ID] {
			roots = append(roots, n)
		}
	}
	if len(roots) == 0 && len(d.Nodes) > 0 {
		return []Node{d.Nodes[0]}
	}
	return roots
}

// Settings holds execution-tuning knobs for a Workflow.
type Settings struct {
	MaxParallel     int
	RetryFailed     bool
	TimeoutSeconds  int
}

// Workflow is a named, reusable process definition.
type Workflow struct {
	ID         uuid.UUID
	ProjectID  *uuid.UUID
	Name       string
	Definition Definition
	IsTemplate bool
	Settings   Settings
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RunStatus enumerates the lifecycle states of a WorkflowRun.
type RunStatus string

const (
	RunPending          RunStatus = "pending"
	RunRunning          RunStatus = "running"
	RunPaused           RunStatus = "paused"
	RunWaitingApproval  RunStatus = "waiting_approval"
	RunCompleted        RunStatus = "completed"
	RunFailed           RunStatus = "failed"
	RunCancelled        RunStatus = "cancelled"
)

// Terminal reports whether the run status admits no further execution.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// LogEntry is one append-only execution_log record for a node visit.
type LogEntry struct {
	NodeID      string
	NodeType    NodeType
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      map[string]any
	Error       string
	ApprovedBy  string
}

// Run is one execution instance of a Workflow.
type Run struct {
	ID            uuid.UUID
	WorkflowID    uuid.UUID
	ProjectID     uuid.UUID
	Status        RunStatus
	CurrentNodeID string
	CurrentStep   int
	Context       map[string]any
	InputParams   map[string]any
	ExecutionLog  []LogEntry
	ErrorMessage  string
	ErrorNodeID   string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
