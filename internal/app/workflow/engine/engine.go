// Package engine is the Workflow Engine: it traverses a Workflow's node/edge
// graph, dispatching each node by type and persisting execution_log entries
// and context, per spec.md §4.8.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/orchestrator/internal/app/domain/workflow"
	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
	"github.com/R3E-Network/orchestrator/internal/app/jobs"
	"github.com/R3E-Network/orchestrator/internal/app/metrics"
	"github.com/R3E-Network/orchestrator/internal/app/notify"
	"github.com/R3E-Network/orchestrator/internal/app/storage"
	wfcontext "github.com/R3E-Network/orchestrator/internal/app/workflow/context"
	"github.com/R3E-Network/orchestrator/pkg/logger"
)

// errCancelled is an internal sentinel distinguishing an externally
// cancelled run from a genuine node failure; Cancel already persists the
// terminal state, so the traversal just needs to stop without overwriting.
var errCancelled = errors.New("engine: run cancelled")

// NodeResult is the outcome of dispatching one node.
type NodeResult struct {
	Success bool
	Data    map[string]any
	Error   string
	Branch  string
}

// Engine drives WorkflowRuns through their graph.
type Engine struct {
	gateway  storage.Gateway
	bus      *eventbus.Bus
	jobExec  *jobs.Executor
	notifier notify.Notifier
	log      *logger.Logger

	// pollInterval/defaultMaxParallel are overridable (tests shrink
	// pollInterval well below the spec's 2s to keep runs fast).
	pollInterval      time.Duration
	defaultMaxParallel int

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc

	// runStateMu guards mutation of a Run's ExecutionLog/CurrentNodeID/
	// CurrentStep fields and their persistence. Parallel nodes dispatch
	// sibling branches onto separate goroutines that each recurse into
	// runFrom against the *same* Run, so those mutations need a lock;
	// it is held only across the short read-modify-write sections, never
	// across a node's dispatch itself, so sibling branches still run
	// concurrently.
	runStateMu sync.Mutex
}

// New returns an Engine.
func New(gateway storage.Gateway, bus *eventbus.Bus, jobExec *jobs.Executor, notifier notify.Notifier, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("engine")
	}
	return &Engine{
		gateway:            gateway,
		bus:                bus,
		jobExec:            jobExec,
		notifier:           notifier,
		log:                log,
		pollInterval:       2 * time.Second,
		defaultMaxParallel: 5,
		cancels:            make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start creates a WorkflowRun for wf and executes it synchronously to
// completion, suspension, or failure. Callers that want non-blocking
// behavior should invoke Start from their own goroutine (the Task Queue,
// typically).
func (e *Engine) Start(ctx context.Context, wf workflow.Workflow, inputParams map[string]any, projectID uuid.UUID) (workflow.Run, error) {
	now := time.Now()
	run := workflow.Run{
		ID:          uuid.New(),
		WorkflowID:  wf.ID,
		ProjectID:   projectID,
		Status:      workflow.RunPending,
		InputParams: inputParams,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := e.gateway.CreateRun(ctx, run)
	if err != nil {
		return workflow.Run{}, fmt.Errorf("engine: create run: %w", err)
	}

	wfCtx := wfcontext.New(standardBindings(created, wf))
	e.execute(ctx, &created, wf.Definition, wfCtx, map[string]bool{})
	return created, nil
}

// Resume continues a waiting_approval run from nodeID's successors, per
// spec.md §4.8's Resume contract.
func (e *Engine) Resume(ctx context.Context, runID uuid.UUID, wf workflow.Workflow, nodeID string, approvalData map[string]any) (workflow.Run, error) {
	run, err := e.gateway.GetRun(ctx, runID)
	if err != nil {
		return workflow.Run{}, fmt.Errorf("engine: resume: load run: %w", err)
	}
	if run.Status != workflow.RunWaitingApproval {
		return run, fmt.Errorf("engine: resume: run %s is not waiting_approval", runID)
	}

	wfCtx := wfcontext.New(run.Context)
	for k, v := range standardBindings(run, wf) {
		wfCtx.Set(k, v)
	}
	wfCtx.Set(fmt.Sprintf("node_%s_result", nodeID), map[string]any{"approved": true, "approval_data": approvalData})
	wfCtx.Set(fmt.Sprintf("node_%s_approval", nodeID), approvalData)

	approvedBy, _ := approvalData["approved_by"].(string)
	for i := range run.ExecutionLog {
		if run.ExecutionLog[i].NodeID == nodeID && run.ExecutionLog[i].ApprovedBy == "" {
			run.ExecutionLog[i].ApprovedBy = approvedBy
		}
	}

	executed := map[string]bool{nodeID: true}
	run.Status = workflow.RunRunning
	run.UpdatedAt = time.Now()
	if _, err := e.gateway.UpdateRun(ctx, run); err != nil {
		return workflow.Run{}, fmt.Errorf("engine: resume: persist running: %w", err)
	}

	node, ok := wf.Definition.NodeByID(nodeID)
	if !ok {
		return run, fmt.Errorf("engine: resume: node %q not found", nodeID)
	}
	successors := e.computeSuccessors(wf.Definition, node, NodeResult{Success: true})
	e.runSuccessors(ctx, &run, wf.Definition, wfCtx, executed, successors)
	return run, nil
}

// Cancel marks run cancelled (idempotent if already terminal) and signals
// any in-flight traversal for it to stop.
func (e *Engine) Cancel(ctx context.Context, runID uuid.UUID) error {
	run, err := e.gateway.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("engine: cancel: load run: %w", err)
	}
	if run.Status.Terminal() {
		return nil
	}

	now := time.Now()
	run.Status = workflow.RunCancelled
	run.CompletedAt = &now
	run.UpdatedAt = now
	if _, err := e.gateway.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("engine: cancel: persist: %w", err)
	}
	e.bus.Publish(eventbus.ProjectTopic(run.ProjectID), eventbus.ProjectUpdateEvent{
		EventType: "workflow_status",
		Data:      map[string]any{"run_id": run.ID, "status": "cancelled"},
	})

	e.mu.Lock()
	cancel := e.cancels[runID]
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func standardBindings(run workflow.Run, wf workflow.Workflow) map[string]any {
	return map[string]any{
		"project_id":      run.ProjectID,
		"workflow_id":      wf.ID,
		"workflow_run_id":  run.ID,
		"workflow_name":    wf.Name,
		"input_params":     run.InputParams,
	}
}

// execute runs run's graph from its roots to completion or suspension,
// persisting the terminal status.
func (e *Engine) execute(ctx context.Context, run *workflow.Run, def workflow.Definition, wfCtx *wfcontext.Context, executed map[string]bool) {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[run.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, run.ID)
		e.mu.Unlock()
		cancel()
	}()

	now := time.Now()
	run.Status = workflow.RunRunning
	run.StartedAt = &now
	run.UpdatedAt = now
	if updated, err := e.gateway.UpdateRun(ctx, *run); err == nil {
		*run = updated
	}

	roots := def.Roots()
	var runErr error
	var suspended bool
	for _, root := range roots {
		approval, err := e.runFrom(runCtx, run, def, wfCtx, executed, root.ID)
		if err != nil {
			runErr = err
			break
		}
		if approval {
			suspended = true
			break
		}
	}

	// Cancel() may have already persisted a terminal status while the
	// traversal above was unwinding; never overwrite a terminal run.
	current, reloadErr := e.gateway.GetRun(ctx, run.ID)
	if reloadErr == nil && current.Status.Terminal() {
		*run = current
		return
	}

	completedAt := time.Now()
	run.Context = wfCtx.Snapshot()
	run.UpdatedAt = completedAt
	switch {
	case errors.Is(runErr, errCancelled):
		return
	case runErr != nil:
		run.Status = workflow.RunFailed
		run.ErrorMessage = runErr.Error()
		run.CompletedAt = &completedAt
	case suspended:
		run.Status = workflow.RunWaitingApproval
	default:
		run.Status = workflow.RunCompleted
		run.CompletedAt = &completedAt
	}

	if updated, err := e.gateway.UpdateRun(ctx, *run); err == nil {
		*run = updated
	}
	e.bus.Publish(eventbus.ProjectTopic(run.ProjectID), eventbus.ProjectUpdateEvent{
		EventType: "workflow_status",
		Data:      map[string]any{"run_id": run.ID, "status": string(run.Status)},
	})
}

// runSuccessors drives a batch of successor node ids without the top-level
// bookkeeping execute performs (used by Resume, which re-enters mid-graph).
func (e *Engine) runSuccessors(ctx context.Context, run *workflow.Run, def workflow.Definition, wfCtx *wfcontext.Context, executed map[string]bool, successors []string) {
	var runErr error
	var suspended bool
	for _, succID := range successors {
		approval, err := e.runFrom(ctx, run, def, wfCtx, executed, succID)
		if err != nil {
			runErr = err
			break
		}
		if approval {
			suspended = true
			break
		}
	}

	completedAt := time.Now()
	run.Context = wfCtx.Snapshot()
	run.UpdatedAt = completedAt
	switch {
	case runErr != nil:
		run.Status = workflow.RunFailed
		run.ErrorMessage = runErr.Error()
		run.CompletedAt = &completedAt
	case suspended:
		run.Status = workflow.RunWaitingApproval
	default:
		run.Status = workflow.RunCompleted
		run.CompletedAt = &completedAt
	}
	if updated, err := e.gateway.UpdateRun(ctx, *run); err == nil {
		*run = updated
	}
}

// runFrom implements the per-node execution protocol of spec.md §4.8,
// points 1-7, recursing into successors.
func (e *Engine) runFrom(ctx context.Context, run *workflow.Run, def workflow.Definition, wfCtx *wfcontext.Context, executed map[string]bool, nodeID string) (approvalRequired bool, err error) {
	if executed[nodeID] {
		return false, nil
	}
	select {
	case <-ctx.Done():
		return false, errCancelled
	default:
	}

	node, ok := def.NodeByID(nodeID)
	if !ok {
		return false, fmt.Errorf("engine: node %q not found", nodeID)
	}

	started := time.Now()
	e.runStateMu.Lock()
	run.ExecutionLog = append(run.ExecutionLog, workflow.LogEntry{
		NodeID: nodeID, NodeType: node.Type, Status: "running", StartedAt: started,
	})
	logIdx := len(run.ExecutionLog) - 1
	run.CurrentNodeID = nodeID
	run.CurrentStep++
	e.persistProgress(ctx, run, wfCtx)
	e.runStateMu.Unlock()
	e.bus.Publish(eventbus.ProjectTopic(run.ProjectID), eventbus.ProjectUpdateEvent{
		EventType: "workflow_node_status",
		Data:      map[string]any{"run_id": run.ID, "node_id": nodeID, "status": "running"},
	})

	result, derr := e.dispatch(ctx, run, def, node, wfCtx)

	completedAt := time.Now()
	dispatchStatus := "completed"
	switch {
	case derr != nil, !result.Success:
		dispatchStatus = "failed"
	}
	metrics.RecordWorkflowNodeDispatch(string(node.Type), dispatchStatus, completedAt.Sub(started))

	e.runStateMu.Lock()
	last := &run.ExecutionLog[logIdx]
	last.CompletedAt = &completedAt
	last.Result = result.Data
	switch {
	case derr != nil:
		last.Status = "failed"
		last.Error = derr.Error()
	case !result.Success:
		last.Status = "failed"
		last.Error = result.Error
	default:
		last.Status = "completed"
	}
	e.persistProgress(ctx, run, wfCtx)
	e.runStateMu.Unlock()

	approvalRequired = truthy(result.Data["approval_required"])
	if !approvalRequired {
		wfCtx.Set(fmt.Sprintf("node_%s_result", nodeID), result.Data)
		executed[nodeID] = true
	}

	if derr != nil {
		return false, derr
	}
	if !result.Success {
		return false, fmt.Errorf("engine: node %q failed: %s", nodeID, result.Error)
	}
	if approvalRequired {
		return true, nil
	}

	successors := e.computeSuccessors(def, node, result)
	for _, succID := range successors {
		needsApproval, err2 := e.runFrom(ctx, run, def, wfCtx, executed, succID)
		if err2 != nil {
			return false, err2
		}
		if needsApproval {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) persistProgress(ctx context.Context, run *workflow.Run, wfCtx *wfcontext.Context) {
	// A run that Cancel has already made terminal is not written over.
	if current, err := e.gateway.GetRun(ctx, run.ID); err == nil && current.Status.Terminal() {
		return
	}
	run.Context = wfCtx.Snapshot()
	run.UpdatedAt = time.Now()
	if updated, err := e.gateway.UpdateRun(ctx, *run); err == nil {
		*run = updated
	}
}

// computeSuccessors implements spec.md §4.8 point 6. Parallel and Loop
// nodes already consume most of their own outgoing edges internally (as
// the fan-out branch set / loop body, dispatched inside dispatchParallel
// and dispatchLoop); treating those same edges as ordinary "next node"
// successors here would re-run every branch or body node a second time,
// sequentially, right after the internal dispatch finished. A Loop node's
// `done`/`complete`-labelled edges are the one exception: they are
// post-loop successors, never part of the body, so they still flow
// through here once the loop has fully finished iterating.
func (e *Engine) computeSuccessors(def workflow.Definition, node workflow.Node, result NodeResult) []string {
	if node.Type == workflow.NodeLoop {
		var out []string
		for _, edge := range def.OutgoingEdges(node.ID) {
			if edge.Label == "done" || edge.Label == "complete" {
				out = append(out, edge.Target)
			}
		}
		return out
	}
	if node.Type == workflow.NodeParallel {
		return nil
	}

	edges := def.OutgoingEdges(node.ID)
	if node.Type != workflow.NodeCondition {
		out := make([]string, 0, len(edges))
		for _, e := range edges {
			out = append(out, e.Target)
		}
		return out
	}

	var labeled []string
	var unlabeled []string
	for _, edge := range edges {
		if edge.Label != "" && edge.Label == result.Branch {
			labeled = append(labeled, edge.Target)
		}
		if edge.Label == "" {
			unlabeled = append(unlabeled, edge.Target)
		}
	}
	if len(labeled) > 0 {
		return labeled
	}
	return unlabeled
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
