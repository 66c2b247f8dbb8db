package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/R3E-Network/orchestrator/internal/app/domain/job"
	"github.com/R3E-Network/orchestrator/internal/app/domain/workflow"
	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
	"github.com/R3E-Network/orchestrator/internal/app/jobs"
	"github.com/R3E-Network/orchestrator/internal/app/notify"
	wfcontext "github.com/R3E-Network/orchestrator/internal/app/workflow/context"
)

// dispatch executes node according to its NodeType, per spec.md §4.8's
// per-type semantics. A panic inside a node is recovered and returned as
// the node's error.
func (e *Engine) dispatch(ctx context.Context, run *workflow.Run, def workflow.Definition, node workflow.Node, wfCtx *wfcontext.Context) (result NodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = NodeResult{}, fmt.Errorf("engine: node %q panicked: %v", node.ID, r)
		}
	}()
	switch node.Type {
	case workflow.NodeTool:
		return e.dispatchTool(ctx, run, node, wfCtx)
	case workflow.NodeCondition:
		return e.dispatchCondition(node, wfCtx), nil
	case workflow.NodeDelay:
		return e.dispatchDelay(ctx, node)
	case workflow.NodeNotification:
		return e.dispatchNotification(ctx, run, node, wfCtx), nil
	case workflow.NodeParallel:
		return e.dispatchParallel(ctx, run, def, node, wfCtx)
	case workflow.NodeLoop:
		return e.dispatchLoop(ctx, run, def, node, wfCtx)
	case workflow.NodeManual:
		return e.dispatchManual(ctx, run, node, wfCtx), nil
	default:
		return NodeResult{}, fmt.Errorf("engine: unknown node type %q", node.Type)
	}
}

func (e *Engine) dispatchTool(ctx context.Context, run *workflow.Run, node workflow.Node, wfCtx *wfcontext.Context) (NodeResult, error) {
	toolName, _ := node.Data["tool_name"].(string)
	if toolName == "" {
		return NodeResult{Success: false, Error: "tool node missing tool_name"}, nil
	}

	rawParams, _ := node.Data["parameters"].(map[string]any)
	params := make(map[string]any, len(rawParams))
	for k, v := range rawParams {
		params[k] = wfCtx.Resolve(v)
	}

	timeoutSeconds := toInt(node.Data["timeout_seconds"], 300)
	priority := toInt(node.Data["priority"], 0)

	runID := run.ID
	j, err := e.jobExec.Submit(ctx, jobs.SubmitRequest{
		ProjectID:      run.ProjectID,
		ToolName:       toolName,
		Parameters:     params,
		Priority:       priority,
		TimeoutSeconds: timeoutSeconds,
		WorkflowRunID:  &runID,
	})
	if err != nil {
		return NodeResult{Success: false, Error: err.Error()}, nil
	}

	budget := time.Duration(timeoutSeconds+60) * time.Second
	deadline := time.Now().Add(budget)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		current, err := e.gateway.GetJob(ctx, j.ID)
		if err == nil && current.Status.Terminal() {
			exitCode := 0
			if current.ExitCode != nil {
				exitCode = *current.ExitCode
			}
			return NodeResult{
				Success: current.Status == job.StatusCompleted,
				Data: map[string]any{
					"job_id":    current.ID.String(),
					"exit_code": exitCode,
					"status":    string(current.Status),
				},
				Error: current.ErrorMessage,
			}, nil
		}
		if time.Now().After(deadline) {
			return NodeResult{Success: false, Error: "tool node: job poll budget exceeded"}, nil
		}
		select {
		case <-ctx.Done():
			return NodeResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) dispatchCondition(node workflow.Node, wfCtx *wfcontext.Context) NodeResult {
	condition, _ := node.Data["condition"].(string)
	trueLabel := stringOr(node.Data["true_label"], "true")
	falseLabel := stringOr(node.Data["false_label"], "false")

	result := wfCtx.Evaluate(condition)
	branch := falseLabel
	if result {
		branch = trueLabel
	}
	return NodeResult{
		Success: true,
		Branch:  branch,
		Data:    map[string]any{"result": result, "branch": branch},
	}
}

func (e *Engine) dispatchDelay(ctx context.Context, node workflow.Node) (NodeResult, error) {
	seconds := toInt(node.Data["delay_seconds"], 0)
	select {
	case <-time.After(time.Duration(seconds) * time.Second):
	case <-ctx.Done():
		return NodeResult{}, ctx.Err()
	}
	return NodeResult{Success: true, Data: map[string]any{"delay_seconds": seconds}}, nil
}

func (e *Engine) dispatchNotification(ctx context.Context, run *workflow.Run, node workflow.Node, wfCtx *wfcontext.Context) NodeResult {
	title := stringOr(wfCtx.Resolve(node.Data["title"]), "")
	message := stringOr(wfCtx.Resolve(node.Data["message"]), "")

	e.bus.Publish(eventbus.ProjectTopic(run.ProjectID), eventbus.ProjectUpdateEvent{
		EventType: "workflow_notification",
		Data:      map[string]any{"run_id": run.ID, "title": title, "message": message},
	})
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, notify.Event{Title: title, Message: message}); err != nil {
			e.log.WithError(err).Warn("engine: notification delivery failed")
		}
	}
	return NodeResult{Success: true, Data: map[string]any{"title": title, "message": message}}
}

func (e *Engine) dispatchParallel(ctx context.Context, run *workflow.Run, def workflow.Definition, node workflow.Node, wfCtx *wfcontext.Context) (NodeResult, error) {
	maxParallel := toInt(node.Data["max_parallel"], e.defaultMaxParallel)
	if maxParallel <= 0 {
		maxParallel = e.defaultMaxParallel
	}

	children := def.OutgoingEdges(node.ID)
	sem := make(chan struct{}, maxParallel)
	type branchResult struct {
		ok       bool
		approval bool
	}
	results := make(chan branchResult, len(children))

	for _, edge := range children {
		sem <- struct{}{}
		go func(childID string) {
			defer func() { <-sem }()
			childExecuted := map[string]bool{}
			approval, err := e.runFrom(ctx, run, def, wfCtx, childExecuted, childID)
			results <- branchResult{ok: err == nil, approval: approval}
		}(edge.Target)
	}

	allSucceeded := true
	anyApproval := false
	for range children {
		r := <-results
		if !r.ok {
			allSucceeded = false
		}
		if r.approval {
			anyApproval = true
		}
	}

	data := map[string]any{"children": len(children)}
	if anyApproval {
		data["approval_required"] = true
	}
	return NodeResult{Success: allSucceeded, Data: data}, nil
}

func (e *Engine) dispatchLoop(ctx context.Context, run *workflow.Run, def workflow.Definition, node workflow.Node, wfCtx *wfcontext.Context) (NodeResult, error) {
	loopType := stringOr(node.Data["loop_type"], "count")
	continueOnError := false
	if v, ok := node.Data["continue_on_error"].(bool); ok {
		continueOnError = v
	}
	loopID := node.ID

	var items []any
	switch loopType {
	case "items":
		items = resolveLoopItems(node, wfCtx)
	default:
		iterations := toInt(node.Data["iterations"], 0)
		items = make([]any, iterations)
	}

	bodyTargets := bodyEdgeTargets(def, node)

	for i, item := range items {
		select {
		case <-ctx.Done():
			return NodeResult{}, ctx.Err()
		default:
		}

		wfCtx.Set("loop_index", i)
		wfCtx.Set("loop_item", item)
		wfCtx.Set("loop_total", len(items))
		wfCtx.Set(fmt.Sprintf("loop_%s_index", loopID), i)
		wfCtx.Set(fmt.Sprintf("loop_%s_item", loopID), item)

		iterExecuted := map[string]bool{}
		for _, targetID := range bodyTargets {
			approval, err := e.runFrom(ctx, run, def, wfCtx, iterExecuted, targetID)
			if approval {
				return NodeResult{Success: false, Error: "manual approval nodes are forbidden inside loops"}, nil
			}
			if err != nil {
				if !continueOnError {
					clearLoopContext(wfCtx, loopID)
					return NodeResult{Success: false, Error: err.Error()}, nil
				}
				break
			}
		}
	}

	clearLoopContext(wfCtx, loopID)
	return NodeResult{Success: true, Data: map[string]any{"iterations": len(items)}}, nil
}

func clearLoopContext(wfCtx *wfcontext.Context, loopID string) {
	wfCtx.Delete("loop_index")
	wfCtx.Delete("loop_item")
	wfCtx.Delete("loop_total")
	wfCtx.Delete(fmt.Sprintf("loop_%s_index", loopID))
	wfCtx.Delete(fmt.Sprintf("loop_%s_item", loopID))
}

func resolveLoopItems(node workflow.Node, wfCtx *wfcontext.Context) []any {
	if src, ok := node.Data["items_source"].(string); ok && src != "" {
		if v, ok := wfCtx.ResolvePath(src); ok {
			if list, ok := v.([]any); ok {
				return list
			}
		}
		return nil
	}
	if list, ok := node.Data["items"].([]any); ok {
		return list
	}
	return nil
}

// bodyEdgeTargets returns the direct successors reachable via edges labelled
// "body" (or unlabelled), per spec.md §4.8's Loop node semantics.
func bodyEdgeTargets(def workflow.Definition, node workflow.Node) []string {
	var out []string
	for _, edge := range def.OutgoingEdges(node.ID) {
		if edge.Label == "" || edge.Label == "body" {
			out = append(out, edge.Target)
		}
	}
	return out
}

func (e *Engine) dispatchManual(ctx context.Context, run *workflow.Run, node workflow.Node, wfCtx *wfcontext.Context) NodeResult {
	title := stringOr(wfCtx.Resolve(node.Data["title"]), "")
	message := stringOr(wfCtx.Resolve(node.Data["message"]), "")
	options := node.Data["options"]

	e.bus.Publish(eventbus.ProjectTopic(run.ProjectID), eventbus.ProjectUpdateEvent{
		EventType: "workflow_approval_required",
		Data:      map[string]any{"run_id": run.ID, "node_id": node.ID, "title": title, "message": message, "options": options},
	})
	return NodeResult{
		Success: true,
		Data:    map[string]any{"approval_required": true, "title": title, "message": message, "options": options},
	}
}

func toInt(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i
		}
		return def
	default:
		return def
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
