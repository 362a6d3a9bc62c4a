package engine

import (
	"errors"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/capability"
	"github.com/rhuss/relay/pkg/dispatch"
	"github.com/rhuss/relay/pkg/oracle"
	"github.com/rhuss/relay/pkg/planner"
	"github.com/rhuss/relay/pkg/task"
)

func toAPICapability(d capability.Descriptor) api.Capability {
	return api.Capability{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
		Timeout:     d.Timeout,
		Category:    string(d.Category),
	}
}

func toInvokeResponse(out *dispatch.Outcome) *api.InvokeResponse {
	if out.Async() {
		return &api.InvokeResponse{TaskID: out.TaskID, Status: string(out.Status)}
	}
	return &api.InvokeResponse{
		Success:       out.Success,
		Result:        out.Result,
		Error:         out.Error,
		ExecutionTime: out.Duration.Seconds(),
	}
}

func toAPITask(t *task.Task) api.Task {
	return api.Task{
		TaskID:         t.ID,
		CapabilityName: t.CapabilityName,
		Arguments:      t.Arguments,
		Status:         string(t.Status),
		Result:         t.Result,
		Error:          t.Error,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func toChatStep(s planner.Step) api.ChatStep {
	out := api.ChatStep{Capability: s.CapabilityName, Arguments: s.Arguments}
	if o := s.Outcome; o != nil {
		out.Success = o.Success
		out.Result = o.Result
		out.Error = o.Error
		out.TaskID = o.TaskID
		out.Mode = string(o.Mode)
		out.Duration = o.Duration.Seconds()
	}
	return out
}

func toChatSteps(steps []planner.Step) []api.ChatStep {
	out := make([]api.ChatStep, len(steps))
	for i, s := range steps {
		out[i] = toChatStep(s)
	}
	return out
}

func toChatResponse(session string, res *planner.Result) *api.ChatResponse {
	resp := &api.ChatResponse{
		SessionID: session,
		Reply:     res.Reply,
		State:     string(res.State),
		Depth:     res.Depth,
		Steps:     toChatSteps(res.Steps),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return resp
}

// chainError classifies the failure of an aborted chain.
func chainError(err error) *api.APIError {
	var invalid *planner.InvalidDecisionError
	switch {
	case errors.Is(err, planner.ErrChainDepthExceeded):
		return &api.APIError{Type: api.ErrorTypeServerError, Code: "chain_depth_exceeded", Message: err.Error()}
	case errors.As(err, &invalid):
		return &api.APIError{Type: api.ErrorTypeInvalidRequest, Code: "invalid_decision", Param: "capability", Message: err.Error()}
	case errors.Is(err, oracle.ErrUnavailable):
		return &api.APIError{Type: api.ErrorTypeOracleError, Code: "oracle_unavailable", Message: err.Error()}
	default:
		return api.NewServerError(err.Error())
	}
}
