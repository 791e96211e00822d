package llm

import "context"

// CostRecorder attributes token usage on one model call to a run. It is
// satisfied by *graph.CostTracker without that package being imported
// here: llm stays free of a dependency on graph, and graph stays free
// of a dependency on llm.
type CostRecorder interface {
	Record(runID, model string, inputTokens, outputTokens int) float64
}

// Instrumented wraps a ChatModel so every successful call reports its
// token usage to Tracker under ModelName/RunID. A failed call (non-nil
// error) is never recorded, since ChatOut carries no usage in that
// case.
type Instrumented struct {
	Model     ChatModel
	Tracker   CostRecorder
	ModelName string
	RunID     string
}

// Chat implements ChatModel.
func (i *Instrumented) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	out, err := i.Model.Chat(ctx, messages, tools)
	if err != nil {
		return out, err
	}
	if i.Tracker != nil {
		i.Tracker.Record(i.RunID, i.ModelName, out.InputTokens, out.OutputTokens)
	}
	return out, nil
}
