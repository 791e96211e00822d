package graph

import "sync"

// ModelPrice is the per-million-token price for one model, in USD.
type ModelPrice struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// defaultPricing is a static reference table; callers running against
// provider pricing that has since changed should overwrite entries via
// CostTracker.SetPrice rather than forking this file.
var defaultPricing = map[string]ModelPrice{
	"claude-opus-4":      {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-sonnet-4":    {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-haiku-3.5":   {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"gpt-4o":             {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":        {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gemini-1.5-pro":     {InputPerMTok: 1.25, OutputPerMTok: 5.00},
	"gemini-1.5-flash":   {InputPerMTok: 0.075, OutputPerMTok: 0.30},
}

// CostTracker attributes token usage across a run's LLM calls to a
// running USD total, keyed by run ID and priced per model name.
type CostTracker struct {
	mu      sync.Mutex
	pricing map[string]ModelPrice
	spent   map[string]float64 // runID -> USD
}

// NewCostTracker creates a tracker seeded with the default pricing table.
func NewCostTracker() *CostTracker {
	pricing := make(map[string]ModelPrice, len(defaultPricing))
	for k, v := range defaultPricing {
		pricing[k] = v
	}
	return &CostTracker{pricing: pricing, spent: make(map[string]float64)}
}

// SetPrice overrides or adds pricing for model.
func (c *CostTracker) SetPrice(model string, price ModelPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pricing[model] = price
}

// Record attributes inputTokens/outputTokens spent on model to runID and
// returns the incremental USD cost. Unknown models cost nothing: the
// call is accepted and adds zero to runID's Spent total.
func (c *CostTracker) Record(runID, model string, inputTokens, outputTokens int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	price := c.pricing[model]
	cost := price.InputPerMTok*float64(inputTokens)/1_000_000 + price.OutputPerMTok*float64(outputTokens)/1_000_000
	c.spent[runID] += cost
	return cost
}

// Spent returns the running USD total attributed to runID.
func (c *CostTracker) Spent(runID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spent[runID]
}
