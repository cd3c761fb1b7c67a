package provider

// ModelPrice is cost per million tokens for a model, adapted from
// internal/agent/tokens.go's ModelPricing.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultPricing mirrors internal/agent/tokens.go's DefaultModelPricing
// table, generalized to the {provider_id, model} key the Pricing interface
// uses.
var DefaultPricing = map[string]ModelPrice{
	"claude-opus-4-5-20251101":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// TablePricing is a Pricing implementation backed by a static lookup table.
// It reports ok=false for any model it has no entry for, letting Client fall
// back to FallbackAveragePricePerMillion and emit a pricing=fallback event.
type TablePricing struct {
	table map[string]ModelPrice
}

// NewTablePricing returns a TablePricing over table. A nil table falls back
// to DefaultPricing.
func NewTablePricing(table map[string]ModelPrice) *TablePricing {
	if table == nil {
		table = DefaultPricing
	}
	return &TablePricing{table: table}
}

// Price implements Pricing. Cost is returned in hundredths of a cent
// (minor units of 1e-4 USD) so integer PhaseUsage.CostMinorUnits fields
// never lose sub-cent precision on small calls.
func (p *TablePricing) Price(providerID, model string, inputTokens, outputTokens int64) (int64, bool) {
	price, ok := p.table[model]
	if !ok {
		return 0, false
	}
	cost := float64(inputTokens)/1_000_000*price.InputPerMillion + float64(outputTokens)/1_000_000*price.OutputPerMillion
	return int64(cost * 10000), true
}
