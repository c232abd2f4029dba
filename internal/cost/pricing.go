// Package cost prices model calls, accumulates tenant spend in Redis, and
// enforces monthly budget caps.
package cost

// perMillion holds USD prices per million input and output tokens.
type perMillion struct {
	in  float64
	out float64
}

var pricing = map[string]perMillion{
	"gpt-4o":                     {in: 2.50, out: 10.00},
	"gpt-4o-mini":                {in: 0.15, out: 0.60},
	"o1-preview":                 {in: 15.0, out: 60.0},
	"claude-3-5-sonnet-20241022": {in: 3.0, out: 15.0},
	"claude-3-haiku-20240307":    {in: 0.25, out: 1.25},
	"deepseek-reasoner":          {in: 0.55, out: 2.19},
	"deepseek-chat":              {in: 0.14, out: 0.28},
	"gemini-1.5-pro":             {in: 7.00, out: 21.00},
	"llama-3.3-70b":              {in: 0.90, out: 0.90},
}

// Compute returns the USD cost of a call. Models missing from the pricing
// table cost zero.
func Compute(model string, inputTokens, outputTokens int) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)*p.in + float64(outputTokens)*p.out) / 1_000_000
}

// Priced reports whether the model has a pricing entry.
func Priced(model string) bool {
	_, ok := pricing[model]
	return ok
}
