package governor

import "strings"

// ModelRecord is one row of the static pricing table: the model's context
// window and its cost per thousand input and output tokens in USD.
type ModelRecord struct {
	MaxContextTokens int
	InputPer1K       float64
	OutputPer1K      float64
}

var modelTable = map[string]ModelRecord{
	"gpt-4o":           {MaxContextTokens: 128000, InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":      {MaxContextTokens: 128000, InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4.1":          {MaxContextTokens: 1047576, InputPer1K: 0.002, OutputPer1K: 0.008},
	"gpt-4.1-mini":     {MaxContextTokens: 1047576, InputPer1K: 0.0004, OutputPer1K: 0.0016},
	"o3-mini":          {MaxContextTokens: 200000, InputPer1K: 0.0011, OutputPer1K: 0.0044},
	"gemini-1.5-pro":   {MaxContextTokens: 2097152, InputPer1K: 0.00125, OutputPer1K: 0.005},
	"gemini-1.5-flash": {MaxContextTokens: 1048576, InputPer1K: 0.000075, OutputPer1K: 0.0003},
	"gemini-2.0-flash": {MaxContextTokens: 1048576, InputPer1K: 0.0001, OutputPer1K: 0.0004},
}

// defaultRecord covers models the table does not know.
var defaultRecord = ModelRecord{MaxContextTokens: 32000, InputPer1K: 0.01, OutputPer1K: 0.01}

// LookupModel returns the pricing record for a model name. Provider route
// prefixes like "openai/gpt-4o" are stripped before matching; unknown
// models fall back to the default record.
func LookupModel(model string) ModelRecord {
	if record, ok := modelTable[model]; ok {
		return record
	}
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		if record, ok := modelTable[model[idx+1:]]; ok {
			return record
		}
	}
	return defaultRecord
}
