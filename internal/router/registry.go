package router

// Mode is the orchestration mode requested by the caller.
type Mode string

const (
	ModeChat       Mode = "chat"
	ModeCode       Mode = "code"
	ModeReasoning  Mode = "reasoning"
	ModeSearchRAG  Mode = "search_rag"
	ModeMultiModel Mode = "multi_model"
	ModeFast       Mode = "fast"
	ModeCreative   Mode = "creative"
)

// TaskType is the category detected from prompt keywords.
type TaskType string

const (
	TaskGeneral       TaskType = "general"
	TaskCode          TaskType = "code"
	TaskMath          TaskType = "math"
	TaskReasoning     TaskType = "reasoning"
	TaskCreative      TaskType = "creative"
	TaskSearch        TaskType = "search"
	TaskSummarization TaskType = "summarization"
	TaskTranslation   TaskType = "translation"
)

// ModelInfo describes a registry entry.
type ModelInfo struct {
	ID       string
	Provider string
	Strength []string
	Latency  string
	CostTier string
}

// Registry is the ordered catalog of routable models. Order matters: the
// first entry is the fallback of last resort.
var Registry = []ModelInfo{
	{ID: "gpt-4o", Provider: "openai", Strength: []string{"general", "code", "reasoning"}, Latency: "medium", CostTier: "premium"},
	{ID: "gpt-4o-mini", Provider: "openai", Strength: []string{"general", "fast"}, Latency: "fast", CostTier: "cheap"},
	{ID: "o1-preview", Provider: "openai", Strength: []string{"reasoning", "math"}, Latency: "slow", CostTier: "expensive"},
	{ID: "claude-3-5-sonnet-20241022", Provider: "anthropic", Strength: []string{"general", "code", "creative", "reasoning"}, Latency: "medium", CostTier: "premium"},
	{ID: "claude-3-haiku-20240307", Provider: "anthropic", Strength: []string{"fast", "summarization"}, Latency: "fast", CostTier: "cheap"},
	{ID: "deepseek-reasoner", Provider: "deepseek", Strength: []string{"reasoning", "math", "code"}, Latency: "medium", CostTier: "cheap"},
	{ID: "deepseek-chat", Provider: "deepseek", Strength: []string{"general", "code"}, Latency: "fast", CostTier: "cheap"},
	{ID: "gemini-1.5-pro", Provider: "google", Strength: []string{"general", "search", "creative"}, Latency: "slow", CostTier: "expensive"},
	{ID: "llama-3.3-70b", Provider: "groq", Strength: []string{"general", "fast"}, Latency: "fast", CostTier: "cheap"},
	{ID: "mistral-large-latest", Provider: "mistral", Strength: []string{"general", "code"}, Latency: "medium", CostTier: "medium"},
}

var registryByID = func() map[string]ModelInfo {
	m := make(map[string]ModelInfo, len(Registry))
	for _, info := range Registry {
		m[info.ID] = info
	}
	return m
}()

var modeModels = map[Mode][]string{
	ModeChat:       {"claude-3-5-sonnet-20241022", "gpt-4o", "deepseek-chat"},
	ModeCode:       {"claude-3-5-sonnet-20241022", "deepseek-reasoner", "gpt-4o"},
	ModeReasoning:  {"deepseek-reasoner", "o1-preview", "claude-3-5-sonnet-20241022"},
	ModeSearchRAG:  {"gpt-4o", "claude-3-5-sonnet-20241022"},
	ModeMultiModel: {"gpt-4o", "claude-3-5-sonnet-20241022", "deepseek-reasoner"},
	ModeFast:       {"gpt-4o-mini", "claude-3-haiku-20240307", "llama-3.3-70b"},
	ModeCreative:   {"claude-3-5-sonnet-20241022", "gpt-4o", "gemini-1.5-pro"},
}

var taskModels = map[TaskType][]string{
	TaskMath:          {"deepseek-reasoner", "o1-preview", "gpt-4o"},
	TaskCode:          {"claude-3-5-sonnet-20241022", "deepseek-reasoner", "gpt-4o"},
	TaskReasoning:     {"deepseek-reasoner", "o1-preview", "claude-3-5-sonnet-20241022"},
	TaskCreative:      {"claude-3-5-sonnet-20241022", "gpt-4o", "gemini-1.5-pro"},
	TaskTranslation:   {"gpt-4o", "claude-3-5-sonnet-20241022"},
	TaskSummarization: {"claude-3-haiku-20240307", "gpt-4o-mini"},
	TaskGeneral:       {"gpt-4o", "claude-3-5-sonnet-20241022"},
}

// Lookup returns the registry entry for a model ID.
func Lookup(modelID string) (ModelInfo, bool) {
	info, ok := registryByID[modelID]
	return info, ok
}

// Provider returns the provider serving a model, or "openai" for unknown IDs.
func Provider(modelID string) string {
	if info, ok := registryByID[modelID]; ok {
		return info.Provider
	}
	return "openai"
}

// ParseMode normalizes a mode string. Unknown values fall back to chat.
func ParseMode(s string) Mode {
	m := Mode(s)
	if _, ok := modeModels[m]; ok {
		return m
	}
	return ModeChat
}
