package router

import "regexp"

// taskPattern pairs a task with its keyword regex. Detection walks the list
// in order and the first match wins, so MATH outranks CODE outranks the rest.
type taskPattern struct {
	task TaskType
	re   *regexp.Regexp
}

var taskPatterns = []taskPattern{
	{TaskMath, regexp.MustCompile(`(?i)\b(calcul|integral|deriv|equation|matrix|solve|polynomial|theorem|proof|algebra|geometry|statistic|probabili)\b`)},
	{TaskCode, regexp.MustCompile(`(?i)\b(code|function|class|debug|refactor|implement|script|python|javascript|typescript|rust|golang|sql|api|algorithm)\b`)},
	{TaskReasoning, regexp.MustCompile(`(?i)\b(reason|analyze|think|logic|deduce|infer|argument|evaluate|critique|compare|contrast|explain why)\b`)},
	{TaskCreative, regexp.MustCompile(`(?i)\b(write|story|poem|creative|fiction|narrative|character|plot|metaphor|imagine|invent)\b`)},
	{TaskTranslation, regexp.MustCompile(`(?i)\b(translat|convert to|in (spanish|french|portuguese|german|japanese|chinese|arabic|italian))\b`)},
	{TaskSummarization, regexp.MustCompile(`(?i)\b(summar|tldr|brief|overview|key points|main points|condense|abstract)\b`)},
}

// DetectTask classifies a prompt by keyword. Prompts matching no pattern are
// general.
func DetectTask(prompt string) TaskType {
	for _, tp := range taskPatterns {
		if tp.re.MatchString(prompt) {
			return tp.task
		}
	}
	return TaskGeneral
}
