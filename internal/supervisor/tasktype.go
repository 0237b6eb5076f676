package supervisor

import (
	"strings"
	"time"
)

// TaskType buckets a prompt by the kind of work it asks for. The bucket
// picks the inactivity threshold: a refactor is allowed far longer silent
// stretches than a file rename.
type TaskType string

const (
	TaskFileOperation  TaskType = "file_operation"
	TaskCodeGeneration TaskType = "code_generation"
	TaskAnalysis       TaskType = "analysis"
	TaskRefactoring    TaskType = "refactoring"
	TaskSearch         TaskType = "search"
	TaskUnknown        TaskType = "unknown"
)

var inactivityThresholds = map[TaskType]time.Duration{
	TaskFileOperation:  60 * time.Second,
	TaskCodeGeneration: 120 * time.Second,
	TaskAnalysis:       180 * time.Second,
	TaskRefactoring:    240 * time.Second,
	TaskSearch:         90 * time.Second,
	TaskUnknown:        120 * time.Second,
}

// InactivityThreshold returns how long a task of the given type may go
// without producing output before it counts as stalled.
func InactivityThreshold(t TaskType) time.Duration {
	if d, ok := inactivityThresholds[t]; ok {
		return d
	}
	return inactivityThresholds[TaskUnknown]
}

var taskTypeKeywords = []struct {
	taskType TaskType
	keywords []string
}{
	{TaskRefactoring, []string{"refactor", "restructure", "rewrite", "重构", "重写"}},
	{TaskSearch, []string{"search", "find", "locate", "grep", "查找", "搜索", "找"}},
	{TaskAnalysis, []string{"analyze", "analyse", "review", "explain", "investigate", "debug", "分析", "检查", "解释", "调试"}},
	{TaskFileOperation, []string{"rename", "move", "copy", "delete file", "create file", "重命名", "移动", "复制"}},
	{TaskCodeGeneration, []string{"write", "implement", "create", "add", "generate", "build", "fix", "编写", "实现", "创建", "添加", "生成", "修复"}},
}

// InferTaskType classifies a prompt by keyword. First matching bucket wins;
// the ordering puts the more specific buckets before the catch-all
// code-generation verbs.
func InferTaskType(prompt string) TaskType {
	lower := strings.ToLower(prompt)
	for _, entry := range taskTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.taskType
			}
		}
	}
	return TaskUnknown
}
