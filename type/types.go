package sttypes

// Jobs 任务文件的顶层结构
type Jobs struct {
	Parallel int        `json:"parallel"`
	Matte    []MatteJob `json:"matte"`
	Patch    []PatchJob `json:"patch"`
}

// MatteJob 单张图片的抠图配置
type MatteJob struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	// Tolerance 为 nil 时使用默认值 30，显式的 0 表示精确匹配
	Tolerance *int `json:"tolerance"`
	// Seeds 为空时使用四个角
	Seeds [][]int `json:"seeds"`
	// Reference 背景色（如 "#ffffff"），为空时在第一个种子处取样
	Reference string `json:"reference"`
	ClearRGB  bool   `json:"clearRGB"`
	MaxWidth  int    `json:"maxWidth"`
	WebP      bool   `json:"webp"`
	Quality   *int   `json:"quality"`
	Backup    bool   `json:"backup"`
}

// PatchRule 一条文本替换规则，Literal 与 Pattern 二选一
type PatchRule struct {
	Name     string `json:"name"`
	Literal  string `json:"literal"`
	Pattern  string `json:"pattern"`
	Replace  string `json:"replace"`
	Optional bool   `json:"optional"`
}

// PatchJob 对一组 HTML 文件应用同一组规则
type PatchJob struct {
	// Dir 为空时取任务文件所在目录
	Dir    string      `json:"dir"`
	Files  []string    `json:"files"`
	Glob   string      `json:"glob"`
	Rules  []PatchRule `json:"rules"`
	Backup bool        `json:"backup"`
}

// Result 批处理中单个条目的结果
type Result struct {
	Name string
	Note string
	Err  error
}

// LinkIssue 链接检查发现的问题
type LinkIssue struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref,omitempty"`
}

// LinkReport 单个 HTML 文件的检查结果
type LinkReport struct {
	File   string      `json:"file"`
	Issues []LinkIssue `json:"issues"`
}

// Dimensions ffprobe 报告的图片尺寸
type Dimensions struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Codec  string `json:"codec"`
}
