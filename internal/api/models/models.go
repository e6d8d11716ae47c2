package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"1234" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Operating system and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Pool models
type PoolData struct {
	Limit    int  `json:"limit" example:"4" doc:"Maximum number of simultaneously running processes"`
	Size     int  `json:"size" example:"10" doc:"Number of processes owned by the pool"`
	Running  int  `json:"running" example:"4" doc:"Number of launched processes"`
	Queued   int  `json:"queued" example:"3" doc:"Number of processes waiting for a slot"`
	Executed int  `json:"executed" example:"3" doc:"Number of launched processes that reached a terminal state"`
	Failed   int  `json:"failed" example:"0" doc:"Number of processes that could not be spawned"`
	Empty    bool `json:"empty" example:"false" doc:"Whether the pool owns no processes"`
}

type PoolResponse struct {
	Body PoolData
}

type PoolClearRequest struct {
	Stop bool `query:"stop" default:"true" doc:"Stop launched processes before releasing them"`
}

type PoolActionData struct {
	Status  string `json:"status" example:"ok" doc:"Action status"`
	Message string `json:"message" example:"Pool cleared" doc:"Status message"`
}

type PoolActionResponse struct {
	Body PoolActionData
}

// Process models
type ProcessData struct {
	ID        string   `json:"id" example:"7b0c7f8e-2f7a-4c39-9d0e-6f8d2b1f4a11" doc:"Process identifier"`
	Args      []string `json:"args" doc:"Arguments passed to the executable"`
	Options   []string `json:"options,omitempty" doc:"Per-process options appended after the global options"`
	State     string   `json:"state" example:"launched" enum:"not_launched,launched,stopped,error,finished" doc:"Lifecycle state"`
	ExitCode  *int     `json:"exit_code,omitempty" doc:"Exit code, present once the process finished"`
	Lines     int      `json:"lines" example:"12" doc:"Number of captured stdout lines"`
	ErrLines  int      `json:"err_lines" example:"0" doc:"Number of captured stderr lines"`
	LastError string   `json:"last_error,omitempty" doc:"Last error recorded for the process"`
}

type ProcessDetailData struct {
	ProcessData
	Output []string `json:"output" doc:"Captured stdout lines"`
	Errors []string `json:"errors" doc:"Captured stderr lines"`
}

type ProcessListData struct {
	Processes []ProcessData `json:"processes" doc:"Pooled processes in insertion order"`
	Count     int           `json:"count" example:"2" doc:"Number of processes"`
}

type ProcessListResponse struct {
	Body ProcessListData
}

type ProcessCreateData struct {
	Args    []string `json:"args,omitempty" doc:"Arguments passed to the executable"`
	Command string   `json:"command,omitempty" example:"-c 'echo hi'" doc:"Arguments as a single shell-quoted line, used when args is empty"`
	Options []string `json:"options,omitempty" doc:"Per-process options"`
	Stdin   *string  `json:"stdin,omitempty" doc:"Text written to the process input once it launches, then input is closed"`
}

type ProcessCreateRequest struct {
	Body ProcessCreateData
}

type ProcessIDRequest struct {
	ID string `path:"id" example:"7b0c7f8e-2f7a-4c39-9d0e-6f8d2b1f4a11" doc:"Process identifier"`
}

type ProcessResponse struct {
	Body ProcessData
}

type ProcessDetailResponse struct {
	Body ProcessDetailData
}

// Log models
type LogsRequest struct {
	Limit int `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Maximum number of entries to return, newest last"`
}

type LogEntryData struct {
	Timestamp  time.Time      `json:"timestamp" doc:"When the entry was logged"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module,omitempty" example:"pool" doc:"Logger module"`
	Message    string         `json:"message" example:"Pool closed" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsData struct {
	Entries []LogEntryData `json:"entries" doc:"Retained log entries, oldest first"`
	Count   int            `json:"count" example:"1" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
