package client

import "time"

// PingResult carries what the daemon reports in its ping response headers.
type PingResult struct {
	APIVersion string
	OSType     string
	Status     string
}

// IDResponse is returned by calls that create an object.
type IDResponse struct {
	ID string `json:"Id"`
}

// ExecConfig describes a process to run inside a container.
type ExecConfig struct {
	AttachStdin  bool     `json:"AttachStdin"`
	AttachStdout bool     `json:"AttachStdout"`
	AttachStderr bool     `json:"AttachStderr"`
	DetachKeys   string   `json:"DetachKeys,omitempty"`
	Tty          bool     `json:"Tty"`
	Env          []string `json:"Env,omitempty"`
	Cmd          []string `json:"Cmd"`
	Privileged   bool     `json:"Privileged,omitempty"`
	User         string   `json:"User,omitempty"`
	WorkingDir   string   `json:"WorkingDir,omitempty"`
}

// ExecStartConfig controls how an exec instance is started.
type ExecStartConfig struct {
	Detach      bool     `json:"Detach"`
	Tty         bool     `json:"Tty"`
	ConsoleSize *[2]uint `json:"ConsoleSize,omitempty"`
}

// ExecInspect is the state of an exec instance.
type ExecInspect struct {
	ID            string        `json:"ID"`
	ContainerID   string        `json:"ContainerID"`
	Running       bool          `json:"Running"`
	ExitCode      *int          `json:"ExitCode"`
	Pid           int           `json:"Pid"`
	OpenStdin     bool          `json:"OpenStdin"`
	OpenStdout    bool          `json:"OpenStdout"`
	OpenStderr    bool          `json:"OpenStderr"`
	CanRemove     bool          `json:"CanRemove"`
	DetachKeys    string        `json:"DetachKeys"`
	ProcessConfig ProcessConfig `json:"ProcessConfig"`
}

// ProcessConfig is the command an exec instance runs.
type ProcessConfig struct {
	Privileged bool     `json:"privileged"`
	User       string   `json:"user"`
	Tty        bool     `json:"tty"`
	Entrypoint string   `json:"entrypoint"`
	Arguments  []string `json:"arguments"`
}

// ContainerJSON is the subset of a container inspection the client uses.
type ContainerJSON struct {
	ID      string           `json:"Id"`
	Name    string           `json:"Name"`
	Created string           `json:"Created"`
	Path    string           `json:"Path"`
	Args    []string         `json:"Args"`
	State   *ContainerState  `json:"State"`
	Config  *ContainerConfig `json:"Config"`
}

// ContainerState is the runtime state of a container.
type ContainerState struct {
	Status     string `json:"Status"`
	Running    bool   `json:"Running"`
	Paused     bool   `json:"Paused"`
	Restarting bool   `json:"Restarting"`
	OOMKilled  bool   `json:"OOMKilled"`
	Dead       bool   `json:"Dead"`
	Pid        int    `json:"Pid"`
	ExitCode   int    `json:"ExitCode"`
	Error      string `json:"Error"`
	StartedAt  string `json:"StartedAt"`
	FinishedAt string `json:"FinishedAt"`
}

// ContainerConfig is the part of a container's configuration that decides
// how its streams are framed.
type ContainerConfig struct {
	Hostname  string   `json:"Hostname"`
	Image     string   `json:"Image"`
	Tty       bool     `json:"Tty"`
	OpenStdin bool     `json:"OpenStdin"`
	Cmd       []string `json:"Cmd"`
}

// LogsOptions selects which log output is streamed.
type LogsOptions struct {
	Follow     bool
	Stdout     bool
	Stderr     bool
	Timestamps bool
	Since      string
	Until      string
	// Tail is a line count or "all".
	Tail string
}

// AttachOptions selects which streams an attach connects.
type AttachOptions struct {
	Stream     bool
	Stdin      bool
	Stdout     bool
	Stderr     bool
	Logs       bool
	DetachKeys string
}

// ResizeOptions is a TTY size in characters.
type ResizeOptions struct {
	Height uint
	Width  uint
}

// StatsOptions controls a stats stream.
type StatsOptions struct {
	// Stream keeps the connection open and sends a sample every second.
	Stream bool
	// OneShot skips the second sample the daemon otherwise waits for.
	OneShot bool
}

// Stats is one resource usage sample.
type Stats struct {
	Read        time.Time   `json:"read"`
	PreRead     time.Time   `json:"preread"`
	PidsStats   PidsStats   `json:"pids_stats"`
	CPUStats    CPUStats    `json:"cpu_stats"`
	PreCPUStats CPUStats    `json:"precpu_stats"`
	MemoryStats MemoryStats `json:"memory_stats"`
	Name        string      `json:"name"`
	ID          string      `json:"id"`
}

// PidsStats counts the processes in a container.
type PidsStats struct {
	Current uint64 `json:"current"`
	Limit   uint64 `json:"limit"`
}

// CPUStats is CPU usage at one point in time.
type CPUStats struct {
	CPUUsage struct {
		TotalUsage uint64 `json:"total_usage"`
	} `json:"cpu_usage"`
	SystemUsage uint64 `json:"system_cpu_usage"`
	OnlineCPUs  uint32 `json:"online_cpus"`
}

// MemoryStats is memory usage at one point in time.
type MemoryStats struct {
	Usage uint64 `json:"usage"`
	Limit uint64 `json:"limit"`
}
