package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // slog text handler
	BackendZap Backend = "zap" // zap core behind a slog facade
)

type Config struct {
	// Identity attached to every record
	Service    string
	Version    string
	InstanceID string

	// Output control
	Level   slog.Level
	Env     Env
	Backend Backend // default: zap for stage/prod, std for dev
	Debug   bool

	// Zap sampling knobs, zero means the defaults
	SampleInitial    int
	SampleThereafter int
	SampleTick       int // seconds

	AddSource bool
}
