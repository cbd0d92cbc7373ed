// Package gamerunner runs and supervises the external game process a
// synced client directory launches, behind a swappable interface so the
// server-driven sync machinery never depends on os/exec directly.
package gamerunner

import "context"

// RunParameters mirrors derlRunParameters: the game configuration to
// launch, which profile to use, and any extra arguments.
type RunParameters struct {
	GameConfig  string
	ProfileName string
	Arguments   []string
}

// Runner starts, gracefully stops, and force-kills one game process at a
// time. Implementations correspond to the desktop launcher's pLauncher
// collaborator (RunGame/StopGame/KillGame) — a Runner is an external,
// swappable collaborator rather than something the sync state machine
// constructs for itself.
type Runner interface {
	// Run starts the game process with the given parameters. Run must
	// return once the process has been launched, not once it exits.
	Run(ctx context.Context, baseDir string, params RunParameters) error

	// Stop asks a running process to exit on its own (StopApplicationMode
	// requestClose on the wire). It does not block until exit.
	Stop() error

	// Kill forcibly terminates a running process (StopApplicationMode
	// killProcess on the wire).
	Kill() error

	// Poll reports whether the process launched by Run is still running.
	Poll() (running bool, err error)
}
