package acme

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kvernetz/netcup-acme/netcup"
	"github.com/kvernetz/netcup-acme/solver"
)

// SolverConstructor builds a solver from the configuration. Constructors
// run at configuration time; there is no dynamic loading.
type SolverConstructor func(cfg *Config, logger *slog.Logger) (solver.Solver, error)

var (
	solversMu sync.RWMutex
	solvers   = map[string]SolverConstructor{
		"netcup": func(cfg *Config, logger *slog.Logger) (solver.Solver, error) {
			return netcup.NewSolverFromConfig(cfg.Netcup, logger)
		},
	}
)

// RegisterSolver makes a constructor available under name, replacing any
// previous registration.
func RegisterSolver(name string, ctor SolverConstructor) {
	solversMu.Lock()
	defer solversMu.Unlock()
	solvers[name] = ctor
}

// NewSolver resolves name to a registered constructor and runs it.
func NewSolver(name string, cfg *Config, logger *slog.Logger) (solver.Solver, error) {
	solversMu.RLock()
	ctor, ok := solvers[name]
	solversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, name)
	}
	return ctor(cfg, logger)
}
