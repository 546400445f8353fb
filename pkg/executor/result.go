package executor

import (
	"fmt"
	"sync"
)

// ExecutionResult is the outcome of one merged job.
type ExecutionResult struct {
	ConfigVolume string
	ExitCode     int
	Stdout       string
	Stderr       string
	Attempts     int
	Err          error
}

// Succeeded reports whether the job ended with an accepted exit code.
func (r ExecutionResult) Succeeded() bool {
	return r.Err == nil && IsPuppetSuccess(r.ExitCode)
}

// IsPuppetSuccess matches puppet's --detailed-exitcodes: 0 means nothing
// changed, 2 means changes were applied.
func IsPuppetSuccess(code int) bool {
	return code == 0 || code == 2
}

// Results collects ExecutionResults by config volume, independent of the
// order in which the workers finish.
type Results struct {
	mu     sync.Mutex
	order  []string
	byName map[string]ExecutionResult
}

func newResults(order []string) *Results {
	return &Results{
		order:  order,
		byName: make(map[string]ExecutionResult, len(order)),
	}
}

func (r *Results) set(result ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[result.ConfigVolume] = result
}

func (r *Results) Get(configVolume string) (ExecutionResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.byName[configVolume]
	return result, ok
}

func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

// All returns the results in job order.
func (r *Results) All() []ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]ExecutionResult, 0, len(r.byName))
	for _, name := range r.order {
		if result, ok := r.byName[name]; ok {
			all = append(all, result)
		}
	}
	return all
}

func (r *Results) Failed() []ExecutionResult {
	var failed []ExecutionResult
	for _, result := range r.All() {
		if !result.Succeeded() {
			failed = append(failed, result)
		}
	}
	return failed
}

// Err returns an ErrJobsFailed naming every failed config volume, or nil.
func (r *Results) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	err := &ErrJobsFailed{}
	for _, f := range failed {
		err.ConfigVolumes = append(err.ConfigVolumes, f.ConfigVolume)
	}
	return err
}

// ErrJobsFailed is returned when at least one job failed for good.
type ErrJobsFailed struct {
	ConfigVolumes []string
}

func (e *ErrJobsFailed) Error() string {
	return fmt.Sprintf("%d config volume(s) failed: %q", len(e.ConfigVolumes), e.ConfigVolumes)
}

func (e *ErrJobsFailed) ExitCode() int {
	return 1
}
