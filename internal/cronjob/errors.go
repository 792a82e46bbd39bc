package cronjob

import "fmt"

// ConfigError reports a bad or missing prerequisite detected before any
// store mutation (unknown runner, invalid schedule, missing workdir).
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cron config: %s: %v", e.Reason, e.Err)
	}
	return "cron config: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StoreError reports an I/O failure reading or writing the schedule
// store. The store is left in its pre-invocation state.
type StoreError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("cron store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
