package deal

import "time"

// Summary is the per-cycle report logged by the driver and exposed on /status.
type Summary struct {
	CycleID  string        `json:"cycle_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	ProvidersOK     []string `json:"providers_ok"`
	ProvidersFailed []string `json:"providers_failed,omitempty"`

	Fetched    int `json:"fetched"`
	Malformed  int `json:"malformed"`
	Filtered   int `json:"filtered"`
	Duplicates int `json:"duplicates"`
	Snapshot   int `json:"snapshot"`

	Activated   int `json:"activated"`
	Inserted    int `json:"inserted"`
	Deactivated int `json:"deactivated"`
	Retained    int `json:"retained"`

	Candidates  int `json:"candidates"`
	BatchesSent int `json:"batches_sent"`
	BatchesFail int `json:"batches_failed"`
	Oversize    int `json:"oversize_dropped"`

	ReconcileError string `json:"reconcile_error,omitempty"`
}

// ProviderUnavailable is the number of providers whose fetch failed.
func (s Summary) ProviderUnavailable() int { return len(s.ProvidersFailed) }
