package workers

import "time"

const (
	ReconcilerTimeout    = 10 * time.Minute
	RecordMonitorTimeout = 2 * time.Minute

	ReconcilerKeyPrefix        = "Reconciler-"
	ReconcilerLastUpdateKey    = "Reconciler-LastUpdate"
	RecordMonitorLastUpdateKey = "RecordMonitor-LastUpdate"
)
