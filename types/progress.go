package types

// ProgressStage identifies an orchestrator milestone surfaced to observers.
type ProgressStage string

// Progress stages.
const (
	StageCleaning    ProgressStage = "cleaning"
	StageFontInstall ProgressStage = "font-installation"
	StagePkgInstall  ProgressStage = "package-installation"
	StageRetry       ProgressStage = "retry"
)

// ProgressEvent is a fire-and-forget status event. Delivery is best effort
// while the observing side is alive; there is no acknowledgement.
// Field tags cover both the journal frame format (msgpack) and the
// cross-boundary transport (json).
type ProgressEvent struct {
	// RequestID is the correlation id of the originating compile request.
	RequestID string `msgpack:"request_id" json:"requestId"`
	// Seq is the per-request monotonic event sequence, starts at 1.
	Seq int64 `msgpack:"seq" json:"seq"`
	// Stage is the milestone category.
	Stage ProgressStage `msgpack:"stage" json:"stage"`
	// Message is the user-facing status text.
	Message string `msgpack:"message" json:"message"`
	// Ts is the event timestamp in RFC 3339 UTC.
	Ts string `msgpack:"ts" json:"ts"`
}
