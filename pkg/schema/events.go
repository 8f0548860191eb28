// pkg/schema/events.go
package schema

// PhotoChanged is the job payload published when an island's photo changes
// and a thumbnail has to be derived for it.
type PhotoChanged struct {
	JobID      string `json:"job_id"`
	IslandID   string `json:"island_id"`
	PhotoName  string `json:"photo_name"`
	PhotoKey   string `json:"photo_key"`
	PhotoURL   string `json:"photo_url"`
	PhotoSize  int64  `json:"photo_size"`
	HappenedAt int64  `json:"happened_at"`
}

type ProcessingStage string

const (
	StageIdle       ProcessingStage = "idle"
	StageScheduled  ProcessingStage = "scheduled"
	StageFetching   ProcessingStage = "fetching"
	StageDeriving   ProcessingStage = "deriving"
	StagePersisting ProcessingStage = "persisting"
	StageAttaching  ProcessingStage = "attaching"
	StageDone       ProcessingStage = "done"
	StageFailed     ProcessingStage = "failed"
)

// Terminal reports whether no further transition can leave the stage.
func (s ProcessingStage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

type FailureType string

const (
	FailureTypeFetch    FailureType = "fetch"
	FailureTypeDecode   FailureType = "decode"
	FailureTypePersist  FailureType = "asset_persist"
	FailureTypeReattach FailureType = "record_reattach"
	FailureTypeUnknown  FailureType = "unknown"
)

type DerivationParams struct {
	SourceWidth    int    `json:"source_width"`
	SourceHeight   int    `json:"source_height"`
	TargetWidth    int    `json:"target_width"`
	TargetHeight   int    `json:"target_height"`
	Algorithm      string `json:"algorithm"`
	Quality        int    `json:"quality,omitempty"`
	ProcessingTime int64  `json:"processing_time_ms"`
	GeneratedAt    int64  `json:"generated_at"`
}

type ThumbnailLifecycleEvent struct {
	JobID            string            `json:"job_id"`
	IslandID         string            `json:"island_id"`
	SourceURL        string            `json:"source_url"`
	Stage            ProcessingStage   `json:"stage"`
	ThumbnailURL     string            `json:"thumbnail_url,omitempty"`
	DerivationParams *DerivationParams `json:"derivation_params,omitempty"`
	Error            string            `json:"error,omitempty"`
	FailureType      FailureType       `json:"failure_type,omitempty"`
	HappenedAt       int64             `json:"happened_at"`
}
