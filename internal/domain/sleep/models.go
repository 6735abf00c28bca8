package sleep

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ScoreState is the provider's scoring status for a record.
type ScoreState string

const (
	ScoreStateScored     ScoreState = "SCORED"
	ScoreStatePending    ScoreState = "PENDING_SCORE"
	ScoreStateUnscorable ScoreState = "UNSCORABLE"
)

// RecordID accepts both the numeric v1 ids and the UUID v2 ids.
type RecordID string

func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

// RawSleepRecord is one sleep session as the provider sends it.
type RawSleepRecord struct {
	ID             RecordID       `json:"id"`
	CycleID        int64          `json:"cycle_id,omitempty"`
	UserID         int64          `json:"user_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	TimezoneOffset string         `json:"timezone_offset"`
	Nap            bool           `json:"nap"`
	ScoreState     ScoreState     `json:"score_state"`
	Score          *RawSleepScore `json:"score,omitempty"`
}

// Scored reports whether the record carries a usable score.
func (r RawSleepRecord) Scored() bool {
	return r.ScoreState == ScoreStateScored && r.Score != nil
}

// RawSleepScore holds the provider's scoring block.
type RawSleepScore struct {
	StageSummary               RawStageSummary `json:"stage_summary"`
	SleepNeeded                RawSleepNeeded  `json:"sleep_needed"`
	RespiratoryRate            *float64        `json:"respiratory_rate,omitempty"`
	SleepPerformancePercentage *float64        `json:"sleep_performance_percentage,omitempty"`
	SleepConsistencyPercentage *float64        `json:"sleep_consistency_percentage,omitempty"`
	SleepEfficiencyPercentage  *float64        `json:"sleep_efficiency_percentage,omitempty"`
}

// RawStageSummary holds stage durations and counts.
type RawStageSummary struct {
	TotalInBedTimeMilli         int64 `json:"total_in_bed_time_milli"`
	TotalAwakeTimeMilli         int64 `json:"total_awake_time_milli"`
	TotalNoDataTimeMilli        int64 `json:"total_no_data_time_milli"`
	TotalLightSleepTimeMilli    int64 `json:"total_light_sleep_time_milli"`
	TotalSlowWaveSleepTimeMilli int64 `json:"total_slow_wave_sleep_time_milli"`
	TotalRemSleepTimeMilli      int64 `json:"total_rem_sleep_time_milli"`
	SleepCycleCount             int   `json:"sleep_cycle_count"`
	DisturbanceCount            int   `json:"disturbance_count"`
}

// RawSleepNeeded is the sleep-need breakdown.
type RawSleepNeeded struct {
	BaselineMilli             int64 `json:"baseline_milli"`
	NeedFromSleepDebtMilli    int64 `json:"need_from_sleep_debt_milli"`
	NeedFromRecentStrainMilli int64 `json:"need_from_recent_strain_milli"`
	NeedFromRecentNapMilli    int64 `json:"need_from_recent_nap_milli"`
}

// SleepResponsePage is one page of the provider's sleep collection.
type SleepResponsePage struct {
	Records   []RawSleepRecord `json:"records"`
	NextToken string           `json:"next_token,omitempty"`
}

// SleepQuery filters a sleep collection request. Zero values are omitted.
type SleepQuery struct {
	Limit     int
	Start     *time.Time
	End       *time.Time
	PageToken string
}

// SleepSnapshot is the canonical projection of one sleep record.
type SleepSnapshot struct {
	Score SnapshotScore `json:"score"`
}

// SnapshotScore holds the fields consumed by analysis and the UI.
type SnapshotScore struct {
	StageSummary               SnapshotStageSummary `json:"stage_summary"`
	SleepNeeded                SnapshotSleepNeeded  `json:"sleep_needed"`
	RespiratoryRate            float64              `json:"respiratory_rate" validate:"finite,gte=0"`
	SleepPerformancePercentage float64              `json:"sleep_performance_percentage" validate:"finite,gte=0,lte=100"`
	SleepConsistencyPercentage float64              `json:"sleep_consistency_percentage" validate:"finite,gte=0,lte=100"`
	SleepEfficiencyPercentage  float64              `json:"sleep_efficiency_percentage" validate:"finite,gte=0,lte=100"`
}

type SnapshotStageSummary struct {
	TotalInBedTimeMilli int64 `json:"total_in_bed_time_milli" validate:"gte=0"`
	SleepCycleCount     int   `json:"sleep_cycle_count" validate:"gte=0"`
	DisturbanceCount    int   `json:"disturbance_count" validate:"gte=0"`
}

type SnapshotSleepNeeded struct {
	BaselineMilli          int64 `json:"baseline_milli" validate:"gte=0"`
	NeedFromSleepDebtMilli int64 `json:"need_from_sleep_debt_milli" validate:"gte=0"`
}

// ManualMetrics are the seven user-entered scores.
type ManualMetrics struct {
	RemSleep    float64 `json:"rem_sleep" validate:"finite,gte=1,lte=100"`
	DeepSleep   float64 `json:"deep_sleep" validate:"finite,gte=1,lte=100"`
	TotalSleep  float64 `json:"total_sleep" validate:"finite,gte=1,lte=100"`
	Restfulness float64 `json:"restfulness" validate:"finite,gte=1,lte=100"`
	Efficiency  float64 `json:"efficiency" validate:"finite,gte=1,lte=100"`
	Timing      float64 `json:"timing" validate:"finite,gte=1,lte=100"`
	Latency     float64 `json:"latency" validate:"finite,gte=1,lte=100"`
}

// AnalysisResult is the analysis service's response body, kept verbatim.
type AnalysisResult json.RawMessage

// MarshalJSON emits the stored document unchanged.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// MetricComparison is the per-metric shape the analysis service reports.
type MetricComparison struct {
	Average              float64 `json:"average"`
	PercentageDifference float64 `json:"percentage_difference"`
}
