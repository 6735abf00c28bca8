// Package normalize projects provider sleep records onto the snapshot the
// analysis service and the UI consume.
package normalize

import (
	domainsleep "github.com/smallbiznis/valora-sleep/internal/domain/sleep"
)

// Snapshot maps one record onto a SleepSnapshot. Values are copied as-is;
// absent optional fields become zero.
func Snapshot(raw domainsleep.RawSleepRecord) domainsleep.SleepSnapshot {
	score := raw.Score
	if score == nil {
		return domainsleep.SleepSnapshot{}
	}
	return domainsleep.SleepSnapshot{
		Score: domainsleep.SnapshotScore{
			StageSummary: domainsleep.SnapshotStageSummary{
				TotalInBedTimeMilli: score.StageSummary.TotalInBedTimeMilli,
				SleepCycleCount:     score.StageSummary.SleepCycleCount,
				DisturbanceCount:    score.StageSummary.DisturbanceCount,
			},
			SleepNeeded: domainsleep.SnapshotSleepNeeded{
				BaselineMilli:          score.SleepNeeded.BaselineMilli,
				NeedFromSleepDebtMilli: score.SleepNeeded.NeedFromSleepDebtMilli,
			},
			RespiratoryRate:            deref(score.RespiratoryRate),
			SleepPerformancePercentage: deref(score.SleepPerformancePercentage),
			SleepConsistencyPercentage: deref(score.SleepConsistencyPercentage),
			SleepEfficiencyPercentage:  deref(score.SleepEfficiencyPercentage),
		},
	}
}

// Latest returns the first scored record of a page, which the provider
// orders newest first.
func Latest(records []domainsleep.RawSleepRecord) (domainsleep.RawSleepRecord, bool) {
	for _, record := range records {
		if record.Scored() {
			return record, true
		}
	}
	return domainsleep.RawSleepRecord{}, false
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
