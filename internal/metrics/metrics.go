package metrics

import "sync/atomic"

var batchesGenerated int64
var recordsOK int64
var recordsFailed int64
var jobsSucceeded int64
var jobsFailed int64

func IncBatches()            { atomic.AddInt64(&batchesGenerated, 1) }
func AddRecordsOK(n int)     { atomic.AddInt64(&recordsOK, int64(n)) }
func AddRecordsFailed(n int) { atomic.AddInt64(&recordsFailed, int64(n)) }
func IncJobSucceeded()       { atomic.AddInt64(&jobsSucceeded, 1) }
func IncJobFailed()          { atomic.AddInt64(&jobsFailed, 1) }

func Snapshot() map[string]int64 {
	return map[string]int64{
		"batches_generated": atomic.LoadInt64(&batchesGenerated),
		"records_ok":        atomic.LoadInt64(&recordsOK),
		"records_failed":    atomic.LoadInt64(&recordsFailed),
		"jobs_succeeded":    atomic.LoadInt64(&jobsSucceeded),
		"jobs_failed":       atomic.LoadInt64(&jobsFailed),
	}
}
