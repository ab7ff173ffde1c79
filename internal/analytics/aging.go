package analytics

import (
	"time"

	"github.com/odyssey-erp/receivables/internal/ar"
)

// AgingBucket labels an amount by how long it is past due.
type AgingBucket string

const (
	BucketCurrent AgingBucket = "Current"
	Bucket1To30   AgingBucket = "1-30 Days"
	Bucket31To60  AgingBucket = "31-60 Days"
	Bucket61To90  AgingBucket = "61-90 Days"
	Bucket90Plus  AgingBucket = "90+ Days"
)

// AgingBuckets lists the buckets in report column order.
var AgingBuckets = []AgingBucket{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, Bucket90Plus}

// ClassifyAging maps days past due to its bucket.
func ClassifyAging(days int) AgingBucket {
	switch {
	case days <= 0:
		return BucketCurrent
	case days <= 30:
		return Bucket1To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return Bucket90Plus
	}
}

// DaysPastDue counts calendar days from due to cutoff. A missing due date
// counts as zero days.
func DaysPastDue(cutoff, due time.Time) int {
	if due.IsZero() || cutoff.IsZero() {
		return 0
	}
	return int(ar.DateOf(cutoff).Sub(ar.DateOf(due)).Hours() / 24)
}
