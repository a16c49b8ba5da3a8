package txstate

import (
	"fmt"
	"time"
)

// NoDeadline is the sentinel SecondsUntilDeadline value when the record
// has no relay deadline or the deadline has already passed.
const NoDeadline = -1

// Status is the display state derived from a record and the wall clock.
type Status struct {
	Pending              bool
	Mined                bool
	Cancelled            bool
	Expired              bool
	Success              bool
	SecondsUntilDeadline int64
}

// DeriveStatus computes the presentation state of a record. It stores
// nothing: the record plus the clock fully determine the result.
func DeriveStatus(rec *Record, now time.Time) Status {
	var st Status

	if rec.Receipt != nil {
		if rec.Receipt.Status == StatusCancelled {
			st.Cancelled = true
		} else {
			st.Mined = true
		}
	}

	st.SecondsUntilDeadline = NoDeadline
	if rec.Relay != nil && rec.Relay.Deadline > 0 {
		if left := int64(rec.Relay.Deadline) - now.Unix(); left > 0 {
			st.SecondsUntilDeadline = left
		} else if !st.Mined && !st.Cancelled {
			st.Expired = true
		}
	}

	st.Pending = !st.Mined && !st.Cancelled && !st.Expired
	st.Success = !st.Pending && st.Mined && rec.Receipt.Status == 1
	return st
}

// FormatRemaining buckets a remaining-time value for display: whole
// minutes at one minute or more, a single "<1 min" bucket below that.
func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		return ""
	}
	if seconds < 60 {
		return "<1 min"
	}
	return fmt.Sprintf("%d min", seconds/60)
}
