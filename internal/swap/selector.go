package swap

// SelectBestCall picks the winning estimate from the ordered results.
//
// A success at position i is only trusted if it is the last result or the
// result after it also succeeded: later candidates are more defensive
// encodings, and a lone success followed by a failure points at estimator
// instability rather than a genuinely better path. The scan keeps the
// last qualifying success.
func SelectBestCall(results []EstimatedSwapCall) (SuccessfulCall, error) {
	var (
		best  SuccessfulCall
		found bool
	)
	for i, r := range results {
		s, ok := r.(SuccessfulCall)
		if !ok {
			continue
		}
		if i == len(results)-1 {
			best, found = s, true
			continue
		}
		if _, nextOK := results[i+1].(SuccessfulCall); nextOK {
			best, found = s, true
		}
	}
	if found {
		return best, nil
	}

	// No qualifying success: surface the latest failure's reason.
	for i := len(results) - 1; i >= 0; i-- {
		if f, ok := results[i].(FailedCall); ok {
			return SuccessfulCall{}, &EstimationError{Reason: f.Reason.Error()}
		}
	}
	return SuccessfulCall{}, ErrNoEstimate
}
