package triage

import "errors"

// ErrSynthesisFailed means no decision could be produced: the provider
// timed out, failed, or replied with something that is not a decision.
// Nothing is cached when it is returned.
var ErrSynthesisFailed = errors.New("synthesis failed")
