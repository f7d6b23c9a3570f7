// Package finding provides the result types shared by every security
// probe: a Severity scale and the ProbeResult record each probe returns.
//
// Probes never fail the run; a probe that could not reach a verdict
// returns a ProbeResult with Error set.
package finding
