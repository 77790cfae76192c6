// Package bucketing deterministically maps users into experiment variants.
//
// The bucket value is a pure function of (salt, experiment key, user id); it
// involves no randomness and no process-local state, so every process computes
// the identical value for the same inputs, forever. This is what makes
// assignments reproducible across restarts and across a fleet.
package bucketing

import (
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/cohortproject/cohort/internal/cohort/domain"
)

const inputSeparator = "."

// Bucket hashes (experimentKey, userId, salt) into the unit interval [0, 1).
//
// xxh3 is stable across platforms and Go versions. The top 53 bits of the
// 64-bit digest are used so the result is exactly representable as a float64
// and strictly less than 1.
func Bucket(experimentKey, userId, salt string) float64 {
	h := xxh3.HashString(salt + inputSeparator + experimentKey + inputSeparator + userId)
	return float64(h>>11) / float64(1<<53)
}

// VariantFor selects the variant for userId, or reports that the user falls
// outside the experiment's traffic allocation (ok == false). Being outside the
// allocation is not the same as being in a control variant; the user simply
// does not participate.
//
// Variants are walked in ascending id order with weights normalized over their
// sum, so the mapping depends only on the experiment definition and the bucket
// value. Zero-weight variants are skipped entirely.
func VariantFor(experiment *domain.Experiment, userId string) (string, bool) {
	value := Bucket(experiment.Key, userId, experiment.Salt)

	allocation := experiment.TrafficAllocationPercent / 100
	// Participation range is half-open: a value exactly at the allocation
	// boundary falls outside it.
	if allocation <= 0 || value >= allocation {
		return "", false
	}
	// Rescale the allocated range back onto [0, 1) so variant splits stay
	// accurate at any allocation percentage.
	value = value / allocation

	variants := make([]domain.Variant, len(experiment.Variants))
	copy(variants, experiment.Variants)
	sort.Slice(variants, func(i, j int) bool {
		return variants[i].Id < variants[j].Id
	})

	total := 0.0
	for _, variant := range variants {
		if variant.Weight > 0 {
			total += variant.Weight
		}
	}
	if total <= 0 {
		return "", false
	}

	cumulative := 0.0
	last := ""
	for _, variant := range variants {
		if variant.Weight <= 0 {
			continue
		}
		cumulative += variant.Weight / total
		last = variant.Id
		if value < cumulative {
			return variant.Id, true
		}
	}
	// Floating-point slack can leave the final threshold a hair below 1;
	// such values belong to the last positive-weight variant.
	return last, true
}
