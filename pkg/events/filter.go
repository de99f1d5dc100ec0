package events

import (
	"petsysmat/internal/models"
)

// TrueCoincidenceFilter classifies event records as true (unscattered)
// coincidences. Only true events enter the accumulation pipeline; scattered
// events contribute neither to the counts matrix nor to the voxel totals.
type TrueCoincidenceFilter struct{}

// NewTrueCoincidenceFilter creates the filter.
func NewTrueCoincidenceFilter() *TrueCoincidenceFilter {
	return &TrueCoincidenceFilter{}
}

// IsTrue reports whether the record is an unscattered coincidence: neither
// photon underwent Compton or Rayleigh scatter inside the phantom.
func (f *TrueCoincidenceFilter) IsTrue(rec models.EventRecord) bool {
	return rec.ComptonPhantom1 == 0 && rec.ComptonPhantom2 == 0 &&
		rec.RayleighPhantom1 == 0 && rec.RayleighPhantom2 == 0
}
