package duplicates

import (
	"github.com/civicstack/grievance-backend/internal/domain/model"
	"github.com/civicstack/grievance-backend/internal/pkg/geo"
	"github.com/civicstack/grievance-backend/internal/pkg/textsim"
)

// Match describes the canonical complaint a new report duplicates.
type Match struct {
	Complaint  model.Complaint
	Similarity float64
	DistanceM  float64
}

// Detector flags a new complaint as a duplicate when both the text
// similarity and the location proximity thresholds are met against an
// earlier complaint by the same submitter.
type Detector struct {
	minSimilarity float64
	maxDistanceM  float64
}

func NewDetector(minSimilarity, maxDistanceM float64) *Detector {
	return &Detector{
		minSimilarity: minSimilarity,
		maxDistanceM:  maxDistanceM,
	}
}

// FindMatch scans candidates in the order given and returns the first one
// that clears both thresholds. Candidates must already be scoped to the
// submitter and lookback window, oldest first, so the earliest complaint
// wins as canonical.
func (d *Detector) FindMatch(text string, lat, lon float64, candidates []model.Complaint) (Match, bool) {
	for _, candidate := range candidates {
		similarity := textsim.Similarity(text, candidate.Text)
		if similarity <= d.minSimilarity {
			continue
		}

		distance := geo.DistanceMeters(lat, lon, candidate.Latitude, candidate.Longitude)
		if distance >= d.maxDistanceM {
			continue
		}

		return Match{
			Complaint:  candidate,
			Similarity: similarity,
			DistanceM:  distance,
		}, true
	}

	return Match{}, false
}
