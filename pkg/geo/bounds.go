package geo

import (
	"math"
	"sort"

	gh "github.com/mmcloughlin/geohash"
)

// KeyRange is a half-open [Start, End) interval over spatial keys, suitable
// for a string range scan on the backing store.
type KeyRange struct {
	Start string
	End   string
}

// rangeEnd follows the geofire convention: '~' sorts after every base32
// geohash character, so [h, h+"~") covers every key prefixed with h.
const rangeEnd = "~"

// minCellMeters is the smaller cell dimension per geohash precision,
// index 0 = precision 1. Odd precisions are square, even precisions are
// twice as wide as tall.
var minCellMeters = []float64{
	4992600, // 1
	624100,  // 2
	156000,  // 3
	19500,   // 4
	4890,    // 5
	610,     // 6
	153,     // 7
	19.1,    // 8
	4.77,    // 9
	0.596,   // 10
}

// precisionForRadius picks the finest precision whose cell still spans the
// radius at the query latitude, so that the center cell plus its 8
// neighbors cover the circle. A cell's east-west extent shrinks by
// cos(lat) away from the equator; the north-south extent does not, so
// scaling the equator table by cos(lat) is the binding dimension.
// Returns 0 when no precision qualifies (huge radius, or near the poles).
func precisionForRadius(lat, radiusMeters float64) uint {
	cosLat := math.Cos(toRadians(lat))
	if cosLat < 0 {
		cosLat = 0
	}
	p := uint(0)
	for i, size := range minCellMeters {
		if size*cosLat < radiusMeters {
			break
		}
		p = uint(i + 1)
	}
	return p
}

// BoundsForRadius derives the key ranges a candidate query must scan to
// find every point within radiusMeters of the center. The union of the
// ranges is a superset of the circle: points beyond the radius can match
// and must be pruned by an exact distance check downstream.
func BoundsForRadius(lat, lng, radiusMeters float64) ([]KeyRange, error) {
	if err := validateCoordinate(lat, lng); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		return nil, ErrInvalidRadius
	}

	precision := precisionForRadius(lat, radiusMeters)
	if precision == 0 {
		// Radius spans more than a precision-1 cell; scan everything.
		return []KeyRange{{Start: "0", End: rangeEnd}}, nil
	}

	center := gh.EncodeWithPrecision(lat, lng, precision)
	cells := append(gh.Neighbors(center), center)

	seen := make(map[string]bool, len(cells))
	ranges := make([]KeyRange, 0, len(cells))
	for _, cell := range cells {
		if seen[cell] {
			continue
		}
		seen[cell] = true
		ranges = append(ranges, KeyRange{Start: cell, End: cell + rangeEnd})
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	return ranges, nil
}

// Contains reports whether a spatial key falls inside the range.
func (r KeyRange) Contains(key string) bool {
	return key >= r.Start && key < r.End
}
