package geo

import (
	"errors"

	gh "github.com/mmcloughlin/geohash"
)

// EncodePrecision is the number of base32 characters in a stored spatial
// key. 10 characters resolve to roughly 1 m cells, which is finer than any
// alert radius the app uses.
const EncodePrecision = 10

var (
	ErrInvalidCoordinate = errors.New("geo: coordinate out of range")
	ErrInvalidRadius     = errors.New("geo: radius must be positive")
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func validateCoordinate(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// Encode returns the spatial key for a coordinate. The same input always
// yields the same key.
func Encode(lat, lng float64) (string, error) {
	if err := validateCoordinate(lat, lng); err != nil {
		return "", err
	}
	return gh.EncodeWithPrecision(lat, lng, EncodePrecision), nil
}
