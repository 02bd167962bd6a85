package database

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
)

// lineOf returns the straight line between the two endpoints of a segment
func lineOf(segment persistence.Segment) orb.LineString {
	return orb.LineString{
		orb.Point{segment.StartLon, segment.StartLat},
		orb.Point{segment.EndLon, segment.EndLat},
	}
}

// lengthOf returns the great circle length of a segment in meters
func lengthOf(segment persistence.Segment) float64 {
	line := lineOf(segment)
	return geo.DistanceHaversine(line[0], line[1])
}

// distanceFromBound returns the distance in meters between a point and the closest point
// of a bound. Points within the bound are at distance 0.
func distanceFromBound(bound orb.Bound, pt orb.Point) float64 {
	closest := orb.Point{
		math.Min(math.Max(pt.Lon(), bound.Left()), bound.Right()),
		math.Min(math.Max(pt.Lat(), bound.Bottom()), bound.Top()),
	}

	return geo.DistanceHaversine(pt, closest)
}

// boundFromCorners creates a bound from any two opposite corners
func boundFromCorners(lat0, lon0, lat1, lon1 float64) orb.Bound {
	return orb.MultiPoint{orb.Point{lon0, lat0}, orb.Point{lon1, lat1}}.Bound()
}
