package vision

import "math"

// Point is a pixel coordinate.
type Point struct {
	X, Y float64
}

// MarkerObservation is a single fiducial detection in one frame.
type MarkerObservation struct {
	ID      int
	Corners []Point // polygon, detector order
}

// Area returns the polygon area using the shoelace formula.
func (m MarkerObservation) Area() float64 {
	n := len(m.Corners)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		a := m.Corners[i]
		b := m.Corners[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}

// Centroid returns the mean of the corner points.
func (m MarkerObservation) Centroid() Point {
	if len(m.Corners) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range m.Corners {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(m.Corners))
	return Point{X: c.X / n, Y: c.Y / n}
}

// Square returns an axis-aligned square marker polygon; handy for fakes.
func Square(id int, x, y, side float64) MarkerObservation {
	return MarkerObservation{
		ID: id,
		Corners: []Point{
			{X: x, Y: y},
			{X: x + side, Y: y},
			{X: x + side, Y: y + side},
			{X: x, Y: y + side},
		},
	}
}

// SelectDominant returns the index of the largest-area observation, earliest
// wins ties. It returns -1 for an empty slice.
func SelectDominant(obs []MarkerObservation) int {
	best := -1
	bestArea := -1.0
	for i := range obs {
		if a := obs[i].Area(); a > bestArea {
			best = i
			bestArea = a
		}
	}
	return best
}
