package sim

// Vec3 is a 3-component vector. It marshals as a JSON array of three floats,
// which is also the canonical wire shape for positions and velocities.
type Vec3 [3]float64

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// LengthSq returns the squared magnitude, avoiding the sqrt when callers only
// compare distances.
func (v Vec3) LengthSq() float64 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}
