package geo

import "math"

// Camera describes the view used for one frame.
type Camera struct {
	Position Vec3
	Target   Vec3
	Up       Vec3
	// FovY is the vertical field of view in radians.
	FovY   float64
	Aspect float64
	Near   float64
	Far    float64
}

// ViewProjection returns the combined view-projection matrix.
func (c Camera) ViewProjection() Mat4 {
	up := c.Up
	if up == (Vec3{}) {
		up = Vec3{0, 1, 0}
	}
	return Perspective(c.FovY, c.Aspect, c.Near, c.Far).Mul(LookAt(c.Position, c.Target, up))
}

// TiltAngle returns the angle in radians between the view direction and
// straight down. 0 means a top-down view, pi/2 a horizon view.
func (c Camera) TiltAngle() float64 {
	f := c.Target.Sub(c.Position).Normalized()
	return math.Acos(clampF(-f.Z, -1, 1))
}

// Plane is the set of points p with N.Dot(p) + D == 0; N points toward the
// inside of the frustum.
type Plane struct {
	N Vec3
	D float64
}

// DistanceTo returns the signed distance of p from the plane, positive on the
// inside.
func (pl Plane) DistanceTo(p Vec3) float64 {
	return pl.N.Dot(p) + pl.D
}

// Frustum is a camera view volume bounded by six inward-facing planes,
// retaining the view-projection matrix for screen-area estimates.
type Frustum struct {
	Planes [6]Plane
	VP     Mat4
}

// NewFrustum extracts the six clip planes from a view-projection matrix
// (Gribb-Hartmann) and normalizes them so plane distances are in world units.
func NewFrustum(vp Mat4) Frustum {
	row := func(i int) [4]float64 {
		return [4]float64{vp[i], vp[4+i], vp[8+i], vp[12+i]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)
	raw := [6][4]float64{
		{r3[0] + r0[0], r3[1] + r0[1], r3[2] + r0[2], r3[3] + r0[3]}, // left
		{r3[0] - r0[0], r3[1] - r0[1], r3[2] - r0[2], r3[3] - r0[3]}, // right
		{r3[0] + r1[0], r3[1] + r1[1], r3[2] + r1[2], r3[3] + r1[3]}, // bottom
		{r3[0] - r1[0], r3[1] - r1[1], r3[2] - r1[2], r3[3] - r1[3]}, // top
		{r3[0] + r2[0], r3[1] + r2[1], r3[2] + r2[2], r3[3] + r2[3]}, // near
		{r3[0] - r2[0], r3[1] - r2[1], r3[2] - r2[2], r3[3] - r2[3]}, // far
	}
	f := Frustum{VP: vp}
	for i, p := range raw {
		n := Vec3{p[0], p[1], p[2]}
		l := n.Length()
		if l == 0 {
			l = 1
		}
		f.Planes[i] = Plane{N: n.Scale(1 / l), D: p[3] / l}
	}
	return f
}

// Grown returns a copy of the frustum with every plane pushed outward by
// margin world units. Used for extended culling so tiles entering the view do
// not pop in late.
func (f Frustum) Grown(margin float64) Frustum {
	g := f
	for i := range g.Planes {
		g.Planes[i].D += margin
	}
	return g
}

// IntersectsBox reports whether the box touches the frustum. The test is
// conservative: it never rejects an intersecting box.
func (f Frustum) IntersectsBox(b Box) bool {
	for _, pl := range f.Planes {
		// Positive vertex: box corner farthest along the plane normal.
		p := Vec3{b.Min.X, b.Min.Y, b.Min.Z}
		if pl.N.X >= 0 {
			p.X = b.Max.X
		}
		if pl.N.Y >= 0 {
			p.Y = b.Max.Y
		}
		if pl.N.Z >= 0 {
			p.Z = b.Max.Z
		}
		if pl.DistanceTo(p) < 0 {
			return false
		}
	}
	return true
}

// fullViewportArea is the area of the whole NDC viewport ([-1,1] squared),
// assigned to quads with a corner behind the camera: such a tile is so close
// it outranks everything projected normally.
const fullViewportArea = 4.0

// ProjectedArea returns the approximate screen footprint of a world-space
// quad as its signed polygon area in normalized device coordinates
// (shoelace formula).
func (f Frustum) ProjectedArea(corners [4]Vec3) float64 {
	var pts [4]Vec3
	for i, c := range corners {
		p, w := f.VP.TransformPoint(c)
		if w <= 1e-9 {
			return fullViewportArea
		}
		pts[i] = p.Scale(1 / w)
	}
	var area float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		area += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(area) / 2
}

// MaxWorldCopies bounds how many repeated world copies are seeded on each
// side when horizontal wrapping is enabled. It matches the wrap-offset range
// supported by the key encoding.
const MaxWorldCopies = 7

// VisibleWorldCopies estimates, from camera height, field of view, aspect and
// tilt, how many repeated copies of a wrapping planar world of the given size
// may be visible on each side of the central copy.
func VisibleWorldCopies(c Camera, worldSize float64) int {
	height := c.Position.Z
	if height <= 0 || worldSize <= 0 {
		return MaxWorldCopies
	}
	halfFovX := math.Atan(math.Tan(c.FovY/2) * c.Aspect)
	// Worst-case ground reach of the view cone, leaning with the tilt.
	angle := c.TiltAngle() + halfFovX
	if angle >= math.Pi/2 {
		return MaxWorldCopies
	}
	reach := height * math.Tan(angle)
	copies := int(math.Ceil(reach / worldSize))
	if copies > MaxWorldCopies {
		copies = MaxWorldCopies
	}
	return copies
}
