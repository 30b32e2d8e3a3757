package geo

import (
	"math"

	"terraview/internal/tilekey"
)

// ProjectionType selects how tile bounding volumes are derived from the flat
// tiling-scheme coordinates.
type ProjectionType int

const (
	// Planar keeps tiles on the z=0 plane of a square world that may wrap
	// horizontally.
	Planar ProjectionType = iota
	// Spherical projects tiles onto a globe; the world never wraps because
	// the sphere closes on itself.
	Spherical
)

// Box is an axis-aligned bounding box in world space.
type Box struct {
	Min, Max Vec3
}

// Corners returns the eight corners of the box.
func (b Box) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
	}
}

// TilingScheme maps world space onto a quad tree of (level, row, column)
// tiles. Two data sources share traversal results exactly when their schemes
// have the same Name.
type TilingScheme struct {
	// Name identifies the scheme for per-frame traversal-result sharing.
	Name string
	// WorldSize is the side length of the level-0 tile in world units.
	WorldSize float64
	// Projection controls how tile bounding volumes are built.
	Projection ProjectionType
}

// WebMercatorTilingScheme returns the standard square quad-tree scheme over a
// world of the given size.
func WebMercatorTilingScheme(worldSize float64, projection ProjectionType) *TilingScheme {
	return &TilingScheme{Name: "web-mercator", WorldSize: worldSize, Projection: projection}
}

// TileSize returns the side length of a tile at the given level.
func (s *TilingScheme) TileSize(level uint32) float64 {
	return s.WorldSize / float64(uint64(1)<<level)
}

// TileBox returns the world-space bounding volume of a tile, including the
// given elevation range. For planar projections this is the exact tile box;
// for spherical projections it is the axis-aligned box of the projected tile
// corners and center, padded outward so the curved surface patch between the
// samples stays inside.
func (s *TilingScheme) TileBox(key tilekey.TileKey, offset int, minElev, maxElev float64) Box {
	size := s.TileSize(key.Level)
	minX := float64(key.Column)*size + float64(offset)*s.WorldSize
	minY := float64(key.Row) * size
	if s.Projection == Planar {
		return Box{
			Min: Vec3{minX, minY, minElev},
			Max: Vec3{minX + size, minY + size, maxElev},
		}
	}
	return s.sphericalTileBox(minX, minY, size, minElev, maxElev)
}

// GroundCorners returns the four surface corners of a tile at zero elevation,
// in counter-clockwise order. Used for projected-area estimates.
func (s *TilingScheme) GroundCorners(key tilekey.TileKey, offset int) [4]Vec3 {
	size := s.TileSize(key.Level)
	minX := float64(key.Column)*size + float64(offset)*s.WorldSize
	minY := float64(key.Row) * size
	if s.Projection == Planar {
		return [4]Vec3{
			{minX, minY, 0},
			{minX + size, minY, 0},
			{minX + size, minY + size, 0},
			{minX, minY + size, 0},
		}
	}
	return [4]Vec3{
		s.surfacePoint(minX, minY, 0),
		s.surfacePoint(minX+size, minY, 0),
		s.surfacePoint(minX+size, minY+size, 0),
		s.surfacePoint(minX, minY+size, 0),
	}
}

// Radius returns the globe radius implied by the world size.
func (s *TilingScheme) Radius() float64 {
	return s.WorldSize / (2 * math.Pi)
}

// surfacePoint maps flat scheme coordinates (x, y) plus a radial elevation to
// a point on the sphere. x spans longitude, y spans mercator latitude.
func (s *TilingScheme) surfacePoint(x, y, elevation float64) Vec3 {
	lon := 2*math.Pi*(x/s.WorldSize) - math.Pi
	merc := math.Pi * (1 - 2*y/s.WorldSize)
	lat := math.Atan(math.Sinh(merc))
	r := s.Radius() + elevation
	cosLat := math.Cos(lat)
	return Vec3{
		X: r * cosLat * math.Cos(lon),
		Y: r * cosLat * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

func (s *TilingScheme) sphericalTileBox(minX, minY, size, minElev, maxElev float64) Box {
	samples := [5][2]float64{
		{minX, minY},
		{minX + size, minY},
		{minX, minY + size},
		{minX + size, minY + size},
		{minX + size/2, minY + size/2},
	}
	box := Box{
		Min: Vec3{math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
	for _, sp := range samples {
		for _, elev := range [2]float64{minElev, maxElev} {
			p := s.surfacePoint(sp[0], sp[1], elev)
			box.Min.X = math.Min(box.Min.X, p.X)
			box.Min.Y = math.Min(box.Min.Y, p.Y)
			box.Min.Z = math.Min(box.Min.Z, p.Z)
			box.Max.X = math.Max(box.Max.X, p.X)
			box.Max.Y = math.Max(box.Max.Y, p.Y)
			box.Max.Z = math.Max(box.Max.Z, p.Z)
		}
	}
	// Pad by the sagitta of the patch so the bulge between samples is covered.
	arc := size / s.WorldSize * math.Pi * s.Radius()
	pad := arc * arc / (8 * s.Radius())
	box.Min = box.Min.Sub(Vec3{pad, pad, pad})
	box.Max = box.Max.Add(Vec3{pad, pad, pad})
	return box
}
