package geometry

import "math"

// WGS84 ellipsoid parameters.
const (
	wgs84A = 6378137.0
	wgs84F = 1.0 / 298.257223563
	utmK0  = 0.9996
	// falseEasting is the UTM easting offset of the central meridian.
	falseEasting  = 500000.0
	falseNorthing = 10000000.0
)

// UTMZone returns the UTM zone number and hemisphere for a lon/lat point.
func UTMZone(lon, lat float64) (zone int, north bool) {
	zone = int((lon+180)/6) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	return zone, lat >= 0
}

// EPSGForZone returns the EPSG code of the given UTM zone.
func EPSGForZone(zone int, north bool) int {
	if north {
		return 32600 + zone
	}
	return 32700 + zone
}

// Projection is a transverse Mercator projection for one UTM zone.
type Projection struct {
	Zone  int
	North bool
}

// NewProjection selects the UTM zone covering the given point.
func NewProjection(lon, lat float64) Projection {
	zone, north := UTMZone(lon, lat)
	return Projection{Zone: zone, North: north}
}

// EPSG returns the projection's EPSG code.
func (p Projection) EPSG() int { return EPSGForZone(p.Zone, p.North) }

func (p Projection) centralMeridian() float64 {
	return float64((p.Zone-1)*6-180) + 3
}

// Forward projects geographic lon/lat (degrees) to UTM easting/northing
// (meters) using the standard series expansion.
func (p Projection) Forward(lon, lat float64) (x, y float64) {
	phi := lat * math.Pi / 180
	lam := (lon - p.centralMeridian()) * math.Pi / 180

	e2 := wgs84F * (2 - wgs84F)
	ep2 := e2 / (1 - e2)

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	tanPhi := sinPhi / cosPhi

	n := wgs84A / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := lam * cosPhi

	m := meridianArc(phi, e2)

	x = utmK0*n*(a+(1-t+c)*a*a*a/6+
		(5-18*t+t*t+72*c-58*ep2)*math.Pow(a, 5)/120) + falseEasting
	y = utmK0 * (m + n*tanPhi*(a*a/2+
		(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+
		(61-58*t+t*t+600*c-330*ep2)*math.Pow(a, 6)/720))
	if !p.North {
		y += falseNorthing
	}
	return x, y
}

// Inverse converts UTM easting/northing (meters) back to lon/lat degrees.
func (p Projection) Inverse(x, y float64) (lon, lat float64) {
	e2 := wgs84F * (2 - wgs84F)
	ep2 := e2 / (1 - e2)
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))

	xAdj := x - falseEasting
	yAdj := y
	if !p.North {
		yAdj -= falseNorthing
	}

	m := yAdj / utmK0
	mu := m / (wgs84A * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin1, cos1 := math.Sin(phi1), math.Cos(phi1)
	tan1 := sin1 / cos1

	c1 := ep2 * cos1 * cos1
	t1 := tan1 * tan1
	n1 := wgs84A / math.Sqrt(1-e2*sin1*sin1)
	r1 := wgs84A * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := xAdj / (n1 * utmK0)

	phi := phi1 - (n1*tan1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lam := (d - (1+2*t1+c1)*d*d*d/6 +
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120) / cos1

	lat = phi * 180 / math.Pi
	lon = p.centralMeridian() + lam*180/math.Pi
	return lon, lat
}

// meridianArc returns the meridional arc length from the equator to phi.
func meridianArc(phi, e2 float64) float64 {
	e4 := e2 * e2
	e6 := e4 * e2
	return wgs84A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}
