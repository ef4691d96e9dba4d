package colorspace

import "math"

// Range limits.
const (
	// MaxChromaticity is the 16-bit full scale used for x and y.
	MaxChromaticity = 65535

	// MaxHue is the exclusive upper bound for hue degrees.
	MaxHue = 360

	// MaxPercent is the upper bound for saturation and brightness.
	MaxPercent = 100

	// miredsPerKelvin converts between mireds and kelvin (mired = 1e6 / K).
	miredsPerKelvin = 1_000_000

	// Domain of the colour temperature approximation.
	minKelvin = 1667
	maxKelvin = 25000
)

// sRGB transfer function breakpoints.
const (
	srgbDecodeThreshold = 0.04045
	srgbEncodeThreshold = 0.0031308
	srgbLinearSlope     = 12.92
	srgbOffset          = 0.055
	srgbScale           = 1.055
	srgbGamma           = 2.4
)

// HueSat is a colour expressed as hue in degrees and saturation in percent.
type HueSat struct {
	Hue        int `json:"hue"`
	Saturation int `json:"saturation"`
}

// XY is a CIE 1931 chromaticity point scaled to [0, MaxChromaticity].
type XY struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Float returns the chromaticity as unscaled coordinates in [0, 1].
func (p XY) Float() (x, y float64) {
	return float64(p.X) / MaxChromaticity, float64(p.Y) / MaxChromaticity
}

// Wide gamut RGB D65 conversion matrices.
var (
	rgbToXYZ = [3][3]float64{
		{0.664511, 0.154324, 0.162028},
		{0.283881, 0.668433, 0.047685},
		{0.000088, 0.072310, 0.986039},
	}
	xyzToRGB = [3][3]float64{
		{1.656492, -0.354851, -0.255038},
		{-0.707196, 1.655397, 0.036152},
		{0.051713, -0.121364, 1.011530},
	}
)

// HueSatToXY converts a hue/saturation pair at full value to chromaticity.
//
// The colour is built as HSV(hue, saturation, 1), linearised with the sRGB
// transfer function, projected to XYZ through the wide gamut matrix and
// normalised to xy. A black point (X+Y+Z == 0) yields {0, 0}.
func HueSatToXY(hue, saturation float64) XY {
	r, g, b := hsvToRGB(wrapHue(hue), clampPercent(saturation)/MaxPercent, 1)
	r, g, b = srgbToLinear(r), srgbToLinear(g), srgbToLinear(b)

	x, y, z := mulVec(rgbToXYZ, r, g, b)
	sum := x + y + z
	if sum == 0 || math.IsNaN(sum) {
		return XY{}
	}

	return XY{
		X: scaleChromaticity(x / sum),
		Y: scaleChromaticity(y / sum),
	}
}

// XYToHueSat converts a chromaticity point to hue/saturation.
//
// brightness (percent) is used as the Y luminance when reconstructing XYZ.
// When exactly one RGB channel exceeds 1.0 and dominates the other two, the
// other channels are divided by it and it is clamped to 1.0, which keeps the
// hue and trades away saturation. Any undefined intermediate maps to 0.
func XYToHueSat(p XY, brightness float64) HueSat {
	x, y := p.Float()
	if y == 0 {
		return HueSat{}
	}

	lum := clampPercent(brightness) / MaxPercent
	bigX := lum / y * x
	bigZ := lum / y * (1 - x - y)

	r, g, b := mulVec(xyzToRGB, bigX, lum, bigZ)
	r, g, b = normalizeDominant(r, g, b)
	r, g, b = linearToSRGB(r), linearToSRGB(g), linearToSRGB(b)

	h, s := rgbToHueSat(r, g, b)
	return HueSat{Hue: h, Saturation: s}
}

// ColorTemperatureToXY converts a colour temperature in mireds to chromaticity
// using the cubic spline approximation of the Planckian locus. x is split at
// 4000 K, y at 2222 K and 4000 K.
func ColorTemperatureToXY(mireds int) XY {
	kelvin := float64(maxKelvin)
	if mireds > 0 {
		kelvin = miredsPerKelvin / float64(mireds)
	}
	kelvin = math.Max(minKelvin, math.Min(maxKelvin, kelvin))

	k := kelvin
	k2 := k * k
	k3 := k2 * k

	var x float64
	if kelvin <= 4000 {
		x = -0.2661239e9/k3 - 0.2343589e6/k2 + 0.8776956e3/k + 0.179910
	} else {
		x = -3.0258469e9/k3 + 2.1070379e6/k2 + 0.2226347e3/k + 0.240390
	}

	x2 := x * x
	x3 := x2 * x

	var y float64
	switch {
	case kelvin <= 2222:
		y = -1.1063814*x3 - 1.34811020*x2 + 2.18555832*x - 0.20219683
	case kelvin <= 4000:
		y = -0.9549476*x3 - 1.37418593*x2 + 2.09137015*x - 0.16748867
	default:
		y = 3.0817580*x3 - 5.87338670*x2 + 3.75112997*x - 0.37001483
	}

	return XY{X: scaleChromaticity(x), Y: scaleChromaticity(y)}
}

// Scale maps v from the range [0, fromMax] onto [0, toMax], rounding to the
// nearest integer and clamping out-of-range input. Tasmota reports dimmer,
// hue and saturation on a 0-254 scale; the hub uses 0-100 and 0-360.
func Scale(v, fromMax, toMax int) int {
	if fromMax <= 0 {
		return 0
	}
	if v < 0 {
		v = 0
	}
	if v > fromMax {
		v = fromMax
	}
	return int(math.Round(float64(v) * float64(toMax) / float64(fromMax)))
}

// hsvToRGB converts HSV (h in degrees, s and v in [0,1]) to RGB in [0,1]
// using the six-sector interpolation.
func hsvToRGB(h, s, v float64) (r, g, b float64) {
	sector := h / 60
	i := int(math.Floor(sector)) % 6
	f := sector - math.Floor(sector)

	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	switch i {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

// rgbToHueSat derives hue (degrees) and saturation (percent) from RGB using
// the max/min/delta sector decomposition.
func rgbToHueSat(r, g, b float64) (hue, saturation int) {
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	var h float64
	if delta > 0 {
		switch maxC {
		case r:
			h = 60 * math.Mod((g-b)/delta, 6)
		case g:
			h = 60 * ((b-r)/delta + 2)
		default:
			h = 60 * ((r-g)/delta + 4)
		}
	}

	var s float64
	if maxC > 0 {
		s = delta / maxC
	}

	h = nanToZero(h)
	s = nanToZero(s)

	hue = int(math.Round(h)) % MaxHue
	if hue < 0 {
		hue += MaxHue
	}
	saturation = int(math.Round(clampPercent(s * MaxPercent)))
	return hue, saturation
}

// normalizeDominant rescales an out-of-gamut colour when exactly one channel
// exceeds 1.0 and is larger than both others.
func normalizeDominant(r, g, b float64) (float64, float64, float64) {
	switch {
	case r > g && r > b && r > 1:
		return 1, g / r, b / r
	case g > r && g > b && g > 1:
		return r / g, 1, b / g
	case b > r && b > g && b > 1:
		return r / b, g / b, 1
	}
	return r, g, b
}

func srgbToLinear(c float64) float64 {
	if c <= srgbDecodeThreshold {
		return c / srgbLinearSlope
	}
	return math.Pow((c+srgbOffset)/srgbScale, srgbGamma)
}

// linearToSRGB applies the inverse transfer function. Negative channels are
// out of gamut and clamp to 0.
func linearToSRGB(c float64) float64 {
	if c <= 0 || math.IsNaN(c) {
		return 0
	}
	if c <= srgbEncodeThreshold {
		return srgbLinearSlope * c
	}
	return srgbScale*math.Pow(c, 1/srgbGamma) - srgbOffset
}

func mulVec(m [3][3]float64, a, b, c float64) (float64, float64, float64) {
	return m[0][0]*a + m[0][1]*b + m[0][2]*c,
		m[1][0]*a + m[1][1]*b + m[1][2]*c,
		m[2][0]*a + m[2][1]*b + m[2][2]*c
}

func scaleChromaticity(v float64) int {
	v = nanToZero(v)
	scaled := math.Round(v * MaxChromaticity)
	return int(math.Max(0, math.Min(MaxChromaticity, scaled)))
}

func wrapHue(h float64) float64 {
	h = nanToZero(h)
	h = math.Mod(h, MaxHue)
	if h < 0 {
		h += MaxHue
	}
	return h
}

func clampPercent(v float64) float64 {
	v = nanToZero(v)
	return math.Max(0, math.Min(MaxPercent, v))
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
