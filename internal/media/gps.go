package media

import (
	"bytes"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// ExtractGPS reads the GPS position embedded in an image's EXIF data. It
// returns ok=false whenever a field is missing or malformed.
func ExtractGPS(raw []byte) (lat, lon float64, ok bool) {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, false
	}

	lat, ok = coordinate(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	if !ok {
		return 0, 0, false
	}
	lon, ok = coordinate(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if !ok {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

func coordinate(x *exif.Exif, field, refField exif.FieldName) (float64, bool) {
	tag, err := x.Get(field)
	if err != nil || tag.Count < 3 {
		return 0, false
	}
	var dms [3]float64
	for i := range dms {
		// Rat panics on a zero denominator, which cameras write for unknown fields.
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return 0, false
		}
		dms[i] = float64(num) / float64(den)
	}

	ref := ""
	if refTag, err := x.Get(refField); err == nil {
		ref, _ = refTag.StringVal()
	}
	return DMSToDecimal(dms[0], dms[1], dms[2], ref), true
}

// DMSToDecimal converts degrees, minutes and seconds to decimal degrees,
// negative for the southern and western hemispheres.
func DMSToDecimal(degrees, minutes, seconds float64, ref string) float64 {
	d := degrees + minutes/60 + seconds/3600
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		return -d
	}
	return d
}
