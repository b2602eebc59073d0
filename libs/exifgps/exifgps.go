// Package exifgps extracts embedded GPS coordinates from image binaries.
//
// The package is intentionally forgiving: malformed EXIF blocks, missing
// geotags and truncated files all resolve to a nil coordinate rather than
// an error, so callers can always fall back to another location source.
package exifgps

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"
)

// Coordinate is a signed decimal-degree position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FromImage decodes the EXIF block of an image and returns its GPS
// position, or nil when the image carries no usable geotag.
func FromImage(data []byte) (coord *Coordinate) {
	// goexif can panic on hostile inputs; treat that as "no geotag".
	defer func() {
		if recover() != nil {
			coord = nil
		}
	}()

	meta, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	lat, ok := dmsValue(meta, exif.GPSLatitude, exif.GPSLatitudeRef)
	if !ok {
		return nil
	}
	lng, ok := dmsValue(meta, exif.GPSLongitude, exif.GPSLongitudeRef)
	if !ok {
		return nil
	}
	return &Coordinate{Lat: lat, Lng: lng}
}

func dmsValue(meta *exif.Exif, field, refField exif.FieldName) (float64, bool) {
	tag, err := meta.Get(field)
	if err != nil || tag.Count < 3 {
		return 0, false
	}
	refTag, err := meta.Get(refField)
	if err != nil {
		return 0, false
	}
	ref, err := refTag.StringVal()
	if err != nil || ref == "" {
		return 0, false
	}

	parts := make([]float64, 3)
	for i := 0; i < 3; i++ {
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return 0, false
		}
		parts[i] = float64(num) / float64(den)
	}

	return ConvertDMSToDD(parts[0], parts[1], parts[2], ref), true
}

// ConvertDMSToDD converts degrees/minutes/seconds plus a hemisphere
// reference ("N", "S", "E", "W") to signed decimal degrees.
func ConvertDMSToDD(degrees, minutes, seconds float64, ref string) float64 {
	dd := degrees + minutes/60 + seconds/3600
	if ref == "S" || ref == "W" {
		dd = -dd
	}
	return dd
}
