// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package staticmap builds static map imagery requests and describes the
// ground area a returned image covers.
package staticmap

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/pdiddy/satfetch/pkg/types"
)

// BaseURL is the static map endpoint. Tests point it at an httptest server.
var BaseURL = "https://maps.googleapis.com/maps/api/staticmap"

const redacted = "REDACTED"

// Web Mercator ground resolution at zoom 0 on the equator, in metres per pixel.
const equatorMetersPerPixel = 156543.03392

const metersPerDegreeLat = 111320.0

// BuildURL returns the request URL for an image centred on lat/lon.
// Parameters appear in a fixed order: center, zoom, size, maptype, scale, key.
func BuildURL(base string, lat, lon float64, img types.ImageryConfig, key string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("?center=")
	b.WriteString(formatCoord(lat))
	b.WriteByte(',')
	b.WriteString(formatCoord(lon))
	b.WriteString("&zoom=")
	b.WriteString(strconv.Itoa(img.Zoom))
	b.WriteString("&size=")
	b.WriteString(url.QueryEscape(img.Size))
	b.WriteString("&maptype=")
	b.WriteString(url.QueryEscape(string(img.MapType)))
	b.WriteString("&scale=")
	b.WriteString(strconv.Itoa(img.Scale))
	b.WriteString("&key=")
	b.WriteString(url.QueryEscape(key))
	return b.String()
}

// Redact replaces the key query value in rawURL so the URL can be logged
// or stored. Unparseable input is returned with everything after '?' dropped.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		base, _, _ := strings.Cut(rawURL, "?")
		return base
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", redacted)
	}
	// Keep center's comma readable.
	u.RawQuery = strings.ReplaceAll(q.Encode(), "%2C", ",")
	return u.String()
}

// MetersPerPixel is the ground resolution of a Web Mercator image at lat.
func MetersPerPixel(lat float64, zoom, scale int) float64 {
	if scale <= 0 {
		scale = 1
	}
	return equatorMetersPerPixel * math.Cos(lat*math.Pi/180) / math.Exp2(float64(zoom)) / float64(scale)
}

// Footprint returns the approximate ground bounding box covered by an
// image centred on lat/lon. Requested Size is in logical pixels; Scale
// raises density, not coverage.
func Footprint(lat, lon float64, img types.ImageryConfig) (orb.Bound, error) {
	w, h, err := img.Dimensions()
	if err != nil {
		return orb.Bound{}, err
	}
	res := MetersPerPixel(lat, img.Zoom, 1)
	halfW := float64(w) * res / 2
	halfH := float64(h) * res / 2

	dLat := halfH / metersPerDegreeLat
	dLon := halfW / (metersPerDegreeLat * math.Cos(lat*math.Pi/180))

	return orb.Bound{
		Min: orb.Point{lon - dLon, lat - dLat},
		Max: orb.Point{lon + dLon, lat + dLat},
	}, nil
}

// BoundSlice flattens b to [minLon, minLat, maxLon, maxLat].
func BoundSlice(b orb.Bound) []float64 {
	return []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
