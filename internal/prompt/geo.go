package prompt

import (
	"net/http"
	"net/url"
	"strings"
)

// Geo is the approximate caller location inferred from edge proxy headers.
type Geo struct {
	City      string
	Region    string
	Country   string
	Latitude  string
	Longitude string
}

func (g Geo) Empty() bool {
	return g.City == "" && g.Region == "" && g.Country == ""
}

// GeoFromHeaders reads the location headers set by the edge network.
// Values are URL-encoded on the wire.
func GeoFromHeaders(h http.Header) Geo {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := h.Get(k); v != "" {
				if dec, err := url.QueryUnescape(v); err == nil {
					v = dec
				}
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	return Geo{
		City:      get("X-Vercel-IP-City"),
		Region:    get("X-Vercel-IP-Country-Region"),
		Country:   get("X-Vercel-IP-Country", "CF-IPCountry"),
		Latitude:  get("X-Vercel-IP-Latitude"),
		Longitude: get("X-Vercel-IP-Longitude"),
	}
}
