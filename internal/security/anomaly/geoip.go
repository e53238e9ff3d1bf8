package anomaly

import (
	"errors"
	"net"

	"github.com/oschwald/geoip2-golang"
)

var ErrInvalidIP = errors.New("anomaly: invalid ip")

// GeoIPLocator resuelve países con una base MaxMind (GeoLite2-Country o City).
type GeoIPLocator struct {
	db *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIPLocator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIPLocator{db: db}, nil
}

func (g *GeoIPLocator) Country(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", ErrInvalidIP
	}
	record, err := g.db.Country(parsed)
	if err != nil {
		return "", err
	}
	return record.Country.IsoCode, nil
}

func (g *GeoIPLocator) Close() error { return g.db.Close() }
