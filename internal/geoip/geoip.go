// Package geoip resolves IP addresses to coarse locations. It never
// returns an error to callers: any failure (unparseable input, private
// or loopback address, missing database, record not found) produces the
// "Unknown" sentinel pair instead.
package geoip

import (
	"io"
	"log/slog"
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"

	"github.com/linklift/linklift/internal/model"
)

// Service wraps a MaxMind city database reader.
type Service struct {
	reader *geoip2.Reader
	logger *slog.Logger
}

// New opens the MaxMind database at path. A missing or unreadable
// database is logged and tolerated; the service then answers Unknown for
// every lookup.
func New(path string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{logger: logger}

	if path == "" {
		logger.Info("no geoip database configured, lookups return Unknown")
		return s
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		logger.Error("failed to load geoip database, lookups return Unknown", "path", path, "error", err)
		return s
	}
	logger.Info("geoip database loaded", "path", path)
	s.reader = reader
	return s
}

// Close releases the database reader. Safe on a service without one.
func (s *Service) Close() {
	if s != nil && s.reader != nil {
		s.reader.Close()
	}
}

// Locate resolves an IP address (optionally host:port form) to a country
// and city. It never fails; see the package comment.
func (s *Service) Locate(ipAddress string) model.GeoLocation {
	if s == nil {
		return model.UnknownLocation()
	}

	// Accept the host:port form http.Request.RemoteAddr uses.
	if host, _, err := net.SplitHostPort(ipAddress); err == nil {
		ipAddress = host
	}

	addr, err := netip.ParseAddr(ipAddress)
	if err != nil {
		return model.UnknownLocation()
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		return model.UnknownLocation()
	}
	if s.reader == nil {
		return model.UnknownLocation()
	}

	record, err := s.reader.City(net.IP(addr.AsSlice()))
	if err != nil {
		s.logger.Debug("geoip lookup failed", "ip", ipAddress, "error", err)
		return model.UnknownLocation()
	}

	loc := model.GeoLocation{
		Country: record.Country.Names["en"],
		City:    record.City.Names["en"],
	}
	if loc.Country == "" {
		loc.Country = model.GeoUnknown
	}
	if loc.City == "" {
		loc.City = model.GeoUnknown
	}
	return loc
}
