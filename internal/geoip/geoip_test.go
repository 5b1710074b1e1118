package geoip

import (
	"testing"

	"github.com/linklift/linklift/internal/model"
)

func TestLocateWithoutDatabase(t *testing.T) {
	s := New("", nil)
	t.Cleanup(s.Close)

	loc := s.Locate("203.0.113.10")
	if loc.Country != model.GeoUnknown || loc.City != model.GeoUnknown {
		t.Errorf("got %+v, want Unknown/Unknown without a database", loc)
	}
}

func TestLocateRejectsNonPublicAddresses(t *testing.T) {
	s := New("", nil)
	t.Cleanup(s.Close)

	tests := []string{
		"127.0.0.1",
		"127.0.0.1:54321", // host:port form from RemoteAddr
		"10.1.2.3",
		"192.168.0.5",
		"::1",
		"0.0.0.0",
		"fe80::1",
		"not-an-ip",
		"",
	}
	for _, ip := range tests {
		loc := s.Locate(ip)
		if loc != model.UnknownLocation() {
			t.Errorf("Locate(%q) = %+v, want Unknown", ip, loc)
		}
	}
}

func TestMissingDatabaseTolerated(t *testing.T) {
	s := New("/nonexistent/GeoLite2-City.mmdb", nil)
	t.Cleanup(s.Close)

	loc := s.Locate("203.0.113.10")
	if loc != model.UnknownLocation() {
		t.Errorf("got %+v, want Unknown with a missing database", loc)
	}
}

func TestNilServiceSafe(t *testing.T) {
	var s *Service
	if loc := s.Locate("203.0.113.10"); loc != model.UnknownLocation() {
		t.Errorf("got %+v, want Unknown from nil service", loc)
	}
	s.Close()
}
