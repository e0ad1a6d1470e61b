package geoip

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
)

type fakeReader struct {
	calls int
	code  string
	err   error
}

func (f *fakeReader) Country(ip net.IP) (*geoip2.Country, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rec := &geoip2.Country{}
	rec.Country.IsoCode = f.code
	return rec, nil
}

func (f *fakeReader) Close() error { return nil }

func TestResolverCachesLookups(t *testing.T) {
	reader := &fakeReader{code: "BR"}
	r := NewResolverFromReader(reader)
	for i := 0; i < 3; i++ {
		code, err := r.CountryCode("200.160.2.3")
		if err != nil || code != "BR" {
			t.Fatalf("CountryCode = %q, %v", code, err)
		}
	}
	if reader.calls != 1 {
		t.Fatalf("reader calls = %d, want 1", reader.calls)
	}
}

func TestResolverSkipsPrivateAndInvalid(t *testing.T) {
	reader := &fakeReader{code: "US"}
	r := NewResolverFromReader(reader)
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "::1"} {
		if code, err := r.CountryCode(ip); err != nil || code != "" {
			t.Fatalf("CountryCode(%s) = %q, %v", ip, code, err)
		}
	}
	if _, err := r.CountryCode("nope"); err == nil {
		t.Fatal("invalid ip should fail")
	}
	if reader.calls != 0 {
		t.Fatalf("reader calls = %d, want 0", reader.calls)
	}
}

func TestNilResolver(t *testing.T) {
	r, err := NewResolver("")
	if err != nil || r != nil {
		t.Fatalf("NewResolver(\"\") = %v, %v", r, err)
	}
	if _, err := r.CountryCode("8.8.8.8"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if r.Lookup() != nil {
		t.Fatal("nil resolver should not provide a lookup")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
}
