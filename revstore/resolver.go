package revstore

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/miekg/dns"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
)

// DefaultResolverAddr is the systemd-resolved stub listener used when no
// resolver address is configured.
const DefaultResolverAddr = "127.0.0.53:53"

// mirrorTXTPrefix marks TXT records that publish mirror locations. A
// domain advertises its mirrors as TXT records of the form
// "mirror=github://owner/repo".
const mirrorTXTPrefix = "mirror="

// MirrorResolver expands dns:// mirror locations into the concrete store
// URIs a domain publishes in its TXT records. This lets deployments
// rotate mirrors without reconfiguring every walker.
type MirrorResolver struct {
	addr string
	log  *slog.Logger
}

// NewMirrorResolver creates a resolver querying the DNS server at addr.
// An empty addr selects DefaultResolverAddr.
func NewMirrorResolver(addr string, log *slog.Logger) *MirrorResolver {
	if addr == "" {
		addr = DefaultResolverAddr
	}
	return &MirrorResolver{
		addr: addr,
		log:  log,
	}
}

// Resolve looks up the mirror locations published for a dns:// URI.
// URI format: dns://mirrors.example.org
func (r *MirrorResolver) Resolve(location string) ([]interfaces.StoreLocation, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}
	if !strings.EqualFold(u.Scheme, "dns") || u.Host == "" {
		return nil, fmt.Errorf("%w: expected dns://domain", interfaces.ErrInvalidLocationURI)
	}

	records, err := r.lookupTXT(dns.Fqdn(u.Host))
	if err != nil {
		return nil, fmt.Errorf("%w: TXT lookup for %s failed: %v", interfaces.ErrStoreUnavailable, u.Host, err)
	}

	locations := make([]interfaces.StoreLocation, 0, len(records))
	for _, record := range records {
		if !strings.HasPrefix(record, mirrorTXTPrefix) {
			continue
		}
		locations = append(locations, interfaces.StoreLocation(strings.TrimPrefix(record, mirrorTXTPrefix)))
	}

	if len(locations) == 0 {
		return nil, fmt.Errorf("no mirror records published for %s", u.Host)
	}

	r.log.Debug("Resolved mirror locations",
		slog.String("domain", u.Host),
		slog.Int("count", len(locations)))

	return locations, nil
}

func (r *MirrorResolver) lookupTXT(fqdn string) ([]string, error) {
	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.Question = make([]dns.Question, 1)
	m.Question[0] = dns.Question{Name: fqdn, Qtype: dns.TypeTXT, Qclass: dns.ClassINET}

	c := new(dns.Client)
	in, _, err := c.Exchange(m, r.addr)
	if err != nil {
		return nil, err
	}

	records := make([]string, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if txt, ok := answer.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}

	return records, nil
}
