// Package endpoint builds the per-family HTTP order sender: the set of
// headers a broker expects, the dynamic signature for the exir family, and
// the probe request used to calibrate network delay. Grounded in
// original_source/exir.rs::send_order and standard_broker.rs::send_order,
// carried over with the teacher's internal/httpclient client-builder idiom.
package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sarkhati/dispatcher/internal/calibration"
	"github.com/sarkhati/dispatcher/internal/httpclient"
	"github.com/sarkhati/dispatcher/internal/registry"
	"github.com/sarkhati/dispatcher/internal/safeurl"
	"github.com/sarkhati/dispatcher/internal/signature"
)

// Profile is one endpoint bound to a resolved registry document: the
// immutable configuration a single run operates against, per spec.md's
// EndpointProfile type.
type Profile struct {
	Name       string
	Family     registry.Family
	Doc        registry.Document
	DelayModel registry.DelayModel
	Client     *http.Client
}

// FromDocument builds a Profile from a loaded registry document.
func FromDocument(name string, fam registry.Family, doc registry.Document, client *http.Client) (Profile, error) {
	if !safeurl.IsHTTPOrHTTPS(doc.OrderURL) {
		return Profile{}, fmt.Errorf("endpoint %s: order_url has an invalid scheme (only http/https allowed)", name)
	}
	if client == nil {
		client = Client()
	}
	return Profile{
		Name:       name,
		Family:     fam,
		Doc:        doc,
		DelayModel: doc.DelayModel,
		Client:     client,
	}, nil
}

// Client returns the HTTP client used for order sends, per spec.md §5's
// "stateless fresh connection each time by default" policy for the
// order-sender path.
func Client() *http.Client { return httpclient.ForOrder() }

// ProbeClient returns the HTTP client shared across an endpoint's calibration
// probes, so TCP/TLS warm-up is paid once and reused, per spec.md §5.
func ProbeClient() *http.Client { return httpclient.ForProbe() }

// ProbeURL returns scheme+host[:port] of the order URL, with no path — the
// calibration probe targets the authority the order is sent to, not the
// order endpoint itself.
func ProbeURL(orderURL string) (string, error) {
	parsed, err := url.Parse(orderURL)
	if err != nil {
		return "", fmt.Errorf("endpoint: parse order_url: %w", err)
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), nil
}

// authHeader returns the header name and value the profile authenticates
// with: cookie takes precedence when both are set, matching how the exir and
// standard brokers each recognize exactly one of the two.
func (p Profile) authHeader() (string, string) {
	if p.Doc.Cookie != "" {
		return "Cookie", p.Doc.Cookie
	}
	return "Authorization", p.Doc.Authorization
}

// headers returns the full header set for an outbound request of kind
// "probe" or "order". The exir family carries its nt secret two different
// ways depending on kind: probes attach it verbatim under a raw "nt" header,
// while order sends attach the dynamic X-App-N signature derived from it —
// matching exir_broker.rs's send_probe/send_order split exactly.
func (p Profile) headers(kind, targetURL string, now time.Time) http.Header {
	h := http.Header{}
	h.Set("User-Agent", p.Doc.UserAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	h.Set("Connection", "keep-alive")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Priority", "u=0")
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache")

	name, value := p.authHeader()
	h.Set(name, value)

	if p.Family == registry.FamilyExir {
		switch kind {
		case "probe":
			h.Set("nt", p.Doc.Nt)
		case "order":
			h.Set("X-App-N", signature.XAppN(p.Doc.Nt, targetURL, now))
		}
	}

	if kind == "order" {
		h.Set("Content-Type", "application/json")
	}
	return h
}

// Probe performs one lightweight round-trip against the endpoint's order
// authority and returns its observed RTT, per spec.md §4.2's probe design: a
// HEAD request carrying the same authentication material the order uses.
func Probe(ctx context.Context, p Profile) (calibration.Sample, error) {
	probeURL, err := ProbeURL(p.Doc.OrderURL)
	if err != nil {
		return calibration.Sample{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return calibration.Sample{}, fmt.Errorf("endpoint %s: build probe request: %w", p.Name, err)
	}
	req.Header = p.headers("probe", probeURL, time.Now().UTC())

	start := time.Now()
	resp, err := p.Client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return calibration.Sample{}, fmt.Errorf("endpoint %s: probe request: %w", p.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return calibration.Sample{
		RTTMs:     elapsed.Milliseconds(),
		RTTMicros: elapsed.Microseconds(),
		Status:    resp.StatusCode,
	}, nil
}

// SendResult carries the outcome of one order dispatch.
type SendResult struct {
	Status int
	Body   string
}

// Send POSTs orderPayload (opaque JSON, per spec.md's "treated as opaque by
// the core") to the endpoint's order_url and returns the response status and
// body. A non-2xx status is itself an error (spec.md §7's Transport
// condition), matching exir_broker.rs::send_order's
// `if !status.is_success() { bail!(...) }`; callers add their own context
// (order index, endpoint label).
func Send(ctx context.Context, p Profile, orderPayload json.RawMessage) (SendResult, error) {
	body := []byte(orderPayload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Doc.OrderURL, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("endpoint %s: build order request: %w", p.Name, err)
	}
	req.Header = p.headers("order", p.Doc.OrderURL, time.Now().UTC())
	req.ContentLength = int64(len(body))

	resp, err := p.Client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("endpoint %s: order request: %w", p.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("endpoint %s: read order response: %w", p.Name, err)
	}

	result := SendResult{Status: resp.StatusCode, Body: string(respBody)}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("endpoint %s: order failed with status %d: %s", p.Name, resp.StatusCode, result.Body)
	}
	return result, nil
}

// CurlCommand renders an equivalent curl invocation for orderPayload without
// performing the request, per spec.md §4.3's curl-only mode.
func CurlCommand(p Profile, orderPayload json.RawMessage) string {
	h := p.headers("order", p.Doc.OrderURL, time.Now().UTC())

	var b strings.Builder
	fmt.Fprintf(&b, "curl '%s' \\\n  --compressed \\\n  -X POST \\\n", p.Doc.OrderURL)
	for _, k := range []string{"User-Agent", "Accept", "Accept-Language", "Accept-Encoding", "Content-Type", "Cookie", "Authorization", "X-App-N", "nt", "Connection", "Sec-Fetch-Dest", "Sec-Fetch-Mode", "Sec-Fetch-Site", "Priority", "Pragma", "Cache-Control"} {
		if v := h.Get(k); v != "" {
			fmt.Fprintf(&b, "  -H '%s: %s' \\\n", k, v)
		}
	}
	fmt.Fprintf(&b, "  --data-raw '%s'", string(orderPayload))
	return b.String()
}
