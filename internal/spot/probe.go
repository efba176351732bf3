// Package spot watches the cloud metadata service for spot instance
// interruption notices.
package spot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Metadata endpoints that answer 200 with the termination time once the
// instance is scheduled for release, and 404 before that.
const (
	AliCloudURL     = "http://100.100.100.200/latest/meta-data/instance/spot/termination-time"
	TencentCloudURL = "http://metadata.tencentyun.com/latest/meta-data/spot/termination-time"
)

// Instance identity endpoints, read once a release is scheduled.
const (
	AliCloudInstanceIDURL       = "http://100.100.100.200/latest/meta-data/instance-id"
	AliCloudInstanceNameURL     = "http://100.100.100.200/latest/meta-data/instance/instance-name"
	TencentCloudInstanceIDURL   = "http://metadata.tencentyun.com/latest/meta-data/instance-id"
	TencentCloudInstanceNameURL = "http://metadata.tencentyun.com/latest/meta-data/instance-name"
)

// ProbeTimeout bounds a single metadata query.
const ProbeTimeout = time.Second

// Status is the outcome of a metadata query.
type Status int

const (
	// Unknown: the metadata service failed or answered unexpectedly.
	Unknown Status = iota
	// Imminent: the instance will be released in a few minutes.
	Imminent
	// Normal: no interruption is scheduled.
	Normal
)

func (s Status) String() string {
	switch s {
	case Imminent:
		return "imminent"
	case Normal:
		return "normal"
	default:
		return "unknown"
	}
}

// Result carries the status and, when Imminent, the reported termination
// time and whatever instance identity the metadata service returned.
type Result struct {
	Status          Status
	TerminationTime string
	InstanceID      string
	InstanceName    string
}

// Detail renders the known fields as space separated key=value pairs.
func (r Result) Detail() string {
	var parts []string
	if r.InstanceID != "" {
		parts = append(parts, "instance_id="+r.InstanceID)
	}
	if r.InstanceName != "" {
		parts = append(parts, "instance_name="+r.InstanceName)
	}
	if r.TerminationTime != "" {
		parts = append(parts, "release_time="+r.TerminationTime)
	}
	return strings.Join(parts, " ")
}

// Probe queries a metadata service once.
type Probe interface {
	Query(ctx context.Context) (Result, error)
}

// HTTPProbe queries a termination-time endpoint over HTTP.
type HTTPProbe struct {
	url     string
	idURL   string
	nameURL string
	client  *http.Client
}

// NewHTTPProbe creates a probe for url with the standard timeout.
func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{url: url, client: &http.Client{Timeout: ProbeTimeout}}
}

// NewProviderProbe creates a probe on the provider's metadata endpoints,
// including the instance identity lookups.
func NewProviderProbe(p Provider) *HTTPProbe {
	return NewHTTPProbe(p.MetadataURL()).WithInstance(p.InstanceURLs())
}

// WithInstance sets the endpoints read for the instance id and name when a
// release is scheduled. Empty URLs are skipped.
func (p *HTTPProbe) WithInstance(idURL, nameURL string) *HTTPProbe {
	p.idURL = idURL
	p.nameURL = nameURL
	return p
}

// Query implements Probe. Transport failures return Unknown with the error.
func (p *HTTPProbe) Query(ctx context.Context) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Status: Unknown}, fmt.Errorf("query %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{
			Status:          Imminent,
			TerminationTime: strings.TrimSpace(string(body)),
			InstanceID:      p.lookup(ctx, p.idURL),
			InstanceName:    p.lookup(ctx, p.nameURL),
		}, nil
	case http.StatusNotFound:
		return Result{Status: Normal}, nil
	default:
		return Result{Status: Unknown}, fmt.Errorf("query %s: HTTP %d: %s", p.url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// lookup reads one identity field. Failures yield "" so the alert still goes
// out with the termination time.
func (p *HTTPProbe) lookup(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return strings.TrimSpace(string(body))
}
