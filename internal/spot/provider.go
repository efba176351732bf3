package spot

import (
	"fmt"
	"strings"

	"github.com/icwatch/icwatch/internal/alert"
)

// Provider is the cloud the local instance runs on.
type Provider string

const (
	AliCloud     Provider = "AliCloud"
	TencentCloud Provider = "TencentCloud"
	LocalHost    Provider = "LocalHost"
)

// ParseProvider accepts the provider names case-insensitively.
func ParseProvider(s string) (Provider, error) {
	for _, p := range []Provider{AliCloud, TencentCloud, LocalHost} {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q (want AliCloud, TencentCloud or LocalHost)", s)
}

// MetadataURL returns the termination-time endpoint, or "" for LocalHost.
func (p Provider) MetadataURL() string {
	switch p {
	case AliCloud:
		return AliCloudURL
	case TencentCloud:
		return TencentCloudURL
	default:
		return ""
	}
}

// InstanceURLs returns the instance id and name endpoints, or "" for LocalHost.
func (p Provider) InstanceURLs() (idURL, nameURL string) {
	switch p {
	case AliCloud:
		return AliCloudInstanceIDURL, AliCloudInstanceNameURL
	case TencentCloud:
		return TencentCloudInstanceIDURL, TencentCloudInstanceNameURL
	default:
		return "", ""
	}
}

// AlertCode returns the interruption alert code for the provider.
func (p Provider) AlertCode() (alert.Code, bool) {
	switch p {
	case AliCloud:
		return alert.AliCloudInterrupt, true
	case TencentCloud:
		return alert.TencentCloudInterrupt, true
	default:
		return 0, false
	}
}
