package alert

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Code is the category of an alert.
type Code int

const (
	// AliCloudInterrupt: the AliCloud spot instance is about to be released.
	AliCloudInterrupt Code = iota
	// TencentCloudInterrupt: the TencentCloud spot instance is about to be released.
	TencentCloudInterrupt
	// Offline: a monitored server stopped sending heartbeats.
	Offline
	// Online: an offline server is sending heartbeats again.
	Online
)

// String returns the machine-readable name used in subjects and metrics.
func (c Code) String() string {
	switch c {
	case AliCloudInterrupt:
		return "alicloud_interrupt"
	case TencentCloudInterrupt:
		return "tencentcloud_interrupt"
	case Offline:
		return "offline"
	case Online:
		return "online"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Title returns the operator-facing headline of the alert.
func (c Code) Title() string {
	switch c {
	case AliCloudInterrupt:
		return "阿里云服务器释放通知"
	case TencentCloudInterrupt:
		return "腾讯云服务器释放通知"
	case Offline:
		return "服务器离线通知"
	case Online:
		return "服务器上线通知"
	default:
		return c.String()
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// TargetKind says whether an event concerns this host or a remote one.
type TargetKind string

const (
	TargetMyself  TargetKind = "myself"
	TargetAnother TargetKind = "another"
)

// Target is the source of an event.
type Target struct {
	Kind TargetKind `json:"kind"`
	Name string     `json:"name"`
}

// Myself targets the local instance.
func Myself(name string) Target { return Target{Kind: TargetMyself, Name: name} }

// Another targets a remote instance identified by its heartbeat name.
func Another(name string) Target { return Target{Kind: TargetAnother, Name: name} }

// cst is China Standard Time, the zone alerts are rendered in.
var cst = time.FixedZone("CST", 8*60*60)

// DateTimeLayout is the rendering used for Event.DateTime.
const DateTimeLayout = "2006-01-02 15:04:05"

// Event is the payload handed to every notifier.
type Event struct {
	ID       string    `json:"id"`
	Code     Code      `json:"code"`
	Target   Target    `json:"target"`
	Hostname string    `json:"hostname"`
	Time     time.Time `json:"time"`
	Detail   string    `json:"detail,omitempty"`
}

// NewEvent creates an Event with a generated ID, the local hostname and the
// current time.
func NewEvent(code Code, target Target) Event {
	return Event{
		ID:       "evt_" + uuid.NewString(),
		Code:     code,
		Target:   target,
		Hostname: Hostname(),
		Time:     time.Now(),
	}
}

// DateTime renders the event time in UTC+8, e.g. 2024-09-11 16:43:21.
func (e Event) DateTime() string {
	return e.Time.In(cst).Format(DateTimeLayout)
}

// Text renders the event as a plain-text message body.
func (e Event) Text() string {
	text := fmt.Sprintf("%s\n主机: %s\n目标: %s (%s)\n时间: %s",
		e.Code.Title(), e.Hostname, e.Target.Name, e.Target.Kind, e.DateTime())
	if e.Detail != "" {
		text += "\n详情: " + e.Detail
	}
	return text
}

// Hostname returns the system host name, or "" when it cannot be read.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
