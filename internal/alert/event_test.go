package alert

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCodeTitle(t *testing.T) {
	if got := AliCloudInterrupt.Title(); got != "阿里云服务器释放通知" {
		t.Errorf("AliCloudInterrupt title = %q", got)
	}
	if got := Online.Title(); got != "服务器上线通知" {
		t.Errorf("Online title = %q", got)
	}
	if got := Offline.String(); got != "offline" {
		t.Errorf("Offline string = %q", got)
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(Offline, Another("X"))
	if !strings.HasPrefix(ev.ID, "evt_") {
		t.Errorf("ID = %q, want evt_ prefix", ev.ID)
	}
	if ev.Hostname != Hostname() {
		t.Errorf("hostname = %q, want %q", ev.Hostname, Hostname())
	}
	if ev.Time.IsZero() {
		t.Error("time not set")
	}
}

func TestDateTimeIsChinaStandardTime(t *testing.T) {
	ev := Event{Time: time.Date(2024, 9, 11, 8, 43, 21, 0, time.UTC)}
	if got := ev.DateTime(); got != "2024-09-11 16:43:21" {
		t.Fatalf("DateTime = %q, want 2024-09-11 16:43:21", got)
	}
	if _, err := time.Parse(DateTimeLayout, NewEvent(Online, Myself("h")).DateTime()); err != nil {
		t.Fatalf("DateTime does not parse: %v", err)
	}
}

func TestEventText(t *testing.T) {
	ev := Event{
		Code:     TencentCloudInterrupt,
		Target:   Myself("cvm-1"),
		Hostname: "cvm-1",
		Time:     time.Date(2024, 9, 11, 8, 43, 21, 0, time.UTC),
		Detail:   "2024-09-11T08:45:00Z",
	}
	text := ev.Text()
	for _, want := range []string{"腾讯云服务器释放通知", "cvm-1", "2024-09-11 16:43:21", "2024-09-11T08:45:00Z"} {
		if !strings.Contains(text, want) {
			t.Errorf("text %q missing %q", text, want)
		}
	}
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(Event{ID: "evt_1", Code: Online, Target: Another("Q")})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	json.Unmarshal(data, &m)
	if m["code"] != "online" {
		t.Errorf("code = %v, want online", m["code"])
	}
	target := m["target"].(map[string]any)
	if target["kind"] != "another" || target["name"] != "Q" {
		t.Errorf("target = %v", target)
	}
}
