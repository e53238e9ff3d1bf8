package anomaly

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/lexguard/internal/audit"
	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	entries []repository.AuditEntry
	err     error
	delay   time.Duration
	gotN    int
}

func (s *stubSource) RecentForAccount(ctx context.Context, _ string, n int) ([]repository.AuditEntry, error) {
	s.gotN = n
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.entries, s.err
}

func history(ips ...string) []repository.AuditEntry {
	out := make([]repository.AuditEntry, 0, len(ips))
	for _, ip := range ips {
		out = append(out, repository.AuditEntry{EventType: "LOGIN_SUCCESS", IP: ip})
	}
	return out
}

func at(hour int) time.Time {
	return time.Date(2025, 2, 3, hour, 30, 0, 0, time.UTC)
}

func newUTC(src ActivitySource, loc Locator) *Detector {
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	return NewDetector(src, loc, cfg)
}

func types(as []Anomaly) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Type)
	}
	return out
}

func TestDetect_KnownIPDaytime(t *testing.T) {
	t.Parallel()
	src := &stubSource{entries: history("10.0.0.1", "10.0.0.2")}
	got := newUTC(src, nil).Detect(context.Background(), "acc", "10.0.0.2", "ua", at(14))
	require.Empty(t, got)
	require.Equal(t, 10, src.gotN)
}

func TestDetect_NewIP(t *testing.T) {
	t.Parallel()
	got := newUTC(&stubSource{entries: history("10.0.0.1")}, nil).
		Detect(context.Background(), "acc", "198.51.100.4", "ua", at(10))
	require.Len(t, got, 1)
	require.Equal(t, Anomaly{Type: TypeNewIP, Severity: SeverityMedium, Details: map[string]any{"ip": "198.51.100.4"}}, got[0])
}

func TestDetect_NoHistoryCountsAsNewIP(t *testing.T) {
	t.Parallel()
	got := newUTC(&stubSource{}, nil).Detect(context.Background(), "acc", "10.0.0.1", "ua", at(10))
	require.Equal(t, []string{TypeNewIP}, types(got))
}

func TestDetect_UnusualTimeBoundaries(t *testing.T) {
	t.Parallel()
	d := newUTC(&stubSource{entries: history("10.0.0.1")}, nil)
	cases := map[int]bool{0: true, 5: true, 6: false, 12: false, 21: false, 22: true, 23: true}
	for hour, unusual := range cases {
		got := d.Detect(context.Background(), "acc", "10.0.0.1", "ua", at(hour))
		if unusual {
			require.Equal(t, []string{TypeUnusualTime}, types(got), "hour %d", hour)
			require.Equal(t, SeverityLow, got[0].Severity)
		} else {
			require.Empty(t, got, "hour %d", hour)
		}
	}
}

func TestDetect_UsesConfiguredLocation(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Location = time.FixedZone("ART", -3*3600)
	d := NewDetector(&stubSource{entries: history("10.0.0.1")}, nil, cfg)

	// 07:30 UTC son 04:30 en UTC-3.
	got := d.Detect(context.Background(), "acc", "10.0.0.1", "ua", at(7))
	require.Equal(t, []string{TypeUnusualTime}, types(got))
}

func TestDetect_FailsOpen(t *testing.T) {
	t.Parallel()
	got := newUTC(&stubSource{err: errors.New("db down")}, nil).Detect(context.Background(), "acc", "1.2.3.4", "ua", at(3))
	require.Nil(t, got)
}

func TestDetect_TimeoutFailsOpen(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	d := NewDetector(&stubSource{delay: time.Second}, nil, cfg)

	start := time.Now()
	require.Nil(t, d.Detect(context.Background(), "acc", "1.2.3.4", "ua", at(3)))
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

type panickySource struct{}

func (panickySource) RecentForAccount(context.Context, string, int) ([]repository.AuditEntry, error) {
	panic("boom")
}

func TestDetect_PanicFailsOpen(t *testing.T) {
	t.Parallel()
	require.Nil(t, newUTC(panickySource{}, nil).Detect(context.Background(), "acc", "1.2.3.4", "ua", at(3)))
}

type mapLocator map[string]string

func (m mapLocator) Country(ip string) (string, error) {
	if c, ok := m[ip]; ok {
		return c, nil
	}
	return "", errors.New("unknown")
}

func TestDetect_NewCountry(t *testing.T) {
	t.Parallel()
	loc := mapLocator{"10.0.0.1": "AR", "10.0.0.2": "AR", "203.0.113.9": "RU", "198.51.100.1": "AR"}
	src := &stubSource{entries: history("10.0.0.1", "10.0.0.2")}
	d := newUTC(src, loc)

	got := d.Detect(context.Background(), "acc", "203.0.113.9", "ua", at(12))
	require.Equal(t, []string{TypeNewIP, TypeNewCountry}, types(got))

	got = d.Detect(context.Background(), "acc", "198.51.100.1", "ua", at(12))
	require.Equal(t, []string{TypeNewIP}, types(got))
}

func TestDeduper(t *testing.T) {
	t.Parallel()
	d := NewDeduper(time.Minute)
	a := Anomaly{Type: TypeNewIP}
	require.True(t, d.First("acc", a))
	require.False(t, d.First("acc", a))
	require.True(t, d.First("other", a))
	require.True(t, d.First("acc", Anomaly{Type: TypeUnusualTime}))
}

type countingAudit struct{ events []string }

func (c *countingAudit) Log(_ context.Context, eventType string, _ map[string]any, _ string, _ *audit.RequestContext) {
	c.events = append(c.events, eventType)
}

func TestRecorder_DedupesAuditButCountsAll(t *testing.T) {
	t.Parallel()
	a := &countingAudit{}
	kinds := 0
	r := &Recorder{Audit: a, Deduper: NewDeduper(time.Minute), OnDetected: func(string) { kinds++ }}

	found := []Anomaly{{Type: TypeNewIP}, {Type: TypeUnusualTime}}
	r.Record(context.Background(), "acc", found)
	r.Record(context.Background(), "acc", found)

	require.Equal(t, 4, kinds)
	require.Equal(t, []string{audit.EventAnomalyDetected, audit.EventAnomalyDetected}, a.events)
}
