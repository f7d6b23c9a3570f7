package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/mediaprobe/pkg/finding"
)

func record(id string, at time.Time, vulnerable ...string) *Record {
	r := &Record{
		ID:        id,
		StartedAt: at,
		Target:    "http://localhost:8080",
		Version:   "test",
		Probes:    finding.Tally{Total: 4, Worst: finding.Info},
	}
	for _, p := range []string{"auth_enforcement", "cors_policy", "rate_limiting", "input_validation"} {
		v := ProbeVerdict{Probe: p, Severity: finding.Info}
		for _, vp := range vulnerable {
			if vp == p {
				v.Vulnerable = true
				v.Severity = finding.Medium
			}
		}
		if v.Vulnerable {
			r.Probes.Vulnerable++
			r.Probes.Worst = finding.Medium
		} else {
			r.Probes.Passed++
		}
		r.Findings = append(r.Findings, v)
	}
	return r
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndList(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, record("a", t0)))
	require.NoError(t, s.Save(ctx, record("b", t0.Add(time.Hour), "cors_policy")))
	other := record("c", t0.Add(2*time.Hour))
	other.Target = "https://api.example.com"
	require.NoError(t, s.Save(ctx, other))

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	local, err := s.List(ctx, "http://localhost:8080", 10)
	require.NoError(t, err)
	require.Len(t, local, 2)
	assert.Equal(t, "b", local[0].ID)
	assert.Equal(t, t0.Add(time.Hour), local[0].StartedAt)
	assert.Equal(t, 1, local[0].Probes.Vulnerable)
	assert.Equal(t, finding.Medium, local[0].Probes.Worst)
	require.Len(t, local[0].Findings, 4)
	assert.True(t, local[0].Findings[1].Vulnerable)
	assert.Equal(t, "cors_policy", local[0].Findings[1].Probe)
}

func TestSaveReplaces(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	r := record("a", time.Now())
	require.NoError(t, s.Save(ctx, r))
	r.ExitCode = 2
	require.NoError(t, s.Save(ctx, r))

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].ExitCode)
	assert.Len(t, all[0].Findings, 4)
}

func TestLatestAndPrevious(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, err := s.Latest(ctx, "http://localhost:8080")
	assert.True(t, errors.Is(err, ErrNotFound))

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := record("a", t0)
	second := record("b", t0.Add(time.Minute))
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	latest, err := s.Latest(ctx, "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	prev, err := s.Previous(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "a", prev.ID)

	_, err = s.Previous(ctx, first)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), record("a", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCompare(t *testing.T) {
	t0 := time.Now()
	base := record("a", t0, "cors_policy")
	current := record("b", t0, "auth_enforcement", "rate_limiting")

	c := Compare(base, current)
	assert.True(t, c.Regressed)
	assert.Equal(t, 1, c.VulnerableDelta)
	assert.Equal(t, []string{"auth_enforcement", "rate_limiting"}, c.NewlyVulnerable)
	assert.Equal(t, []string{"cors_policy"}, c.Fixed)

	same := Compare(base, record("c", t0, "cors_policy"))
	assert.False(t, same.Regressed)
	assert.Empty(t, same.NewlyVulnerable)
}

func TestVerdictsFrom(t *testing.T) {
	ok := finding.NewResult("a")
	bad := finding.NewResult("b")
	bad.Fail(errors.New("timeout"))
	v := VerdictsFrom([]finding.ProbeResult{ok, bad})
	require.Len(t, v, 2)
	assert.False(t, v[0].Errored)
	assert.True(t, v[1].Errored)
}
