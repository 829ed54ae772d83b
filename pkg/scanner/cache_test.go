package scanner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportCache_GetSet(t *testing.T) {
	cache := NewReportCache(10, time.Minute)

	report := Scan("acme/deploy", "clean content")
	cache.Set("hash-1", report)

	got, ok := cache.Get("hash-1")
	require.True(t, ok)
	assert.Equal(t, report.RiskScore, got.RiskScore)

	_, ok = cache.Get("hash-2")
	assert.False(t, ok)
}

func TestReportCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := NewReportCache(2, time.Minute)

	cache.Set("a", &Report{SkillID: "a"})
	time.Sleep(2 * time.Millisecond)
	cache.Set("b", &Report{SkillID: "b"})
	time.Sleep(2 * time.Millisecond)
	cache.Set("c", &Report{SkillID: "c"})

	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = cache.Get("b")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestReportCache_TTLExpiry(t *testing.T) {
	cache := NewReportCache(10, 10*time.Millisecond)

	cache.Set("a", &Report{SkillID: "a"})
	time.Sleep(20 * time.Millisecond)

	_, ok := cache.Get("a")
	assert.False(t, ok, "expired entry should not be returned")
}

func TestReportCache_ConcurrentAccess(t *testing.T) {
	cache := NewReportCache(100, time.Minute)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d", j%20)
				cache.Set(key, &Report{SkillID: key})
				cache.Get(key)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
