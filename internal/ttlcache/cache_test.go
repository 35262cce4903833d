package ttlcache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCache_SetGet_RoundTrip(t *testing.T) {
	c := New()
	fp := Fingerprint("hello world")
	c.Set("hyde", fp, "cached answer", 30*time.Minute)

	v, ok := c.Get("hyde", fp)
	require.True(t, ok)
	require.Equal(t, "cached answer", v)
}

func TestCache_Get_MissingKey(t *testing.T) {
	c := New()
	_, ok := c.Get("hyde", Fingerprint("nope"))
	require.False(t, ok)
}

func TestCache_Get_ExpiredEntryEvicted(t *testing.T) {
	c := New()
	fixed := time.Now()
	c.now = func() time.Time { return fixed }
	fp := Fingerprint("x")
	c.Set("ent", fp, 42, time.Second)

	c.now = func() time.Time { return fixed.Add(2 * time.Second) }
	_, ok := c.Get("ent", fp)
	require.False(t, ok)

	// eviction must have removed the backing entry, not just hidden it
	c.mu.Lock()
	_, present := c.data[cacheKey("ent", fp)]
	c.mu.Unlock()
	require.False(t, present)
}

func TestCache_Namespaces_DoNotCollide(t *testing.T) {
	c := New()
	fp := Fingerprint("same text")
	c.Set("hyde", fp, "hyde-value", time.Hour)
	c.Set("ent", fp, "ent-value", time.Hour)

	v1, _ := c.Get("hyde", fp)
	v2, _ := c.Get("ent", fp)
	require.Equal(t, "hyde-value", v1)
	require.Equal(t, "ent-value", v2)
}

func TestCache_GetOrCompute_CallsOnceOnHit(t *testing.T) {
	c := New()
	fp := Fingerprint("q")
	calls := 0
	compute := func() (any, error) {
		calls++
		return "computed", nil
	}

	v1, err := c.GetOrCompute("hyde", fp, time.Hour, compute)
	require.NoError(t, err)
	require.Equal(t, "computed", v1)

	v2, err := c.GetOrCompute("hyde", fp, time.Hour, compute)
	require.NoError(t, err)
	require.Equal(t, "computed", v2)
	require.Equal(t, 1, calls)
}

func TestCache_GetOrCompute_PropagatesError(t *testing.T) {
	c := New()
	fp := Fingerprint("q")
	wantErr := errors.New("boom")
	_, err := c.GetOrCompute("rel", fp, time.Hour, func() (any, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	_, ok := c.Get("rel", fp)
	require.False(t, ok, "a failed compute must not be cached")
}

func TestFingerprint_DeterministicAndSixteenChars(t *testing.T) {
	a := Fingerprint("same input")
	b := Fingerprint("same input")
	require.Equal(t, a, b)
	require.Len(t, a, 16)

	c := Fingerprint("different input")
	require.NotEqual(t, a, c)
}
