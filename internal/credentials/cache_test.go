package credentials

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIssuer struct {
	mu       sync.Mutex
	calls    int32
	token    string
	lifetime time.Duration
	err      error
}

func (f *fakeIssuer) AcquireToken(_ context.Context, tenantID, resource string) (string, time.Time, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, time.Now().Add(f.lifetime), nil
}

func (f *fakeIssuer) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func TestCache_ReturnsCachedTokenWithinFreshnessWindow(t *testing.T) {
	issuer := &fakeIssuer{token: "tok-1", lifetime: time.Hour}
	cache := NewCache(issuer, 5*time.Minute)

	first, err := cache.Get(context.Background(), "tenant-a", "https://api.example.com")
	require.NoError(t, err)

	second, err := cache.Get(context.Background(), "tenant-a", "https://api.example.com")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, issuer.callCount(), "issuer should be invoked at most once for a fresh entry")
}

func TestCache_RefreshesTokenPastFreshnessBoundary(t *testing.T) {
	issuer := &fakeIssuer{token: "tok-1", lifetime: time.Hour}
	cache := NewCache(issuer, 5*time.Minute)

	_, err := cache.Get(context.Background(), "tenant-a", "resource")
	require.NoError(t, err)

	// Move the clock to 4 minutes before expiry, inside the margin.
	base := time.Now()
	cache.now = func() time.Time { return base.Add(56 * time.Minute) }

	issuer.mu.Lock()
	issuer.token = "tok-2"
	issuer.mu.Unlock()

	token, err := cache.Get(context.Background(), "tenant-a", "resource")
	require.NoError(t, err)

	assert.Equal(t, "tok-2", token)
	assert.Equal(t, 2, issuer.callCount())
}

func TestCache_SeparateTenantsGetSeparateEntries(t *testing.T) {
	issuer := &fakeIssuer{token: "tok", lifetime: time.Hour}
	cache := NewCache(issuer, 5*time.Minute)

	_, err := cache.Get(context.Background(), "tenant-a", "resource")
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), "tenant-b", "resource")
	require.NoError(t, err)

	assert.Equal(t, 2, issuer.callCount(), "each tenant needs its own token")
}

func TestCache_ConcurrentCallersSingleAcquisition(t *testing.T) {
	issuer := &fakeIssuer{token: "tok", lifetime: time.Hour}
	cache := NewCache(issuer, 5*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := cache.Get(context.Background(), "tenant-a", "resource")
			assert.NoError(t, err)
			assert.Equal(t, "tok", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, issuer.callCount(), "refresh must be serialized per key")
}

func TestCache_IssuerErrorPropagates(t *testing.T) {
	issuer := &fakeIssuer{err: errors.New("idp unavailable")}
	cache := NewCache(issuer, 5*time.Minute)

	_, err := cache.Get(context.Background(), "tenant-a", "resource")
	require.Error(t, err)
	assert.ErrorContains(t, err, "idp unavailable")
}

func TestCache_InvalidateForcesReacquisition(t *testing.T) {
	issuer := &fakeIssuer{token: "tok", lifetime: time.Hour}
	cache := NewCache(issuer, 5*time.Minute)

	_, err := cache.Get(context.Background(), "tenant-a", "resource")
	require.NoError(t, err)

	cache.Invalidate("tenant-a", "resource")

	_, err = cache.Get(context.Background(), "tenant-a", "resource")
	require.NoError(t, err)
	assert.Equal(t, 2, issuer.callCount())
}
