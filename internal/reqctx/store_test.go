package reqctx

import (
	"context"
	"math/rand/v2"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rentora/rentora/internal/shared"
)

func TestGetOutsideScopeIsUnavailable(t *testing.T) {
	_, err := Get(context.Background())
	require.ErrorIs(t, err, shared.ErrContextUnavailable)

	_, err = Require(context.Background(), FieldTenant)
	require.ErrorIs(t, err, shared.ErrContextUnavailable)
}

func TestRunBindsPrincipalForCallChain(t *testing.T) {
	tenant := uuid.New()
	p := Principal{UserID: uuid.New(), TenantID: tenant, Roles: []string{"ADMIN"}}

	err := Run(context.Background(), p, func(ctx context.Context) error {
		got, err := Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, tenant, got.TenantID)

		done := make(chan uuid.UUID)
		go func() {
			inner, _ := Get(ctx)
			done <- inner.TenantID
		}()
		assert.Equal(t, tenant, <-done)
		return nil
	})
	require.NoError(t, err)
}

func TestNestedRunRestoresOuterPrincipal(t *testing.T) {
	outer := Principal{UserID: uuid.New(), TenantID: uuid.New()}
	inner := Principal{UserID: uuid.New(), TenantID: uuid.New()}

	err := Run(context.Background(), outer, func(ctx context.Context) error {
		err := Run(ctx, inner, func(ictx context.Context) error {
			got, err := Get(ictx)
			require.NoError(t, err)
			assert.Equal(t, inner.TenantID, got.TenantID)
			return nil
		})
		require.NoError(t, err)

		got, err := Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, outer.TenantID, got.TenantID)
		return nil
	})
	require.NoError(t, err)
}

func TestRequireReportsMissingField(t *testing.T) {
	ctx := With(context.Background(), Principal{UserID: uuid.New(), TenantID: uuid.New()})

	_, err := Require(ctx, FieldBusinessUnit)
	require.ErrorIs(t, err, shared.ErrContextFieldMissing)
	assert.Contains(t, err.Error(), "business_unit")

	id, err := Require(ctx, FieldTenant)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
}

func TestBoundPrincipalIsImmutable(t *testing.T) {
	roles := []string{"VIEWER"}
	ctx := With(context.Background(), Principal{UserID: uuid.New(), Roles: roles})
	roles[0] = "OWNER"

	got := MustGet(ctx)
	assert.Equal(t, []string{"VIEWER"}, got.Roles)

	got.Roles[0] = "OWNER"
	again := MustGet(ctx)
	assert.Equal(t, []string{"VIEWER"}, again.Roles)
}

func TestMustGetPanicsWithoutPrincipal(t *testing.T) {
	assert.Panics(t, func() { MustGet(context.Background()) })
}

// Interleaves many request chains for two tenants across goroutine hops and sleeps and
// checks that no chain ever observes the other tenant.
func TestConcurrentChainsAreIsolated(t *testing.T) {
	tenantA := uuid.New()
	tenantB := uuid.New()

	g, gctx := errgroup.WithContext(context.Background())
	for i := 0; i < 200; i++ {
		tenant := tenantA
		if i%2 == 1 {
			tenant = tenantB
		}
		p := Principal{UserID: uuid.New(), TenantID: tenant}
		g.Go(func() error {
			return Run(gctx, p, func(ctx context.Context) error {
				return simulatedRequest(ctx, t, tenant, 5)
			})
		})
	}
	require.NoError(t, g.Wait())
}

func simulatedRequest(ctx context.Context, t *testing.T, want uuid.UUID, depth int) error {
	t.Helper()
	if depth == 0 {
		return nil
	}
	time.Sleep(time.Duration(rand.IntN(200)) * time.Microsecond)
	runtime.Gosched()

	got, err := Require(ctx, FieldTenant)
	if err != nil {
		return err
	}
	if got != want {
		t.Errorf("chain for %s observed tenant %s", want, got)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- simulatedRequest(ctx, t, want, depth-1)
	}()
	return <-errCh
}
