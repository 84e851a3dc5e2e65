package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/decision-core/internal/breaker"
	"github.com/tradecore/decision-core/internal/domain"
)

type fakeAdapter struct {
	name        string
	fractional  bool
	submitErr   error
	result      domain.OrderResult
	submitted   []domain.PositionRequest
	healthErr   error
}

func (f *fakeAdapter) Name() string              { return f.name }
func (f *fakeAdapter) SupportsFractional() bool   { return f.fractional }
func (f *fakeAdapter) GetAccount(ctx context.Context) (Account, error) { return Account{}, nil }
func (f *fakeAdapter) ListPositions(ctx context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeAdapter) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (f *fakeAdapter) HealthCheck(ctx context.Context) error { return f.healthErr }

func (f *fakeAdapter) SubmitOrder(ctx context.Context, req domain.PositionRequest) (domain.OrderResult, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return domain.OrderResult{}, f.submitErr
	}
	return f.result, nil
}

func TestSubmitOrder_PrimarySucceeds(t *testing.T) {
	primary := &fakeAdapter{name: "primary", fractional: true, result: domain.OrderResult{Status: domain.OrderFilled, FilledQty: 5}}
	secondary := &fakeAdapter{name: "secondary", fractional: true, result: domain.OrderResult{Status: domain.OrderFilled}}

	exec := NewExecutor([]Adapter{primary, secondary}, testBreakerConfig(), nil, zerolog.Nop())
	result, attempts, err := exec.SubmitOrder(context.Background(), domain.PositionRequest{Symbol: "SPY", Side: domain.SideBuy, Qty: domain.NewQty(5)})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, result.Status)
	assert.Len(t, attempts, 1)
	assert.Empty(t, secondary.submitted)
}

func TestSubmitOrder_FallsOverToSecondaryOnFailure(t *testing.T) {
	primary := &fakeAdapter{name: "primary", fractional: true, submitErr: errors.New("rejected")}
	secondary := &fakeAdapter{name: "secondary", fractional: true, result: domain.OrderResult{Status: domain.OrderFilled}}

	exec := NewExecutor([]Adapter{primary, secondary}, testBreakerConfig(), nil, zerolog.Nop())
	result, attempts, err := exec.SubmitOrder(context.Background(), domain.PositionRequest{Symbol: "SPY", Side: domain.SideBuy, Qty: domain.NewQty(5)})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, result.Status)
	assert.Len(t, attempts, 2)
}

func TestSubmitOrder_AllFailReturnsExecutionFailed(t *testing.T) {
	primary := &fakeAdapter{name: "primary", fractional: true, submitErr: errors.New("down")}
	exec := NewExecutor([]Adapter{primary}, testBreakerConfig(), nil, zerolog.Nop())

	_, _, err := exec.SubmitOrder(context.Background(), domain.PositionRequest{Symbol: "SPY", Side: domain.SideBuy, Qty: domain.NewQty(5)})
	require.Error(t, err)
	var execErr domain.ExecutionFailedError
	assert.ErrorAs(t, err, &execErr)
}

func TestSubmitOrder_RoundsToWholeSharesForNonFractionalAdapter(t *testing.T) {
	primary := &fakeAdapter{name: "primary", fractional: false, result: domain.OrderResult{Status: domain.OrderFilled}}
	exec := NewExecutor([]Adapter{primary}, testBreakerConfig(), nil, zerolog.Nop())

	_, _, err := exec.SubmitOrder(context.Background(), domain.PositionRequest{Symbol: "SPY", Side: domain.SideBuy, Qty: domain.NewQty(5.7)})
	require.NoError(t, err)
	require.Len(t, primary.submitted, 1)
	assert.Equal(t, 5.0, *primary.submitted[0].Qty)
}

func TestSubmitOrder_SkipsBrokerAfterBreakerTrips(t *testing.T) {
	primary := &fakeAdapter{name: "primary", fractional: true, submitErr: errors.New("down")}
	secondary := &fakeAdapter{name: "secondary", fractional: true, result: domain.OrderResult{Status: domain.OrderFilled}}

	exec := NewExecutor([]Adapter{primary, secondary}, breaker.Config{FailThreshold: 1, CooldownSeconds: 3600}, nil, zerolog.Nop())

	_, _, _ = exec.SubmitOrder(context.Background(), domain.PositionRequest{Symbol: "SPY", Qty: domain.NewQty(1)})
	_, attempts, err := exec.SubmitOrder(context.Background(), domain.PositionRequest{Symbol: "SPY", Qty: domain.NewQty(1)})

	require.NoError(t, err)
	for _, a := range attempts {
		assert.NotEqual(t, "primary", a.Broker)
	}
}

func testBreakerConfig() breaker.Config {
	return breaker.Config{FailThreshold: 3, CooldownSeconds: 60}
}
