package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appForeclosure "github.com/turtacn/ForeclosureWatch/internal/application/foreclosure"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

var sweepDay = time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)

func TestSweeper_RunOnce(t *testing.T) {
	svc := &mockService{}
	svc.On("Today").Return(sweepDay)
	svc.On("SweepStale", mock.Anything, sweepDay).
		Return(&appForeclosure.SweepResult{Today: sweepDay, Examined: 2, Closed: 2}, nil).Once()

	res := NewSweeper(svc, time.Minute, nil).RunOnce(context.Background())
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Closed)
	svc.AssertExpectations(t)
}

func TestSweeper_RunOnceReportsPartialResultOnError(t *testing.T) {
	svc := &mockService{}
	svc.On("Today").Return(sweepDay)
	svc.On("SweepStale", mock.Anything, sweepDay).
		Return(&appForeclosure.SweepResult{Examined: 1, Failed: 1}, errors.New(errors.ErrCodeDatabaseError, "db down"))

	res := NewSweeper(svc, time.Minute, nil).RunOnce(context.Background())
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Failed)
}

func TestSweeper_OverlappingTickIsSkipped(t *testing.T) {
	svc := &mockService{}
	s := NewSweeper(svc, time.Minute, nil)
	s.running.Store(true)

	assert.Nil(t, s.RunOnce(context.Background()))
	svc.AssertNotCalled(t, "SweepStale", mock.Anything, mock.Anything)
}

func TestSweeper_RunSweepsImmediatelyAndStops(t *testing.T) {
	svc := &mockService{}
	svc.On("Today").Return(sweepDay)
	swept := make(chan struct{}, 16)
	svc.On("SweepStale", mock.Anything, sweepDay).
		Run(func(mock.Arguments) { swept <- struct{}{} }).
		Return(&appForeclosure.SweepResult{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(svc, 10*time.Millisecond, nil).Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-swept:
		case <-time.After(2 * time.Second):
			t.Fatal("sweep did not run")
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	assert.Equal(t, defaultSweepInterval, NewSweeper(&mockService{}, 0, nil).interval)
}
