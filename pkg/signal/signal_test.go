package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWaitForShutdownOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := WaitForShutdown(ctx, zap.NewNop(), time.Second, func(context.Context) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestShutdownReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := Shutdown(zap.NewNop(), time.Second, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	err := Shutdown(zap.NewNop(), 20*time.Millisecond, func(context.Context) error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, ErrShutdownTimeout)
}
