package health

import (
	"context"
	"errors"
	"testing"

	"kabonia-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type okPinger struct{}

func (okPinger) Ping() error { return nil }

type badPinger struct{}

func (badPinger) Ping() error { return errors.New("down") }

func TestCollectHealth_AllConnected(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	mr.Set(middleware.KeyReqTotal, "10")
	mr.Set(middleware.KeyReqErrors, "2")
	mr.Set(middleware.KeyResTime, "500")
	mr.Set(middleware.KeyResCount, "10")

	result := CollectHealth(context.Background(), rdb, okPinger{}, Options{})

	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "connected", result.Dependencies["database"].Status)
	assert.Equal(t, "connected", result.Dependencies["redis"].Status)
	assert.Equal(t, 10, result.Traffic.TotalRequests)
	assert.Equal(t, 2, result.Traffic.FailedCount)
	assert.Equal(t, 8, result.Traffic.SuccessCount)
	assert.Equal(t, "80.0", result.Traffic.SuccessRate)
	assert.Equal(t, "50.00", result.Traffic.AvgResponseTime)
}

func TestCollectHealth_DatabaseDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	result := CollectHealth(context.Background(), rdb, badPinger{}, Options{})
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "error", result.Dependencies["database"].Status)
}

func TestCollectHealth_NilCollaborators(t *testing.T) {
	result := CollectHealth(context.Background(), nil, nil, Options{})
	assert.Equal(t, "issue", result.Status)
	assert.Equal(t, "disconnected", result.Dependencies["database"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["redis"].Status)
	// No external URLs configured, none reported
	_, ok := result.Dependencies["ledger_gateway"]
	assert.False(t, ok)
}
