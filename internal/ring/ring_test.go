package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tick2trade/internal/model"
	"github.com/rickgao/tick2trade/internal/telemetry"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	var c telemetry.Counters
	for _, n := range []int{0, -4, 3, 100} {
		_, err := New(n, &c)
		assert.Error(t, err, "capacity %d", n)
	}
	r, err := New(8, &c)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Len())
}

func TestPublishConsumeFIFO(t *testing.T) {
	var c telemetry.Counters
	r, err := New(8, &c)
	require.NoError(t, err)

	for i := uint32(1); i <= 5; i++ {
		ok := r.Publish(&model.DecisionRecord{Seq: i, Price: model.Price(i * 100)})
		require.True(t, ok)
	}
	assert.Equal(t, uint32(5), r.Depth())
	assert.Equal(t, uint64(5), c.Published.Load())

	for i := uint32(1); i <= 5; i++ {
		rec, ok := r.Consume(true)
		require.True(t, ok)
		assert.Equal(t, i, rec.Seq)
		assert.Equal(t, model.Price(i*100), rec.Price)
	}
	_, ok := r.Consume(true)
	assert.False(t, ok, "ring should be empty")
}

func TestFullRingDropsNewest(t *testing.T) {
	var c telemetry.Counters
	r, err := New(4, &c)
	require.NoError(t, err)

	for i := uint32(0); i < 4; i++ {
		require.True(t, r.Publish(&model.DecisionRecord{Seq: i}))
	}
	assert.False(t, r.Publish(&model.DecisionRecord{Seq: 99}))
	assert.Equal(t, uint64(1), c.RingDrops.Load())

	// The queued records are untouched.
	rec, ok := r.Consume(true)
	require.True(t, ok)
	assert.Equal(t, uint32(0), rec.Seq)

	// Space opened up again.
	assert.True(t, r.Publish(&model.DecisionRecord{Seq: 100}))
}

func TestConsumeVerifiesCRC(t *testing.T) {
	var c telemetry.Counters
	r, err := New(4, &c)
	require.NoError(t, err)

	require.True(t, r.Publish(&model.DecisionRecord{Seq: 1}))
	require.True(t, r.Publish(&model.DecisionRecord{Seq: 2}))

	// Corrupt the first queued slot in place.
	r.slots[0][30] ^= 0xFF

	_, ok := r.Consume(true)
	assert.False(t, ok, "corrupt slot must fail verification")

	// The corrupt slot is retired, not redelivered.
	rec, ok := r.Consume(true)
	require.True(t, ok)
	assert.Equal(t, uint32(2), rec.Seq)
}

func TestAlmostFullWatermark(t *testing.T) {
	var c telemetry.Counters
	r, err := New(8, &c) // margin clamps to capacity/2, watermark at 4
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		r.Publish(&model.DecisionRecord{})
	}
	assert.False(t, r.AlmostFull())
	r.Publish(&model.DecisionRecord{})
	assert.True(t, r.AlmostFull())
}

func TestIndexWraparound(t *testing.T) {
	var c telemetry.Counters
	r, err := New(4, &c)
	require.NoError(t, err)

	// Force the 32-bit counters near wrap.
	r.producer.Store(^uint32(0) - 1)
	r.consumer.Store(^uint32(0) - 1)

	for i := uint32(0); i < 4; i++ {
		require.True(t, r.Publish(&model.DecisionRecord{Seq: i}))
	}
	assert.False(t, r.Publish(&model.DecisionRecord{Seq: 9}), "ring full across the wrap")

	for i := uint32(0); i < 4; i++ {
		rec, ok := r.Consume(true)
		require.True(t, ok)
		assert.Equal(t, i, rec.Seq)
	}
}

func TestSPSCConcurrent(t *testing.T) {
	var c telemetry.Counters
	r, err := New(1024, &c)
	require.NoError(t, err)

	const total = 100000
	done := make(chan []uint32)

	go func() {
		var got []uint32
		for len(got) < total {
			rec, ok := r.Consume(true)
			if !ok {
				continue
			}
			got = append(got, rec.Seq)
		}
		done <- got
	}()

	sent := 0
	for seq := uint32(0); sent < total; seq++ {
		rec := model.DecisionRecord{Seq: seq, TsIngress: uint64(seq), Flags: model.FlagAccept}
		for !r.Publish(&rec) {
			// Full ring: the consumer test side never stops, retry.
		}
		sent++
	}

	got := <-done
	require.Len(t, got, total)
	for i := 1; i < len(got); i++ {
		require.Equal(t, got[i-1]+1, got[i], "records out of order at %d", i)
	}
}
