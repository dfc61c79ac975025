package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norasector/samedec/pkg/same"
	"github.com/norasector/samedec/pkg/same/message"
)

const testBody = "-WXR-RWT-012057-012081-012101-012103-012115+0030-2780415-WTSP/TV-"

var epoch = time.Date(2021, time.October, 5, 4, 15, 0, 0, time.UTC)

func header(body string) Burst {
	return Burst{Marker: same.MarkerHeader, Data: []byte(body)}
}

func newTestAssembler(opts ...Option) *Assembler {
	return NewAssembler(append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

func TestSingleBurst(t *testing.T) {
	a := newTestAssembler()
	assert.Equal(t, Idle, a.State())

	st := a.AcceptBurst(header(testBody), epoch)
	assert.Equal(t, Assembling, st.State)
	assert.Nil(t, st.Result)

	deadline, ok := a.Deadline()
	require.True(t, ok)
	assert.Equal(t, epoch.Add(DefaultHoldOff), deadline)

	st = a.Tick(epoch.Add(DefaultHoldOff - time.Millisecond))
	assert.Equal(t, Assembling, st.State)
	assert.Nil(t, st.Result)

	// Reaching the deadline is not enough; it must have passed.
	st = a.Tick(epoch.Add(DefaultHoldOff))
	assert.Equal(t, Assembling, st.State)
	assert.Nil(t, st.Result)

	st = a.Tick(epoch.Add(DefaultHoldOff + time.Nanosecond))
	require.Equal(t, Message, st.State)
	require.NotNil(t, st.Result)
	require.True(t, st.Result.Ok())
	assert.Equal(t, "ZCZC"+testBody, st.Result.Message.String())

	assert.Equal(t, Idle, a.State())
	assert.Equal(t, Status{State: Idle}, a.Tick(epoch.Add(time.Hour)))
}

func TestTickIdleIsNoop(t *testing.T) {
	a := newTestAssembler()
	for i := 0; i < 3; i++ {
		assert.Equal(t, Status{State: Idle}, a.Tick(epoch.Add(time.Duration(i)*time.Hour)))
	}
	_, ok := a.Deadline()
	assert.False(t, ok)
}

func TestDeadlineFollowsLatestBurst(t *testing.T) {
	a := newTestAssembler(WithHoldOff(time.Second))

	a.AcceptBurst(header(testBody), epoch)
	a.AcceptBurst(header(testBody), epoch.Add(900*time.Millisecond))

	assert.Equal(t, Assembling, a.Tick(epoch.Add(1500*time.Millisecond)).State)
	assert.Equal(t, Assembling, a.Tick(epoch.Add(1900*time.Millisecond)).State)
	st := a.Tick(epoch.Add(1901 * time.Millisecond))
	require.Equal(t, Message, st.State)
	assert.True(t, st.Result.Ok())
}

func TestThreeBurstVote(t *testing.T) {
	a := newTestAssembler()

	corrupt := []byte(testBody)
	corrupt[2] ^= 0x04 // WXR -> W\R
	a.AcceptBurst(header(string(corrupt)), epoch)
	a.AcceptBurst(header(testBody), epoch.Add(5*time.Second))
	a.AcceptBurst(header(testBody), epoch.Add(10*time.Second))
	assert.Equal(t, 3, a.Bursts())

	st := a.Tick(epoch.Add(time.Minute))
	require.Equal(t, Message, st.State)
	require.True(t, st.Result.Ok(), "%v", st.Result)
	assert.Equal(t, "WXR", st.Result.Message.Originator)
}

func TestDecodeFailureIsReportedOnce(t *testing.T) {
	a := newTestAssembler()
	a.AcceptBurst(header("-WXR-garbage"), epoch)

	st := a.Tick(epoch.Add(time.Minute))
	require.Equal(t, Message, st.State)
	assert.False(t, st.Result.Ok())
	assert.ErrorIs(t, st.Result.Err, message.ErrMalformed)

	assert.Equal(t, Status{State: Idle}, a.Tick(epoch.Add(2*time.Minute)))
}

func TestExtraBurstsIgnored(t *testing.T) {
	var seen [][]byte
	decoder := message.DecoderFunc(func(raw []byte) (message.Message, error) {
		seen = append(seen, raw)
		return message.Message{}, errors.New("unused")
	})
	a := newTestAssembler(WithMaxBursts(2), WithDecoder(decoder))

	a.AcceptBurst(header("A"), epoch)
	a.AcceptBurst(header("A"), epoch.Add(time.Second))
	st := a.AcceptBurst(header("B"), epoch.Add(2*time.Second))
	assert.Equal(t, Assembling, st.State)
	assert.Equal(t, 2, a.Bursts())

	// The ignored burst does not move the deadline.
	st = a.Tick(epoch.Add(time.Second + DefaultHoldOff + time.Nanosecond))
	require.Equal(t, Message, st.State)
	require.Len(t, seen, 1)
	assert.Equal(t, []byte("ZCZCA"), seen[0])
}

func TestNewMarkerConcludesCycle(t *testing.T) {
	a := newTestAssembler()
	a.AcceptBurst(header(testBody), epoch)

	st := a.AcceptBurst(Burst{Marker: same.MarkerEndOfMessage}, epoch.Add(time.Second))
	require.Equal(t, Message, st.State)
	require.True(t, st.Result.Ok())
	assert.Equal(t, message.Header, st.Result.Message.Kind)

	assert.Equal(t, Assembling, a.State())
	st = a.Tick(epoch.Add(time.Minute))
	require.Equal(t, Message, st.State)
	assert.Equal(t, message.EndOfMessage, st.Result.Message.Kind)
}

func TestExpire(t *testing.T) {
	a := newTestAssembler(WithHoldOff(time.Hour))
	a.AcceptBurst(header(testBody), epoch)
	a.Expire()

	st := a.Tick(epoch)
	require.Equal(t, Message, st.State)
	assert.True(t, st.Result.Ok())
}

func TestReset(t *testing.T) {
	a := newTestAssembler()
	a.AcceptBurst(header(testBody), epoch)
	a.Reset()

	assert.Equal(t, Idle, a.State())
	assert.Equal(t, Status{State: Idle}, a.Tick(epoch.Add(time.Hour)))
}

func TestArrivalMustNotGoBackwards(t *testing.T) {
	a := newTestAssembler()
	a.AcceptBurst(header(testBody), epoch)

	assert.Panics(t, func() {
		a.AcceptBurst(header(testBody), epoch.Add(-time.Second))
	})
	assert.Panics(t, func() {
		a.AcceptBurst(header(testBody), time.Time{})
	})
}

func TestInvalidConfiguration(t *testing.T) {
	assert.Panics(t, func() { NewAssembler(WithHoldOff(0)) })
	assert.Panics(t, func() { NewAssembler(WithMaxBursts(0)) })
}
