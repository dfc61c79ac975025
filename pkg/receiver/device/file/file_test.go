package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norasector/samedec/pkg/receiver/device"
	"github.com/norasector/samedec/pkg/same"
)

func collect(t *testing.T, d *FileDevice) []*device.Segment {
	t.Helper()
	segments := make(chan *device.Segment, 16)
	require.NoError(t, d.Start(context.Background(), segments))
	close(segments)

	var out []*device.Segment
	for seg := range segments {
		out = append(out, seg)
	}
	return out
}

func TestReplay(t *testing.T) {
	start := time.Date(2021, 10, 5, 4, 15, 0, 0, time.UTC)
	d := NewReaderDevice(io.NopCloser(strings.NewReader("ZCZC-WXR-RWT-")), 5, false)
	d.now = func() time.Time { return start }

	segs := collect(t, d)
	require.Len(t, segs, 4)

	assert.Equal(t, []byte("ZCZC-"), segs[0].Data)
	assert.True(t, segs[0].Carrier)
	assert.Equal(t, start, segs[0].Time)

	assert.Equal(t, []byte("WXR-R"), segs[1].Data)
	assert.Equal(t, start.Add(5*same.BytePeriod), segs[1].Time)

	assert.Equal(t, []byte("WT-"), segs[2].Data)

	assert.False(t, segs[3].Carrier)
	assert.Empty(t, segs[3].Data)
	assert.Equal(t, start.Add(13*same.BytePeriod), segs[3].Time)
}

func TestEmptyInput(t *testing.T) {
	d := NewReaderDevice(io.NopCloser(strings.NewReader("")), 0, false)
	segs := collect(t, d)
	require.Len(t, segs, 1)
	assert.False(t, segs[0].Carrier)
}

func TestCanceled(t *testing.T) {
	d := NewReaderDevice(io.NopCloser(strings.NewReader("ZCZC")), 4, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Start(ctx, make(chan *device.Segment))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFileDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burst.bin")
	require.NoError(t, os.WriteFile(path, []byte("NNNN"), 0o644))

	d, err := NewFileDevice(path, 16, false)
	require.NoError(t, err)
	segs := collect(t, d)
	require.Len(t, segs, 2)
	assert.Equal(t, []byte("NNNN"), segs[0].Data)
	assert.NoError(t, d.Stop())

	_, err = NewFileDevice(filepath.Join(t.TempDir(), "missing.bin"), 16, false)
	assert.Error(t, err)
}
