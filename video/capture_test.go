package video

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyxchat/voicecore/config"
)

type scriptedSource struct {
	mu      sync.Mutex
	results []error
	closed  int
}

func (s *scriptedSource) Capture() (Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return Surface{Width: 1, Height: 1}, nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	return Surface{Width: 1, Height: 1}, err
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func newEncoderAdapter(t *testing.T) *EncoderAdapter {
	t.Helper()
	codec := &fakeH264Encoder{output: []byte{0, 0, 0, 1, 0x65}}
	cfg := config.DefaultVideoConfig()
	enc, err := NewEncoderAdapter(codec, cfg)
	require.NoError(t, err)
	return enc
}

func TestCapturePipelineEmitsMonotonicTimestamps(t *testing.T) {
	source := &scriptedSource{}
	pipeline := NewCapturePipeline(func() (VideoCaptureSource, error) { return source, nil }, newEncoderAdapter(t), 50)

	var mu sync.Mutex
	var timestamps []uint32
	pipeline.OnAccessUnit = func(annexB []byte, ts uint32) {
		mu.Lock()
		timestamps = append(timestamps, ts)
		mu.Unlock()
	}

	require.NoError(t, pipeline.Start())
	time.Sleep(250 * time.Millisecond)
	require.NoError(t, pipeline.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(timestamps), 2)
	for i := 1; i < len(timestamps); i++ {
		assert.GreaterOrEqual(t, timestamps[i], timestamps[i-1])
	}
}

func TestCapturePipelineRecreatesSourceOnAccessLost(t *testing.T) {
	first := &scriptedSource{results: []error{ErrAccessLost}}
	var createCount int
	var mu sync.Mutex
	pipeline := NewCapturePipeline(func() (VideoCaptureSource, error) {
		mu.Lock()
		defer mu.Unlock()
		createCount++
		if createCount == 1 {
			return first, nil
		}
		return &scriptedSource{}, nil
	}, newEncoderAdapter(t), 50)

	require.NoError(t, pipeline.Start())
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, pipeline.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, createCount, 2)
}

func TestCapturePipelineEndsSessionOnWindowDestroyed(t *testing.T) {
	source := &scriptedSource{results: []error{ErrWindowDestroyed}}
	pipeline := NewCapturePipeline(func() (VideoCaptureSource, error) { return source, nil }, newEncoderAdapter(t), 50)

	ended := make(chan struct{})
	pipeline.OnSessionEnd = func() { close(ended) }

	require.NoError(t, pipeline.Start())
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session end signal")
	}
	require.NoError(t, pipeline.Stop())
}
