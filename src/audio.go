package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Microphone capture and speaker playback.
 *
 * Description:	The sound card side of the pipeline.  Two PortAudio
 *		streams (capture and playback) shovel float32 samples
 *		through a pair of ring buffers; the session pulls fixed
 *		10 ms frames out of the capture ring to ship, and pushes
 *		received frames into the playback ring.  An empty
 *		playback ring plays silence, a full capture ring drops
 *		the oldest samples; both are counted, never fatal.
 *
 *		The Opus encode/decode happens elsewhere; this is the
 *		raw PCM edge the core talks to.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const AUDIO_SAMPLE_RATE = 48000
const AUDIO_CHANNELS = 1
const AUDIO_FRAME_SAMPLES = 480 /* 10 ms at 48 kHz */
const AUDIO_RING_FRAMES = 32    /* ~320 ms of slack each way */

/*
 * Fixed-size ring of float32 samples.  Writers overwrite the oldest
 * data when full; readers get silence when empty.  One tracked mutex,
 * no condvar: audio timing comes from the device callbacks.
 */

type audio_ring_t struct {
	mu   tracked_mutex
	buf  []float32
	head int /* read position */
	size int /* samples available */

	overruns  uint64
	underruns uint64
}

func audio_ring_create(capacity int) *audio_ring_t {
	return &audio_ring_t{buf: make([]float32, capacity)}
}

func (r *audio_ring_t) write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		if r.size == len(r.buf) {
			// Overwrite the oldest sample.
			r.head = (r.head + 1) % len(r.buf)
			r.size--
			r.overruns++
		}
		r.buf[(r.head+r.size)%len(r.buf)] = s
		r.size++
	}
}

/* Fill dst completely, padding with silence when the ring runs dry. */

func (r *audio_ring_t) read(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n = 0
	for ; n < len(dst) && r.size > 0; n++ {
		dst[n] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
		r.size--
	}
	if n < len(dst) {
		r.underruns++
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
	}
	return n
}

func (r *audio_ring_t) available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

type audio_state_t struct {
	capture_stream  *portaudio.Stream
	playback_stream *portaudio.Stream

	capture_ring  *audio_ring_t
	playback_ring *audio_ring_t

	capture_buf  []float32
	playback_buf []float32

	quit chan struct{}
}

/*-------------------------------------------------------------------
 *
 * Name:        audio_init
 *
 * Purpose:     Open the default capture and playback devices and start
 *		the shovel goroutines.
 *
 *--------------------------------------------------------------------*/

func audio_init() (*audio_state_t, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	var st = &audio_state_t{
		capture_ring:  audio_ring_create(AUDIO_FRAME_SAMPLES * AUDIO_RING_FRAMES),
		playback_ring: audio_ring_create(AUDIO_FRAME_SAMPLES * AUDIO_RING_FRAMES),
		capture_buf:   make([]float32, AUDIO_FRAME_SAMPLES),
		playback_buf:  make([]float32, AUDIO_FRAME_SAMPLES),
		quit:          make(chan struct{}),
	}

	var input_dev, err = portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("no input device: %w", err)
	}
	var output_dev, out_err = portaudio.DefaultOutputDevice()
	if out_err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("no output device: %w", out_err)
	}

	var capture_params = portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   input_dev,
			Channels: AUDIO_CHANNELS,
			Latency:  input_dev.DefaultLowInputLatency,
		},
		SampleRate:      AUDIO_SAMPLE_RATE,
		FramesPerBuffer: AUDIO_FRAME_SAMPLES,
	}
	st.capture_stream, err = portaudio.OpenStream(capture_params, st.capture_buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening capture stream: %w", err)
	}

	var playback_params = portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   output_dev,
			Channels: AUDIO_CHANNELS,
			Latency:  output_dev.DefaultLowOutputLatency,
		},
		SampleRate:      AUDIO_SAMPLE_RATE,
		FramesPerBuffer: AUDIO_FRAME_SAMPLES,
	}
	st.playback_stream, err = portaudio.OpenStream(playback_params, st.playback_buf)
	if err != nil {
		st.capture_stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("opening playback stream: %w", err)
	}

	if err := st.capture_stream.Start(); err != nil {
		st.teardown()
		return nil, fmt.Errorf("starting capture: %w", err)
	}
	if err := st.playback_stream.Start(); err != nil {
		st.teardown()
		return nil, fmt.Errorf("starting playback: %w", err)
	}

	go st.capture_loop()
	go st.playback_loop()

	logger.Info("audio running",
		"capture", input_dev.Name, "playback", output_dev.Name,
		"rate", AUDIO_SAMPLE_RATE, "frame_ms", 10)
	return st, nil
}

func (st *audio_state_t) capture_loop() {
	for {
		select {
		case <-st.quit:
			return
		default:
		}
		if err := st.capture_stream.Read(); err != nil {
			logger.Debug("capture read", "err", err)
			continue
		}
		st.capture_ring.write(st.capture_buf)
	}
}

func (st *audio_state_t) playback_loop() {
	for {
		select {
		case <-st.quit:
			return
		default:
		}
		st.playback_ring.read(st.playback_buf)
		if err := st.playback_stream.Write(); err != nil {
			logger.Debug("playback write", "err", err)
		}
	}
}

/* One 10 ms frame off the mic, or nil when not enough has accumulated. */

func (st *audio_state_t) capture_frame() []float32 {
	if st.capture_ring.available() < AUDIO_FRAME_SAMPLES {
		return nil
	}
	var frame = make([]float32, AUDIO_FRAME_SAMPLES)
	st.capture_ring.read(frame)
	return frame
}

/* Queue a received frame for the speaker. */

func (st *audio_state_t) play_frame(samples []float32) {
	st.playback_ring.write(samples)
}

func (st *audio_state_t) teardown() {
	if st.capture_stream != nil {
		st.capture_stream.Stop()
		st.capture_stream.Close()
	}
	if st.playback_stream != nil {
		st.playback_stream.Stop()
		st.playback_stream.Close()
	}
	portaudio.Terminate()
}

func audio_term(st *audio_state_t) {
	if st == nil {
		return
	}
	close(st.quit)
	st.teardown()
	logger.Debug("audio stopped",
		"capture_overruns", st.capture_ring.overruns,
		"playback_underruns", st.playback_ring.underruns)
}
