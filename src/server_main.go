package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Server side of a session: accept one peer, answer its
 *		offer, and stream rendered frames sized to its terminal.
 *
 * Description:	The server owns the camera.  Once the offer/answer
 *		exchange picks a codec and format, the video source is
 *		opened at the peer's geometry; each frame is rendered to glyphs
 *		and escapes, framed with a CRC, and queued.  The network
 *		writer drains the queue at its own pace; when it falls
 *		behind, the queue drops the stalest frame.
 *
 *		The transport here is plain TCP.  The DTLS/SRTP wrapping
 *		lives outside the core; the key exchanged below is the
 *		identity the client pins in its known_hosts.
 *
 *---------------------------------------------------------------*/

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type ServerOptions struct {
	Listen      string
	ConfigPath  string
	TestPattern bool
	Renderer    string
	Compression string
}

const VIDEO_QUEUE_DEPTH = 8
const AUDIO_QUEUE_DEPTH = 32

func session_key_generate() ([SESSION_KEY_LEN]byte, error) {
	var key [SESSION_KEY_LEN]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("generating session key: %w", err)
	}
	return key, nil
}

/* float32 PCM <-> wire bytes, little endian. */

func audio_frame_to_bytes(samples []float32) []byte {
	var out = make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(s))
	}
	return out
}

func audio_frame_from_bytes(data []byte) []float32 {
	var out = make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out
}

func ServerMain(opts ServerOptions) error {
	var cfg, err = config_load(opts.ConfigPath)
	if err != nil {
		return err
	}
	LogSetLevel(cfg.LogLevel)
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.Renderer != "" {
		cfg.Renderer = opts.Renderer
	}
	if opts.Compression != "" {
		cfg.Compression = opts.Compression
	}

	lock_debug_init()
	defer lock_debug_shutdown()
	data_buffer_pool_init_global()
	defer data_buffer_pool_destroy_global()

	var listener, listen_err = net.Listen("tcp", cfg.Listen)
	if listen_err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, listen_err)
	}
	defer listener.Close()
	logger.Info("listening", "addr", cfg.Listen)

	var quit = make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		listener.Close()
	}()

	var conn, accept_err = listener.Accept()
	if accept_err != nil {
		return fmt.Errorf("accepting peer: %w", accept_err)
	}
	defer conn.Close()
	logger.Info("peer connected", "remote", conn.RemoteAddr())

	return server_session(conn, &cfg, opts.TestPattern || cfg.TestPattern)
}

func server_session(conn net.Conn, cfg *config_t, test_pattern bool) error {
	// Identity first: our key out, the peer's key in.
	var key, key_err = session_key_generate()
	if key_err != nil {
		return key_err
	}
	if err := packet_write(conn, PACKET_TYPE_KEY_EXCHANGE, key[:], false); err != nil {
		return err
	}
	var ptype, _, read_err = packet_read(conn)
	if read_err != nil {
		return read_err
	}
	if ptype != PACKET_TYPE_KEY_EXCHANGE {
		return fmt.Errorf("expected key exchange, got %d: %w", ptype, ErrCorrupt)
	}

	// The client's offer.
	var offer_type, offer_text, offer_err = packet_read(conn)
	if offer_err != nil {
		return offer_err
	}
	if offer_type != PACKET_TYPE_SDP_OFFER {
		return fmt.Errorf("expected sdp offer, got %d: %w", offer_type, ErrCorrupt)
	}
	var offer, parse_err = sdp_parse(string(offer_text))
	if parse_err != nil {
		return parse_err
	}

	// Our preference ladder mirrors the probe's, best depth first.
	var server_caps = terminal_capabilities(terminal_info_t{
		rows: TERMINAL_DEFAULT_ROWS, cols: TERMINAL_DEFAULT_COLS,
		codec: TERM_CODEC_TRUECOLOR, utf8: true,
	}, cfg.renderer(), cfg.compression())

	// No format override: the peer's offered geometry rules.
	var answer, answer_err = sdp_generate_answer(offer, server_caps, nil, nil)
	if answer_err != nil {
		return answer_err
	}
	if err := packet_write(conn, PACKET_TYPE_SDP_ANSWER, []byte(answer.text), false); err != nil {
		return err
	}

	var codec, format, sel_err = sdp_get_selected_video_codec(answer)
	if sel_err != nil {
		return sel_err
	}
	logger.Info("session negotiated",
		"codec", codec, "size", fmt.Sprintf("%dx%d", format.width, format.height),
		"renderer", format.renderer, "compression", format.compression,
		"csi_rep", format.csi_rep)

	var source video_source_t
	var src_w, src_h = render_target_size(format)
	var source_err error
	if source, source_err = test_pattern_create(src_w, src_h); source_err != nil {
		return source_err
	}
	_ = test_pattern // a webcam backend would be selected here when present
	defer source.close()

	var audio_state *audio_state_t
	if cfg.audio_enabled() && offer.has_audio {
		var audio_err error
		if audio_state, audio_err = audio_init(); audio_err != nil {
			logger.Warn("audio unavailable, continuing without", "err", audio_err)
		}
	}
	defer audio_term(audio_state)

	// One writer owns the socket; video and audio both go through the
	// send queue so their packets never interleave mid-frame.
	var send_queue, _ = packet_queue_create(VIDEO_QUEUE_DEPTH + AUDIO_QUEUE_DEPTH)
	var send_done = make(chan error, 1)
	go func() {
		for {
			var pkt, err = send_queue.dequeue()
			if err != nil {
				send_done <- nil
				return
			}
			var _, write_err = conn.Write(pkt)
			send_queue.release(pkt)
			if write_err != nil {
				send_done <- write_err
				return
			}
		}
	}()

	// Drain the peer: audio frames for the speaker, BYE to end.
	var peer_done = make(chan struct{})
	go func() {
		defer close(peer_done)
		for {
			var ptype, payload, err = packet_read(conn)
			if err != nil {
				return
			}
			switch ptype {
			case PACKET_TYPE_AUDIO_BATCH:
				if audio_state != nil {
					audio_state.play_frame(audio_frame_from_bytes(payload))
				}
			case PACKET_TYPE_PING:
				if pong, pong_err := packet_serialize(PACKET_TYPE_PONG, nil, false); pong_err == nil {
					send_queue.enqueue(pong, false)
				}
			case PACKET_TYPE_BYE:
				return
			}
		}
	}()

	var ctx = render_context_create(codec, format, false)
	var out = outbuf_create(0)
	var compress = format.compression == COMPRESS_ZSTD
	var ticker = time.NewTicker(time.Second / time.Duration(cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-peer_done:
			logger.Info("peer left")
			send_queue.close()
			return nil
		case err := <-send_done:
			send_queue.close()
			return err
		case <-ticker.C:
		}

		var img, frame_err = source.read_frame()
		if frame_err != nil {
			send_queue.close()
			return frame_err
		}
		if err := render_frame(ctx, img, out); err != nil {
			send_queue.close()
			return err
		}

		var pkt, ser_err = packet_serialize(PACKET_TYPE_VIDEO_FRAME, out.bytes(), compress)
		if ser_err != nil {
			send_queue.close()
			return ser_err
		}
		if err := send_queue.enqueue(pkt, true); err != nil {
			send_queue.close()
			return err
		}

		if audio_state != nil {
			for {
				var frame = audio_state.capture_frame()
				if frame == nil {
					break
				}
				var audio_pkt, audio_ser_err = packet_serialize(PACKET_TYPE_AUDIO_BATCH, audio_frame_to_bytes(frame), false)
				if audio_ser_err == nil {
					send_queue.enqueue(audio_pkt, false)
				}
			}
		}
	}
}
