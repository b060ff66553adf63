package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Client side of a session: dial, verify the host key,
 *		offer this terminal's capabilities, then paint frames.
 *
 * Description:	The client is mostly a display.  It probes its own
 *		terminal, offers what it found, and from then on writes
 *		each received frame straight to stdout (the frames
 *		arrive pre-rendered for exactly this terminal).  The mic
 *		runs the other way.  The received key goes through the
 *		known-hosts gate before a single media packet moves.
 *
 *		Keys while running:  '?' dumps the lock registry,
 *		'q' hangs up.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

type ClientOptions struct {
	Connect    string
	ConfigPath string
	Forget     string /* "host:port" to remove from known_hosts and exit */
	NoAudio    bool
}

func split_host_port(addr string) (string, int, error) {
	var host, port_str, err = net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("address %q: %w", addr, ErrInvalidParam)
	}
	var port, conv_err = strconv.Atoi(port_str)
	if conv_err != nil {
		return "", 0, fmt.Errorf("port %q: %w", port_str, ErrInvalidParam)
	}
	return host, port, nil
}

func ClientMain(opts ClientOptions) error {
	var cfg, err = config_load(opts.ConfigPath)
	if err != nil {
		return err
	}
	LogSetLevel(cfg.LogLevel)

	if opts.Forget != "" {
		var host, port, split_err = split_host_port(opts.Forget)
		if split_err != nil {
			return split_err
		}
		if err := remove_known_host(host, port); err != nil {
			return err
		}
		fmt.Printf("forgot %s\n", opts.Forget)
		return nil
	}

	var addr = opts.Connect
	if addr == "" {
		addr = cfg.Connect
	}
	if addr == "" {
		return fmt.Errorf("no peer address given: %w", ErrInvalidParam)
	}
	var host, port, split_err = split_host_port(addr)
	if split_err != nil {
		return split_err
	}

	lock_debug_init()
	defer lock_debug_shutdown()
	data_buffer_pool_init_global()
	defer data_buffer_pool_destroy_global()

	var conn, dial_err = net.Dial("tcp", addr)
	if dial_err != nil {
		return fmt.Errorf("dialing %s: %w", addr, dial_err)
	}
	defer conn.Close()

	return client_session(conn, &cfg, host, port, opts.NoAudio)
}

func client_session(conn net.Conn, cfg *config_t, host string, port int, no_audio bool) error {
	// The server leads with its key; pin or verify before anything else.
	var ptype, server_key_bytes, err = packet_read(conn)
	if err != nil {
		return err
	}
	if ptype != PACKET_TYPE_KEY_EXCHANGE || len(server_key_bytes) != SESSION_KEY_LEN {
		return fmt.Errorf("expected key exchange, got %d: %w", ptype, ErrCorrupt)
	}
	var server_key [SESSION_KEY_LEN]byte
	copy(server_key[:], server_key_bytes)
	if err := verify_peer_key(host, port, server_key); err != nil {
		return err
	}

	var our_key, key_err = session_key_generate()
	if key_err != nil {
		return key_err
	}
	if err := packet_write(conn, PACKET_TYPE_KEY_EXCHANGE, our_key[:], false); err != nil {
		return err
	}

	// Offer what this terminal can actually show.
	var info = terminal_probe()
	var caps = terminal_capabilities(info, cfg.renderer(), cfg.compression())
	var offer, offer_err = sdp_generate_offer(caps, nil, nil)
	if offer_err != nil {
		return offer_err
	}
	if err := packet_write(conn, PACKET_TYPE_SDP_OFFER, []byte(offer.text), false); err != nil {
		return err
	}

	var answer_type, answer_text, answer_err = packet_read(conn)
	if answer_err != nil {
		return answer_err
	}
	if answer_type != PACKET_TYPE_SDP_ANSWER {
		return fmt.Errorf("expected sdp answer, got %d: %w", answer_type, ErrCorrupt)
	}
	var answer, parse_err = sdp_parse(string(answer_text))
	if parse_err != nil {
		return parse_err
	}
	var codec, format, sel_err = sdp_get_selected_video_codec(answer)
	if sel_err != nil {
		return sel_err
	}
	logger.Info("session negotiated", "codec", codec,
		"size", fmt.Sprintf("%dx%d", format.width, format.height))

	var audio_state *audio_state_t
	if cfg.audio_enabled() && !no_audio {
		var audio_err error
		if audio_state, audio_err = audio_init(); audio_err != nil {
			logger.Warn("audio unavailable, continuing without", "err", audio_err)
		}
	}
	defer audio_term(audio_state)

	// Everything after the handshake may be written from more than one
	// goroutine; serialize the socket writes.
	var write_mu tracked_mutex
	var send = func(ptype packet_type_t, payload []byte) error {
		write_mu.Lock()
		defer write_mu.Unlock()
		return packet_write(conn, ptype, payload, false)
	}

	// Keyboard: '?' dumps held locks, 'q' hangs up.
	var quit = make(chan struct{})
	go func() {
		var one [1]byte
		for {
			var n, read_err = os.Stdin.Read(one[:])
			if read_err != nil {
				return
			}
			if n == 0 {
				continue
			}
			switch one[0] {
			case '?':
				lock_debug_request_dump()
			case 'q':
				send(PACKET_TYPE_BYE, nil)
				close(quit)
				return
			}
		}
	}()

	// Mic upstream.
	if audio_state != nil {
		go func() {
			for {
				select {
				case <-quit:
					return
				default:
				}
				var frame = audio_state.capture_frame()
				if frame == nil {
					SLEEP_MS(5)
					continue
				}
				if err := send(PACKET_TYPE_AUDIO_BATCH, audio_frame_to_bytes(frame)); err != nil {
					return
				}
			}
		}()
	}

	// Clear once, then let the frames own the screen.
	fmt.Print("\x1b[2J\x1b[H")

	for {
		select {
		case <-quit:
			return nil
		default:
		}

		var ptype, payload, read_err = packet_read(conn)
		if read_err != nil {
			if strings.Contains(read_err.Error(), "closed") {
				return nil
			}
			return read_err
		}

		switch ptype {
		case PACKET_TYPE_VIDEO_FRAME:
			// Pre-rendered for this terminal; home the cursor and paint.
			os.Stdout.WriteString("\x1b[H")
			os.Stdout.Write(payload)
		case PACKET_TYPE_AUDIO_BATCH:
			if audio_state != nil {
				audio_state.play_frame(audio_frame_from_bytes(payload))
			}
		case PACKET_TYPE_BYE:
			logger.Info("peer hung up")
			return nil
		}
	}
}
