package asciichat

/*------------------------------------------------------------------
 *
 * Purpose:   	Capability negotiation: SDP offer/answer for terminal
 *		codecs.
 *
 * Description:	Before any frame moves, the peers agree on what the
 *		receiving terminal can display.  The exchange is plain
 *		SDP: the client offers its capability vector as custom
 *		video codecs in the "ACIP" namespace (ACIP-TC, ACIP-256,
 *		ACIP-16, ACIP-MONO) on payload types 96..99, one
 *		a=rtpmap/a=fmtp pair per capability, plus an Opus audio
 *		section on payload type 111.  The server answers with
 *		exactly one video codec at payload type 96.
 *
 *		Session marshalling and parsing ride on pion's SDP
 *		package; the codec selection and fmtp logic live here.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
)

const SDP_AUDIO_PAYLOAD_TYPE = 111
const SDP_VIDEO_PAYLOAD_BASE = 96

/* Payload types 96..99 are positional; a fifth codec would have no
 * defined payload type, so offers are clamped. */
const SDP_MAX_VIDEO_CODECS = 4

type audio_config_t struct {
	sample_rate       int
	channels          int
	bitrate           int
	use_fec           bool
	use_dtx           bool
	frame_duration_ms int
}

func default_audio_config() audio_config_t {
	return audio_config_t{
		sample_rate:       48000,
		channels:          2,
		bitrate:           32000,
		use_fec:           true,
		use_dtx:           true,
		frame_duration_ms: 10,
	}
}

type sdp_session_t struct {
	session_id      uint64
	session_version uint64

	has_audio bool
	audio     audio_config_t

	has_video    bool
	video_format terminal_format_t
	video_codecs []terminal_capability_t

	text string
}

func acip_codec_from_tag(tag string) (terminal_codec_t, bool) {
	switch tag {
	case "ACIP-TC":
		return TERM_CODEC_TRUECOLOR, true
	case "ACIP-256":
		return TERM_CODEC_256, true
	case "ACIP-16":
		return TERM_CODEC_16, true
	case "ACIP-MONO":
		return TERM_CODEC_MONO, true
	}
	return TERM_CODEC_MONO, false
}

func format_fmtp(pt int, f terminal_format_t) string {
	return fmt.Sprintf("%d width=%d;height=%d;renderer=%s;charset=%s;compression=%s;csi_rep=%d",
		pt, f.width, f.height, f.renderer, f.charset, f.compression,
		IfThenElse(f.csi_rep, 1, 0))
}

func session_skeleton(session_id uint64, session_version uint64) *sdp.SessionDescription {
	return &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      session_id,
			SessionVersion: session_version,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: "-",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}
}

func audio_media(audio audio_config_t) *sdp.MediaDescription {
	var pt = strconv.Itoa(SDP_AUDIO_PAYLOAD_TYPE)
	return &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: 9},
			Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
			Formats: []string{pt},
		},
		Attributes: []sdp.Attribute{
			{Key: "rtpmap", Value: fmt.Sprintf("%s opus/%d/%d", pt, audio.sample_rate, audio.channels)},
			{Key: "fmtp", Value: fmt.Sprintf("%s minptime=%d;useinbandfec=%d;usedtx=%d",
				pt, audio.frame_duration_ms,
				IfThenElse(audio.use_fec, 1, 0),
				IfThenElse(audio.use_dtx, 1, 0))},
		},
	}
}

func video_media(caps []terminal_capability_t, base_pt int) *sdp.MediaDescription {
	var md = &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  "video",
			Port:   sdp.RangedPort{Value: 9},
			Protos: []string{"UDP", "TLS", "RTP", "SAVPF"},
		},
	}
	for i, cap := range caps {
		var pt = base_pt + i
		md.MediaName.Formats = append(md.MediaName.Formats, strconv.Itoa(pt))
		md.Attributes = append(md.Attributes,
			sdp.Attribute{Key: "rtpmap", Value: fmt.Sprintf("%d %s/90000", pt, cap.codec.acip_tag())},
			sdp.Attribute{Key: "fmtp", Value: format_fmtp(pt, cap.format)})
	}
	return md
}

/*-------------------------------------------------------------------
 *
 * Name:        sdp_generate_offer
 *
 * Purpose:     Build the client's offer from its capability vector.
 *
 * Inputs:	caps	- Ordered best-first; clamped to 4 entries.
 *		audio	- Opus parameters; nil means defaults.
 *		format	- Hint applied as the session's video_format.
 *
 * Returns:	A session whose text field is the rendered SDP.
 *
 *--------------------------------------------------------------------*/

func sdp_generate_offer(caps []terminal_capability_t, audio *audio_config_t, format *terminal_format_t) (*sdp_session_t, error) {
	if len(caps) == 0 {
		return nil, fmt.Errorf("offer needs at least one capability: %w", ErrInvalidParam)
	}
	if len(caps) > SDP_MAX_VIDEO_CODECS {
		logger.Warn("offer capability vector clamped", "offered", len(caps), "max", SDP_MAX_VIDEO_CODECS)
		caps = caps[:SDP_MAX_VIDEO_CODECS]
	}

	var audio_cfg = default_audio_config()
	if audio != nil {
		audio_cfg = *audio
	}

	var session = &sdp_session_t{
		session_id:      uint64(time.Now().Unix()),
		session_version: 1,
		has_audio:       true,
		audio:           audio_cfg,
		has_video:       true,
		video_codecs:    append([]terminal_capability_t(nil), caps...),
	}
	if format != nil {
		session.video_format = *format
	} else {
		session.video_format = caps[0].format
	}

	var desc = session_skeleton(session.session_id, session.session_version)
	desc.MediaDescriptions = append(desc.MediaDescriptions,
		audio_media(audio_cfg),
		video_media(caps, SDP_VIDEO_PAYLOAD_BASE))

	var rendered, err = desc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshalling offer: %w", err)
	}
	session.text = string(rendered)
	return session, nil
}

/* Decide the answer's format: the matched offer capability's format,
 * with any non-default field the server supplied layered on top. */

func answer_format(offered terminal_format_t, server *terminal_format_t) terminal_format_t {
	var result = offered
	if server == nil {
		return result
	}
	if server.width > 0 {
		result.width = server.width
	}
	if server.height > 0 {
		result.height = server.height
	}
	if server.renderer != RENDERER_BLOCK {
		result.renderer = server.renderer
	}
	if server.charset != CHARSET_ASCII {
		result.charset = server.charset
	}
	if server.compression != COMPRESS_NONE {
		result.compression = server.compression
	}
	return result
}

/*-------------------------------------------------------------------
 *
 * Name:        sdp_generate_answer
 *
 * Purpose:     Answer an offer: pick one codec, render the SDP.
 *
 * Description:	Walk the server's preference order and take the first
 *		capability whose codec appears anywhere in the offer.
 *		No intersection downgrades to monochrome rather than
 *		failing: every terminal can do mono.  The answer reuses
 *		the offer's session id with a fresh version and carries
 *		exactly one video codec at payload type 96.
 *
 *--------------------------------------------------------------------*/

func sdp_generate_answer(offer *sdp_session_t, server_caps []terminal_capability_t, audio *audio_config_t, format *terminal_format_t) (*sdp_session_t, error) {
	if offer == nil || !offer.has_video {
		return nil, fmt.Errorf("answer needs an offer with video: %w", ErrInvalidParam)
	}

	var offered_for = func(codec terminal_codec_t) (terminal_capability_t, bool) {
		for _, cap := range offer.video_codecs {
			if cap.codec == codec {
				return cap, true
			}
		}
		return terminal_capability_t{}, false
	}

	var chosen terminal_capability_t
	var matched = false
	for _, server_cap := range server_caps {
		if offered, ok := offered_for(server_cap.codec); ok {
			chosen = terminal_capability_t{
				codec:  server_cap.codec,
				format: answer_format(offered.format, format),
			}
			matched = true
			break
		}
	}
	if !matched {
		logger.Info("no codec intersection, downgrading to monochrome")
		var base = default_terminal_format()
		if offered, ok := offered_for(TERM_CODEC_MONO); ok {
			base = offered.format
		}
		chosen = terminal_capability_t{
			codec:  TERM_CODEC_MONO,
			format: answer_format(base, format),
		}
	}

	var audio_cfg = default_audio_config()
	if audio != nil {
		audio_cfg = *audio
	}

	var session = &sdp_session_t{
		session_id:      offer.session_id,
		session_version: offer.session_version + 1,
		has_audio:       offer.has_audio,
		audio:           audio_cfg,
		has_video:       true,
		video_format:    chosen.format,
		video_codecs:    []terminal_capability_t{chosen},
	}

	var desc = session_skeleton(session.session_id, session.session_version)
	if session.has_audio {
		desc.MediaDescriptions = append(desc.MediaDescriptions, audio_media(audio_cfg))
	}
	desc.MediaDescriptions = append(desc.MediaDescriptions,
		video_media(session.video_codecs, SDP_VIDEO_PAYLOAD_BASE))

	var rendered, err = desc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshalling answer: %w", err)
	}
	session.text = string(rendered)
	return session, nil
}

/* a=fmtp value for video: "PT width=..;height=..;renderer=..[;charset=..]
 * [;compression=..][;csi_rep=0|1]".  Groups 1..3 required, 4..6 optional;
 * unknown keys are ignored by virtue of never being matched. */

var video_fmtp_re = regexp.MustCompile(
	`width=(\d+);height=(\d+);renderer=([a-z_]+)` +
		`(?:;charset=([a-z0-9_]+))?(?:;compression=([a-z]+))?(?:;csi_rep=([01]))?`)

func parse_video_fmtp(value string) (terminal_format_t, error) {
	var f = default_terminal_format()

	var m = video_fmtp_re.FindStringSubmatch(value)
	if m == nil {
		return f, fmt.Errorf("video fmtp %q missing required fields: %w", value, ErrCorrupt)
	}

	f.width, _ = strconv.Atoi(m[1])
	f.height, _ = strconv.Atoi(m[2])
	var renderer, ok = renderer_from_string(m[3])
	if !ok {
		return f, fmt.Errorf("video fmtp renderer %q: %w", m[3], ErrCorrupt)
	}
	f.renderer = renderer

	// Optional fields: malformed or absent values fall back to defaults.
	if charset, ok := charset_from_string(m[4]); ok {
		f.charset = charset
	}
	if compression, ok := compression_from_string(m[5]); ok {
		f.compression = compression
	}
	f.csi_rep = m[6] == "1"

	return f, nil
}

/* "PT token/RATE[/CH]" */

func parse_rtpmap(value string) (int, string, bool) {
	var fields = strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return 0, "", false
	}
	var pt, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", false
	}
	var token = strings.SplitN(fields[1], "/", 2)[0]
	return pt, token, true
}

/*-------------------------------------------------------------------
 *
 * Name:        sdp_parse
 *
 * Purpose:     Parse SDP text back into a session.
 *
 * Description:	pion handles the line-level grammar (CRLF splitting,
 *		v=/o=/s=/t=/m=/a= recognition); we walk the media
 *		sections it produces.  Section membership follows the
 *		most recent m= line by construction.  Video payload
 *		types 96..99 map positionally onto {truecolor, 256, 16,
 *		mono}; a recognized ACIP-* rtpmap token confirms (and
 *		wins over) the positional guess.
 *
 *--------------------------------------------------------------------*/

func sdp_parse(text string) (*sdp_session_t, error) {
	var desc = &sdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(text)); err != nil {
		return nil, fmt.Errorf("unmarshalling sdp: %w", ErrCorrupt)
	}

	var session = &sdp_session_t{
		session_id:      desc.Origin.SessionID,
		session_version: desc.Origin.SessionVersion,
		text:            text,
	}

	for _, md := range desc.MediaDescriptions {
		switch md.MediaName.Media {
		case "audio":
			session.has_audio = true
			session.audio = default_audio_config()
			for _, attr := range md.Attributes {
				switch attr.Key {
				case "rtpmap":
					var _, token, ok = parse_rtpmap(attr.Value)
					if !ok || !strings.EqualFold(token, "opus") {
						continue
					}
					var parts = strings.Split(attr.Value, "/")
					if len(parts) >= 2 {
						if rate, err := strconv.Atoi(parts[1]); err == nil {
							session.audio.sample_rate = rate
						}
					}
					if len(parts) >= 3 {
						if channels, err := strconv.Atoi(parts[2]); err == nil {
							session.audio.channels = channels
						}
					}
				case "fmtp":
					session.audio.use_fec = strings.Contains(attr.Value, "useinbandfec=1")
					session.audio.use_dtx = strings.Contains(attr.Value, "usedtx=1")
					if m := regexp.MustCompile(`minptime=(\d+)`).FindStringSubmatch(attr.Value); m != nil {
						session.audio.frame_duration_ms, _ = strconv.Atoi(m[1])
					}
				}
			}

		case "video":
			session.has_video = true

			// One slot per announced payload type, in announcement order.
			var pts []int
			var by_pt = make(map[int]*terminal_capability_t)
			for _, format := range md.MediaName.Formats {
				var pt, err = strconv.Atoi(format)
				if err != nil {
					continue
				}
				var offset = pt - SDP_VIDEO_PAYLOAD_BASE
				if offset < 0 || offset >= SDP_MAX_VIDEO_CODECS {
					continue
				}
				pts = append(pts, pt)
				by_pt[pt] = &terminal_capability_t{
					codec:  terminal_codec_t(offset),
					format: default_terminal_format(),
				}
			}

			for _, attr := range md.Attributes {
				switch attr.Key {
				case "rtpmap":
					var pt, token, ok = parse_rtpmap(attr.Value)
					if !ok {
						continue
					}
					if cap, present := by_pt[pt]; present {
						if codec, recognized := acip_codec_from_tag(token); recognized {
							cap.codec = codec
						}
					}
				case "fmtp":
					var fields = strings.SplitN(attr.Value, " ", 2)
					if len(fields) != 2 {
						continue
					}
					var pt, err = strconv.Atoi(fields[0])
					if err != nil {
						continue
					}
					if cap, present := by_pt[pt]; present {
						var format, parse_err = parse_video_fmtp(fields[1])
						if parse_err != nil {
							return nil, parse_err
						}
						cap.format = format
					}
				}
			}

			for _, pt := range pts {
				session.video_codecs = append(session.video_codecs, *by_pt[pt])
			}
			if len(session.video_codecs) > 0 {
				session.video_format = session.video_codecs[0].format
			}
		}
	}

	return session, nil
}

/*
 * On an answer, the selection is the sole capability at index 0.
 */

func sdp_get_selected_video_codec(answer *sdp_session_t) (terminal_codec_t, terminal_format_t, error) {
	if answer == nil || len(answer.video_codecs) == 0 {
		return TERM_CODEC_MONO, default_terminal_format(),
			fmt.Errorf("answer carries no video codec: %w", ErrNotFound)
	}
	var selected = answer.video_codecs[0]
	return selected.codec, selected.format, nil
}
