package peer

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const (
	opusPayloadType = 111
	opusClockRate   = 48000
	frameDuration   = 20 * time.Millisecond
	samplesPerFrame = opusClockRate / 50
)

// opusSilenceFrame is a minimal valid Opus frame decoding to silence.
var opusSilenceFrame = []byte{0xf8, 0xff, 0xfe}

// SilenceSource feeds a local audio track with silent Opus RTP at a steady
// 20ms cadence, so a headless participant negotiates and carries a real
// audio stream. Muting pauses the writes; the track itself stays attached so
// unmute needs no renegotiation.
type SilenceSource struct {
	track *webrtc.TrackLocalStaticRTP
	muted atomic.Bool

	ssrc      uint32
	sequence  uint16
	timestamp uint32
}

func NewSilenceSource() (*SilenceSource, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"public-vc",
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	return &SilenceSource{
		track:     track,
		ssrc:      rand.Uint32(),
		sequence:  uint16(rand.Uint32()),
		timestamp: rand.Uint32(),
	}, nil
}

func (s *SilenceSource) Track() webrtc.TrackLocal {
	return s.track
}

func (s *SilenceSource) SetMuted(muted bool) {
	s.muted.Store(muted)
}

func (s *SilenceSource) Muted() bool {
	return s.muted.Load()
}

// Run writes frames until ctx is cancelled.
func (s *SilenceSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// The clock keeps advancing while muted so the stream stays
			// contiguous on unmute.
			s.sequence++
			s.timestamp += samplesPerFrame

			if s.muted.Load() {
				continue
			}

			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    opusPayloadType,
					SequenceNumber: s.sequence,
					Timestamp:      s.timestamp,
					SSRC:           s.ssrc,
				},
				Payload: opusSilenceFrame,
			}

			if err := s.track.WriteRTP(pkt); err != nil {
				return fmt.Errorf("write rtp: %w", err)
			}
		}
	}
}
