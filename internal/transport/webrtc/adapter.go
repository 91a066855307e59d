// Package webrtc bridges a pion/webrtc PeerConnection's audio track into
// the pipeline executor (§6's WebRTC transport). Grounded directly on the
// teacher's GrpcStreamer
// (api/assistant-api/internal/webrtc/grpc_streamer.go): the same
// MediaEngine/interceptor/PeerConnection setup, OnTrack ingestion loop,
// and local-track output loop, simplified to a linear-PCM capability
// ("audio/L16") instead of Opus — this adapter's job is bridging RTP
// timing into RuntimeData, not audio compression, and a concrete codec
// implementation is a node-pool concern outside this runtime's scope.
package webrtc

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rapidaai/runtime/internal/executor"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/pkg/commons"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// SampleRate and Channels describe the linear-PCM capability this adapter
// registers and expects on both the remote and local tracks.
const (
	SampleRate = 16000
	Channels   = 1
	mimeTypeL16 = "audio/L16"
)

// Config mirrors the teacher's webrtc_internal.Config shape (ICE servers,
// transport policy) scoped to what this adapter needs.
type Config struct {
	ICEServers         []pionwebrtc.ICEServer
	ICETransportPolicy pionwebrtc.ICETransportPolicy
}

// DefaultConfig returns a Config with no ICE servers (host-candidate-only,
// suitable for same-host or same-LAN testing).
func DefaultConfig() Config {
	return Config{}
}

// Adapter owns one PeerConnection and bridges its audio track to and from
// a running pipeline Session.
type Adapter struct {
	mu sync.Mutex

	logger  commons.Logger
	cfg     Config
	session *executor.Session
	entryID string
	nowUs   func() uint64

	ctx    context.Context
	cancel context.CancelFunc

	pc         *pionwebrtc.PeerConnection
	localTrack *pionwebrtc.TrackLocalStaticSample

	outputStarted bool
}

// New builds a PeerConnection bound to session, feeding every remote audio
// frame it receives into entryID and draining session output back out
// over the local track.
func New(ctx context.Context, cfg Config, session *executor.Session, entryID string, nowUs func() uint64, logger commons.Logger) (*Adapter, error) {
	adapterCtx, cancel := context.WithCancel(ctx)
	a := &Adapter{
		logger:  logger,
		cfg:     cfg,
		session: session,
		entryID: entryID,
		nowUs:   nowUs,
		ctx:     adapterCtx,
		cancel:  cancel,
	}
	if err := a.createPeerConnection(); err != nil {
		cancel()
		return nil, err
	}
	return a, nil
}

// PeerConnection returns the underlying pion PeerConnection, e.g. for a
// caller to set the remote description and create/send the local
// answer/offer as part of its own signaling exchange.
func (a *Adapter) PeerConnection() *pionwebrtc.PeerConnection { return a.pc }

func (a *Adapter) createPeerConnection() error {
	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:  mimeTypeL16,
			ClockRate: SampleRate,
			Channels:  Channels,
		},
		PayloadType: 96,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return err
	}

	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return err
	}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return err
	}
	registry.Add(pli)

	api := pionwebrtc.NewAPI(
		pionwebrtc.WithMediaEngine(mediaEngine),
		pionwebrtc.WithInterceptorRegistry(registry),
	)

	pcConfig := pionwebrtc.Configuration{ICEServers: a.cfg.ICEServers}
	if a.cfg.ICETransportPolicy == pionwebrtc.ICETransportPolicyRelay {
		pcConfig.ICETransportPolicy = pionwebrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return err
	}
	a.pc = pc

	a.setupPeerEventHandlers()
	return a.createLocalTrack()
}

func (a *Adapter) setupPeerEventHandlers() {
	a.pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		a.logger.Infow("webrtc adapter connection state", "state", state.String())

		a.mu.Lock()
		defer a.mu.Unlock()
		if state == pionwebrtc.PeerConnectionStateConnected && !a.outputStarted {
			a.outputStarted = true
			go a.runOutputSender()
		}
	})

	a.pc.OnTrack(func(track *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		if track.Kind() != pionwebrtc.RTPCodecTypeAudio {
			return
		}
		a.logger.Infow("webrtc adapter remote audio track received", "codec", track.Codec().MimeType)
		go a.readRemoteAudio(track)
	})
}

func (a *Adapter) createLocalTrack() error {
	track, err := pionwebrtc.NewTrackLocalStaticSample(
		pionwebrtc.RTPCodecCapability{MimeType: mimeTypeL16, ClockRate: SampleRate, Channels: Channels},
		"audio",
		"rapidaai-runtime",
	)
	if err != nil {
		return err
	}
	if _, err := a.pc.AddTrack(track); err != nil {
		return err
	}
	a.localTrack = track
	return nil
}

// readRemoteAudio depacketizes incoming RTP and forwards each packet's
// linear-PCM payload to the session's entry node as an Audio frame.
func (a *Adapter) readRemoteAudio(track *pionwebrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-a.ctx.Done():
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		samples := pcmBytesToFloat32(pkt.Payload)
		f, err := frame.NewAudio("", SampleRate, Channels, samples)
		if err != nil {
			a.logger.Warnw("webrtc adapter: dropping malformed audio packet", "error", err)
			continue
		}
		f.TimestampUs = uint64(pkt.Timestamp) * 1000000 / SampleRate
		f.HasTimestamp = true
		f.ArrivalTsUs = a.nowUs()
		f.HasArrival = true

		if err := a.session.SendInput(a.ctx, a.entryID, f); err != nil {
			a.logger.Warnw("webrtc adapter: SendInput failed", "error", err)
			return
		}
	}
}

// runOutputSender drains the session's output queue and writes each Audio
// frame to the local track as a media sample once the peer connection is
// established, matching the teacher's "start sending once Connected"
// sequencing.
func (a *Adapter) runOutputSender() {
	for {
		f, err := a.session.RecvOutput(a.ctx)
		if err != nil {
			return
		}
		if f.Variant != frame.VariantAudio || f.Audio == nil {
			continue
		}
		sampleData := floatsToPCMBytes(f.Audio.Samples)
		duration := sampleDuration(len(f.Audio.Samples), f.Audio.Channels, f.Audio.SampleRate)
		if err := a.localTrack.WriteSample(media.Sample{Data: sampleData, Duration: duration}); err != nil {
			a.logger.Warnw("webrtc adapter: WriteSample failed", "error", err)
			return
		}
	}
}

// Close tears down the peer connection and stops both adapter loops.
func (a *Adapter) Close() error {
	a.cancel()
	return a.pc.Close()
}
