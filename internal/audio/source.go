package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

// LocalStream is an acquired local audio stream owned by the engine.
type LocalStream interface {
	Track() webrtc.TrackLocal
	// FrequencyData returns the current per-bin amplitudes in 0..255.
	FrequencyData() []byte
	Stop()
}

// MediaSource acquires the local audio stream.
type MediaSource interface {
	Acquire(ctx context.Context) (LocalStream, error)
}

const (
	opusClockRate  = 48000
	oggPageTick    = 20 * time.Millisecond
	frequencyBins  = 32
	maxOpusPayload = 160
)

// OggFileSource は Ogg/Opus ファイルをマイク代わりに流すソース
type OggFileSource struct {
	Path string
	Loop bool
}

func (s OggFileSource) Acquire(ctx context.Context) (LocalStream, error) {
	if s.Path == "" {
		return nil, ErrNoMediaSource
	}
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read ogg header: %w", err)
	}

	streamID, err := gonanoid.New()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to generate stream id: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio", "vibestore-"+streamID,
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	stream := &oggStream{
		file:   file,
		reader: reader,
		track:  track,
		loop:   s.Loop,
		done:   make(chan struct{}),
	}
	go stream.pump()
	return stream, nil
}

type oggStream struct {
	file   *os.File
	reader *oggreader.OggReader
	track  *webrtc.TrackLocalStaticSample
	loop   bool

	level    atomic.Int32
	done     chan struct{}
	stopOnce sync.Once
}

func (s *oggStream) Track() webrtc.TrackLocal { return s.track }

// FrequencyData は直近パケットのサイズから振幅を近似する。
// 無音の Opus フレームは数バイトしかない。
func (s *oggStream) FrequencyData() []byte {
	level := byte(s.level.Load())
	data := make([]byte, frequencyBins)
	for i := range data {
		data[i] = level
	}
	return data
}

func (s *oggStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *oggStream) pump() {
	defer s.file.Close()

	ticker := time.NewTicker(oggPageTick)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		page, header, err := s.reader.ParseNextPage()
		if errors.Is(err, io.EOF) && s.loop {
			if err := s.rewind(); err != nil {
				logger.Warn("Failed to rewind audio file", zap.Error(err))
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("Failed to read ogg page", zap.Error(err))
			}
			s.level.Store(0)
			return
		}

		sampleCount := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration((sampleCount/opusClockRate)*1000) * time.Millisecond

		level := len(page) * 255 / maxOpusPayload
		if level > 255 {
			level = 255
		}
		s.level.Store(int32(level))

		if err := s.track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			logger.Debug("Failed to write audio sample", zap.Error(err))
		}
	}
}

func (s *oggStream) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := oggreader.NewWith(s.file)
	if err != nil {
		return err
	}
	s.reader = reader
	return nil
}

// RemoteStream drains a remote audio track and counts received RTP packets.
type RemoteStream struct {
	UserID   string
	MimeType string
	packets  atomic.Int64
	done     chan struct{}
}

func newRemoteStream(userID string, track *webrtc.TrackRemote) *RemoteStream {
	rs := &RemoteStream{
		UserID:   userID,
		MimeType: track.Codec().MimeType,
		done:     make(chan struct{}),
	}
	go rs.drain(track)
	return rs
}

func (rs *RemoteStream) drain(track *webrtc.TrackRemote) {
	defer close(rs.done)
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
		rs.packets.Add(1)
	}
}

func (rs *RemoteStream) Packets() int64 {
	return rs.packets.Load()
}
