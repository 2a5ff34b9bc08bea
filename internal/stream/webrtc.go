package stream

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/satindergrewal/songwheel/internal/audio"
	"gopkg.in/hraban/opus.v2"
)

const opusBitrate = 96000

// WebRTCHandler negotiates WebRTC peers that hear the wheel as Opus with
// lower latency than the MP3 stream.
type WebRTCHandler struct {
	frames   *Frames
	streamID string

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]struct{}
}

// NewWebRTCHandler creates a WebRTC stream handler. streamID labels the
// audio track offered to peers.
func NewWebRTCHandler(frames *Frames, streamID string) *WebRTCHandler {
	return &WebRTCHandler{
		frames:   frames,
		streamID: streamID,
		peers:    make(map[*webrtc.PeerConnection]struct{}),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close disconnects every peer.
func (h *WebRTCHandler) Close() error {
	h.mu.Lock()
	peers := make([]*webrtc.PeerConnection, 0, len(h.peers))
	for pc := range h.peers {
		peers = append(peers, pc)
	}
	clear(h.peers)
	h.mu.Unlock()

	var errs []error
	for _, pc := range peers {
		errs = append(errs, pc.Close())
	}
	return errors.Join(errs...)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, track, gone, err := h.newPeer()
	if err != nil {
		log.Printf("WebRTC: %v", err)
		http.Error(w, "create peer failed", http.StatusInternalServerError)
		return
	}

	if status, err := negotiate(pc, offer); err != nil {
		pc.Close()
		log.Printf("WebRTC: %v", err)
		http.Error(w, err.Error(), status)
		return
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-r.Context().Done():
		pc.Close()
		return
	}

	h.mu.Lock()
	h.peers[pc] = struct{}{}
	h.mu.Unlock()
	log.Printf("WebRTC peer connected (total: %d)", h.PeerCount())

	go h.streamToPeer(track, gone)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// newPeer creates a peer connection carrying one Opus track. gone is closed
// and the peer dropped from the handler when its connection ends.
func (h *WebRTCHandler) newPeer() (pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample, gone chan struct{}, err error) {
	pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, nil, err
	}

	track, err = webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		h.streamID,
	)
	if err != nil {
		pc.Close()
		return nil, nil, nil, err
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, nil, nil, err
	}

	gone = make(chan struct{})
	var once sync.Once

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			once.Do(func() { close(gone) })
			h.mu.Lock()
			_, ok := h.peers[pc]
			delete(h.peers, pc)
			h.mu.Unlock()
			if ok {
				pc.Close()
				log.Printf("WebRTC peer disconnected (remaining: %d)", h.PeerCount())
			}
		}
	})
	return pc, track, gone, nil
}

// negotiate applies the remote offer and sets the local answer. The int is
// the HTTP status to report on failure.
func negotiate(pc *webrtc.PeerConnection, offer webrtc.SessionDescription) (int, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return http.StatusBadRequest, errors.New("set remote description failed")
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return http.StatusInternalServerError, errors.New("create answer failed")
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return http.StatusInternalServerError, errors.New("set local description failed")
	}
	return http.StatusOK, nil
}

// streamToPeer encodes broadcast frames to Opus until the peer is gone.
func (h *WebRTCHandler) streamToPeer(track *webrtc.TrackLocalStaticSample, gone <-chan struct{}) {
	listener := h.frames.Subscribe()
	defer h.frames.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Printf("WebRTC: opus encoder error: %v", err)
		return
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		log.Printf("WebRTC: opus bitrate: %v", err)
	}

	buf := make([]byte, 4000)
	for {
		select {
		case <-gone:
			return
		case <-listener.Done():
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, buf)
			if err != nil {
				log.Printf("WebRTC: opus encode error: %v", err)
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     buf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}
