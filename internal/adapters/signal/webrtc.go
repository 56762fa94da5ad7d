package signal

import "github.com/pion/webrtc/v4"

// iceServers returns a copy of the configured ICE servers, defaulting to
// a public STUN server so peers can still gather srflx candidates.
func (ctl *SignalWSController) iceServers() []webrtc.ICEServer {
	if len(ctl.Opts.ICEServers) == 0 {
		return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	out := make([]webrtc.ICEServer, len(ctl.Opts.ICEServers))
	copy(out, ctl.Opts.ICEServers)
	return out
}
