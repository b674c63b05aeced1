package relay

import (
	"time"

	"github.com/andy6609/chat-relay/internal/netio"
)

// ack is sent back to the sender after each inbound message when the
// ack_inbound config toggle is on.
var ack = []byte("ACK")

// serviceSlot handles one ready occupied slot: a single bounded read, then
// fan-out. A read of zero bytes or an error means the peer is gone and the
// slot is torn down.
func (s *Server) serviceSlot(ref SlotRef) {
	if !s.reg.Holds(ref.Index, ref.FD) {
		// Torn down earlier in this wake by a failed broadcast write.
		return
	}

	n, err := netio.ReadOnce(ref.FD, s.readBuf)
	if err != nil || n == 0 {
		s.closeSlot(ref, "peer disconnected", err)
		return
	}
	MessagesTotal.WithLabelValues("inbound").Inc()

	if s.cfg.AckInbound {
		if err := netio.WriteAll(ref.FD, ack); err != nil {
			s.closeSlot(ref, "ack write failed", err)
			return
		}
	}

	s.broadcast(ref.Index, s.readBuf[:n])
}

// broadcast delivers payload to every occupied slot except the sender, in
// ascending slot order. The recipient list is snapshotted up front so
// tearing down a failing recipient cannot skip or revisit slots. Delivery
// is best-effort per recipient.
func (s *Server) broadcast(senderIndex int, payload []byte) {
	start := time.Now()
	for _, ref := range s.reg.Occupied() {
		if ref.Index == senderIndex {
			continue
		}
		if err := netio.WriteAll(ref.FD, payload); err != nil {
			s.closeSlot(ref, "write failed", err)
			continue
		}
		MessagesTotal.WithLabelValues("delivered").Inc()
	}
	BroadcastDuration.Observe(time.Since(start).Seconds())
}

// closeSlot closes the connection and frees its slot. Other peers are not
// told; the peer simply stops appearing in future fan-outs.
func (s *Server) closeSlot(ref SlotRef, reason string, err error) {
	netio.Close(ref.FD)
	s.reg.Free(ref.Index)
	ConnectedPeers.Set(float64(s.reg.Count()))
	if err != nil {
		s.logger.Info("connection closed", "slot", ref.Index, "reason", reason, "error", err)
	} else {
		s.logger.Info("connection closed", "slot", ref.Index, "reason", reason)
	}
}
