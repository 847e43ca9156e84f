package pump

import "time"

// Stats are pump counters.
type Stats struct {
	Started            bool          `json:"started"`
	Uptime             time.Duration `json:"uptime"`
	Cycles             uint64        `json:"cycles"`
	MeshSubmitted      uint64        `json:"mesh_submitted"`
	DetectionSubmitted uint64        `json:"detection_submitted"`
	SubmitErrors       uint64        `json:"submit_errors"`
	LastSeq            uint64        `json:"last_seq"`
	LastCycle          time.Duration `json:"last_cycle"`
}

// Stats returns a snapshot of the pump counters.
func (p *Pump) Stats() Stats {
	s := Stats{
		Started:            p.trigger.Started(),
		Cycles:             p.cycles.Load(),
		MeshSubmitted:      p.meshSent.Load(),
		DetectionSubmitted: p.detectionSent.Load(),
		SubmitErrors:       p.submitErrors.Load(),
		LastSeq:            p.lastSeq.Load(),
		LastCycle:          time.Duration(p.lastCycleMicros.Load()) * time.Microsecond,
	}

	p.mu.Lock()
	if !p.startedAt.IsZero() {
		s.Uptime = time.Since(p.startedAt)
	}
	p.mu.Unlock()
	return s
}

// Started reports whether the camera trigger is running.
func (p *Pump) Started() bool {
	return p.trigger.Started()
}
