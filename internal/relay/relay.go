package relay

import (
	"context"
	"errors"
	"log"

	"github.com/taraworks/taravoice/internal/audit"
	"github.com/taraworks/taravoice/internal/enrich"
	"github.com/taraworks/taravoice/internal/observability"
	"github.com/taraworks/taravoice/internal/protocol"
	"github.com/taraworks/taravoice/internal/registry"
)

// Upstream is the slice of the session manager contract the relay drives.
type Upstream interface {
	Configure(instructions, voice string)
	AppendAudio(audioBase64 string)
	CommitBuffer()
	CreateResponse()
	Ready() bool
}

// Enricher produces the one-time profile summary for an init.
type Enricher interface {
	Summary(ctx context.Context, id enrich.Identity) (text string, outcome string)
}

// Relay translates between the downstream client protocol and upstream
// operations. It holds no per-message state of its own; per-connection state
// lives in the registry and the shared upstream state in the manager.
type Relay struct {
	upstream Upstream
	enricher Enricher
	registry *registry.Registry
	metrics  *observability.Metrics
	audit    audit.Store
}

func New(up Upstream, enricher Enricher, reg *registry.Registry, metrics *observability.Metrics, auditStore audit.Store) *Relay {
	if auditStore == nil {
		auditStore = audit.NoopStore{}
	}
	return &Relay{
		upstream: up,
		enricher: enricher,
		registry: reg,
		metrics:  metrics,
		audit:    auditStore,
	}
}

// HandleMessage processes one inbound frame from the identified downstream
// connection. Malformed payloads and unknown types are logged and discarded;
// they never close the connection.
func (r *Relay) HandleMessage(ctx context.Context, connID string, conn registry.Conn, raw []byte) {
	parsed, err := protocol.ParseClientMessage(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnsupportedType) {
			log.Printf("relay: ignoring unrecognized message from %s", connID)
		} else {
			log.Printf("relay: malformed message from %s dropped: %v", connID, err)
		}
		return
	}

	switch msg := parsed.(type) {
	case protocol.Init:
		r.countInbound(protocol.TypeInit)
		r.handleInit(ctx, connID, conn, msg)

	case protocol.Media:
		r.countInbound(protocol.TypeMedia)
		// Frames arriving before the upstream is ready are dropped, not
		// queued. The client keeps streaming; audio resumes flowing the
		// moment the upstream session is back.
		if !r.upstream.Ready() {
			return
		}
		r.upstream.AppendAudio(msg.Data)

	case protocol.MediaCommit:
		r.countInbound(protocol.TypeMediaCommit)
		if !r.upstream.Ready() {
			return
		}
		r.upstream.CommitBuffer()
		r.upstream.CreateResponse()

	case protocol.Stop:
		r.countInbound(protocol.TypeStop)
		if err := conn.Close(); err != nil {
			log.Printf("relay: close on stop for %s: %v", connID, err)
		}
	}
}

// handleInit runs the enrichment fetch off the read loop so a slow auxiliary
// service never blocks other traffic on this or any other connection. Each
// init re-runs the full fetch; the latest init wins as the upstream context.
func (r *Relay) handleInit(ctx context.Context, connID string, conn registry.Conn, msg protocol.Init) {
	if r.registry.Attached(connID) {
		log.Printf("relay: re-init from %s supersedes previous session context", connID)
		if r.metrics != nil {
			r.metrics.ConnectionEvents.WithLabelValues("reinit").Inc()
		}
	}
	go func() {
		id := enrich.Identity{
			Name:       msg.Name,
			BirthDate:  msg.BirthDate,
			BirthTime:  msg.BirthTime,
			BirthPlace: msg.BirthPlace,
			Gender:     msg.Gender,
		}

		text, outcome := r.enricher.Summary(ctx, id)
		if r.metrics != nil {
			r.metrics.EnrichmentOutcomes.WithLabelValues(outcome).Inc()
		}

		r.upstream.Configure(text, msg.Voice)

		if err := r.registry.SetAttached(connID, true); err != nil {
			// Client went away while enrichment was in flight.
			return
		}
		if err := conn.SendJSON(protocol.InitOK{Type: protocol.TypeInitOK}); err != nil {
			log.Printf("relay: init_ok to %s failed: %v", connID, err)
			return
		}
		r.countOutbound(protocol.TypeInitOK)

		if err := r.audit.SessionInit(ctx, connID, msg.Name, outcome); err != nil {
			log.Printf("relay: audit session init: %v", err)
		}
	}()
}

func (r *Relay) countInbound(t protocol.MessageType) {
	if r.metrics != nil {
		r.metrics.RelayMessages.WithLabelValues("inbound", string(t)).Inc()
	}
}

func (r *Relay) countOutbound(t protocol.MessageType) {
	if r.metrics != nil {
		r.metrics.RelayMessages.WithLabelValues("outbound", string(t)).Inc()
	}
}
