package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunosaraiva/zapinsight/internal/config"
	"github.com/brunosaraiva/zapinsight/internal/database"
)

// GraphNode is one participant in the relationship graph.
type GraphNode struct {
	JID          string `json:"jid"`
	Name         string `json:"name"`
	MessageCount int64  `json:"message_count"`
}

// GraphEdge is one relationship in the graph.
type GraphEdge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	Strength     float64 `json:"strength"`
	Interactions int64   `json:"interactions"`
}

// RelationshipGraph is the network view served to the dashboard.
type RelationshipGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// RelationshipBuilder maintains pairwise interaction strengths between
// participants.
type RelationshipBuilder struct {
	store      database.Store
	window     time.Duration
	lookback   time.Duration
	saturation int
	peerLimit  int
	logger     *slog.Logger
}

// NewRelationshipBuilder creates a relationship builder.
func NewRelationshipBuilder(store database.Store, cfg config.AnalyticsConfig, logger *slog.Logger) *RelationshipBuilder {
	return &RelationshipBuilder{
		store:      store,
		window:     cfg.RelationshipWindow,
		lookback:   cfg.RelationshipLookback,
		saturation: cfg.RelationshipSaturation,
		peerLimit:  cfg.RelationshipPeerLimit,
		logger:     logger.With("component", "relationships"),
	}
}

// UpdateForSender refreshes the relationships between the sender and
// the other recent senders in the same conversation. Self-pairs are
// never written; pairs are stored in canonical order so updating
// (a, b) and (b, a) touches one row.
func (b *RelationshipBuilder) UpdateForSender(ctx context.Context, conversationJID, senderJID string, at int64) error {
	since := at - int64(b.lookback.Seconds())

	peers, err := b.store.PeersOf(ctx, conversationJID, senderJID, since, b.peerLimit)
	if err != nil {
		return fmt.Errorf("failed to find peers of %s: %w", senderJID, err)
	}

	for _, peer := range peers {
		if peer == senderJID {
			continue
		}
		if err := b.UpdatePair(ctx, senderJID, peer, at); err != nil {
			b.logger.WarnContext(ctx, "Failed to update relationship",
				"sender", senderJID, "peer", peer, "error", err)
		}
	}

	b.logger.DebugContext(ctx, "Relationships refreshed", "sender", senderJID, "peers", len(peers))
	return nil
}

// UpdatePair recomputes and stores the relationship between two
// participants. The pair is a no-op when both JIDs are equal.
func (b *RelationshipBuilder) UpdatePair(ctx context.Context, jidA, jidB string, at int64) error {
	a, bJID := canonicalPair(jidA, jidB)
	if a == bJID {
		return nil
	}

	since := at - int64(b.lookback.Seconds())
	count, err := b.store.CountAdjacentInteractions(ctx, a, bJID, b.window, since)
	if err != nil {
		return fmt.Errorf("failed to count interactions: %w", err)
	}
	if count == 0 {
		return nil
	}

	strength := float64(count) / float64(b.saturation)
	if strength > 1 {
		strength = 1
	}

	return b.store.UpsertRelationship(ctx, &database.ParticipantRelationship{
		ParticipantAJID:   a,
		ParticipantBJID:   bJID,
		Strength:          strength,
		TotalInteractions: count,
		LastInteractionAt: at,
		UpdatedAt:         time.Now().UTC().Unix(),
	})
}

// BuildGraph assembles the relationship network for the dashboard.
// Weak edges (strength 0.1 or less) are omitted to keep the graph
// readable.
func (b *RelationshipBuilder) BuildGraph(ctx context.Context) (*RelationshipGraph, error) {
	participants, err := b.store.ListParticipants(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph nodes: %w", err)
	}

	rels, err := b.store.StrongestRelationships(ctx, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph edges: %w", err)
	}

	graph := &RelationshipGraph{
		Nodes: make([]GraphNode, 0, len(participants)),
		Edges: make([]GraphEdge, 0, len(rels)),
	}
	for _, p := range participants {
		graph.Nodes = append(graph.Nodes, GraphNode{
			JID:          p.JID,
			Name:         p.Name,
			MessageCount: p.MessageCount,
		})
	}
	for _, r := range rels {
		if r.Strength <= 0.1 {
			continue
		}
		graph.Edges = append(graph.Edges, GraphEdge{
			Source:       r.ParticipantAJID,
			Target:       r.ParticipantBJID,
			Strength:     r.Strength,
			Interactions: r.TotalInteractions,
		})
	}

	return graph, nil
}

// canonicalPair orders two JIDs so each pair maps to one stored row.
func canonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
