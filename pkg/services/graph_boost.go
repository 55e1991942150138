package services

import (
	"math"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/models"
)

// Cardinality thresholds on unique_targets / edge_count.
const (
	CardinalityOneToOneMinRatio  = 0.95
	CardinalityOneToManyMaxRatio = 0.2
)

// BoostConfig tunes ComputeGraphBoost.
type BoostConfig struct {
	MaxBoost           float64
	OutgoingWeight     float64
	IncomingWeight     float64
	HubDegreeThreshold int
	HubBoostMultiplier float64
	CardinalityWeights map[models.CardinalityClass]float64
}

// DefaultBoostConfig returns the standard ranking weights.
func DefaultBoostConfig() BoostConfig {
	return BoostConfig{
		MaxBoost:           0.2,
		OutgoingWeight:     1.0,
		IncomingWeight:     0.5,
		HubDegreeThreshold: 10,
		HubBoostMultiplier: 1.3,
		CardinalityWeights: map[models.CardinalityClass]float64{
			models.CardinalityOneToOne:  1.2,
			models.CardinalityOneToFew:  1.0,
			models.CardinalityOneToMany: 0.8,
		},
	}
}

// ClassifyCardinality classifies an edge by the ratio of distinct targets to
// references. Near 1 every reference hits its own target; a small ratio
// means many references share each target.
func ClassifyCardinality(edgeCount, uniqueTargets int64) models.CardinalityClass {
	if edgeCount <= 0 || uniqueTargets <= 0 {
		return models.CardinalityOneToFew
	}
	ratio := float64(uniqueTargets) / float64(edgeCount)
	switch {
	case ratio >= CardinalityOneToOneMinRatio:
		return models.CardinalityOneToOne
	case ratio <= CardinalityOneToManyMaxRatio:
		return models.CardinalityOneToMany
	default:
		return models.CardinalityOneToFew
	}
}

// IsHub reports whether a model's relationship degree reaches the threshold.
func IsHub(gctx *models.GraphContext, threshold int) bool {
	return threshold > 0 && gctx.Degree() >= threshold
}

// CountConnections measures the connectivity of one DataPoint.
//
// Outgoing counts the record's populated FK fields, read from fk_refs when
// present and otherwise from the raw record using the context's outgoing
// relationships. IncomingEdgeCount is the model-level sum of incoming
// edge_count; it does not check that this particular record is referenced.
func CountConnections(payload map[string]any, gctx *models.GraphContext) models.ConnectionCount {
	var c models.ConnectionCount

	if refs, ok := payload[models.PayloadFKRefs].(map[string]any); ok {
		for _, v := range refs {
			if populatedRef(v) {
				c.Outgoing++
			}
		}
	} else if record, ok := payload[models.PayloadRecord].(map[string]any); ok && gctx != nil {
		for _, rel := range gctx.Outgoing {
			if !models.ResolveFKValue(fieldTypeForRelationship(rel.RelationshipType), record[rel.FieldName]).Absent() {
				c.Outgoing++
			}
		}
	}

	if gctx != nil {
		c.OutgoingFieldCount = len(gctx.Outgoing)
		for _, rel := range gctx.Incoming {
			c.IncomingEdgeCount += rel.EdgeCount
		}
	}
	c.Total = int64(c.Outgoing) + c.IncomingEdgeCount
	return c
}

// ComputeGraphBoost returns a ranking boost in [0, MaxBoost*1.5]:
//
//	base  = outgoing*OutgoingWeight*cardinalityWeight + log10(incoming+1)*IncomingWeight
//	boost = min(base/10, MaxBoost), times HubBoostMultiplier for hub models
//
// cardinalityWeight is the mean weight of the model's outgoing relationships
// by cardinality class (1 when there are none).
func ComputeGraphBoost(payload map[string]any, gctx *models.GraphContext, cfg BoostConfig) float64 {
	if cfg.MaxBoost <= 0 || math.IsNaN(cfg.MaxBoost) {
		return 0
	}

	conn := CountConnections(payload, gctx)
	cardWeight := cardinalityWeight(gctx, cfg.CardinalityWeights)

	base := float64(conn.Outgoing)*cfg.OutgoingWeight*cardWeight +
		math.Log10(float64(conn.IncomingEdgeCount)+1)*cfg.IncomingWeight

	boost := math.Min(base/10, cfg.MaxBoost)
	if gctx != nil && IsHub(gctx, cfg.HubDegreeThreshold) {
		boost *= cfg.HubBoostMultiplier
	}

	upper := cfg.MaxBoost * 1.5
	switch {
	case math.IsNaN(boost), boost < 0:
		return 0
	case boost > upper:
		return upper
	default:
		return boost
	}
}

func cardinalityWeight(gctx *models.GraphContext, weights map[models.CardinalityClass]float64) float64 {
	if gctx == nil || len(gctx.Outgoing) == 0 {
		return 1
	}
	var sum float64
	for _, rel := range gctx.Outgoing {
		w, ok := weights[rel.CardinalityClass]
		if !ok {
			w = 1
		}
		sum += w
	}
	return sum / float64(len(gctx.Outgoing))
}

func populatedRef(v any) bool {
	switch ref := v.(type) {
	case string:
		return ref != ""
	case []any:
		return len(ref) > 0
	case []string:
		return len(ref) > 0
	default:
		return false
	}
}

func fieldTypeForRelationship(kind models.RelationshipKind) models.FieldType {
	switch kind {
	case models.RelationshipOneToMany:
		return models.FieldTypeOneToMany
	case models.RelationshipManyToMany:
		return models.FieldTypeManyToMany
	default:
		return models.FieldTypeManyToOne
	}
}
