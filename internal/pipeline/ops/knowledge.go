package ops

import (
	"context"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/shohq/ontology/internal/event/domain"
	"github.com/shohq/ontology/internal/guard"
	knowdomain "github.com/shohq/ontology/internal/knowledge/domain"
	"github.com/shohq/ontology/pkg/apperrors"
	"gorm.io/gorm"
)

const EventKnowledgeIndexed = "knowledge.indexed"

// IndexKnowledge replaces a thing's knowledge chunks with a fresh index.
type IndexKnowledge struct {
	f       *Factory
	thingID snowflake.ID
	chunks  []knowdomain.ChunkInput
}

func (f *Factory) IndexKnowledge(thingID snowflake.ID, chunks []knowdomain.ChunkInput) *IndexKnowledge {
	return &IndexKnowledge{f: f, thingID: thingID, chunks: chunks}
}

func (o *IndexKnowledge) Name() string { return "knowledge.index" }
func (o *IndexKnowledge) Object() string { return guard.ObjectKnowledge }
func (o *IndexKnowledge) Action() string { return guard.ActionUpdate }
func (o *IndexKnowledge) Hierarchical() bool { return false }

func (o *IndexKnowledge) GroupID(ctx context.Context) (snowflake.ID, error) {
	return o.f.thingGroup(ctx, o.thingID)
}

func (o *IndexKnowledge) Validate(ctx context.Context) error {
	if len(o.chunks) == 0 {
		return apperrors.Validation("chunks", "no chunks supplied")
	}
	return nil
}

func (o *IndexKnowledge) Mutate(ctx context.Context, tx *gorm.DB) (any, []eventdomain.Draft, error) {
	chunks, err := o.f.knowledge.WithTx(tx).Put(ctx, o.thingID, o.chunks)
	if err != nil {
		return nil, nil, err
	}
	return chunks, []eventdomain.Draft{{
		Type:     EventKnowledgeIndexed,
		TargetID: o.thingID,
		Metadata: map[string]any{"chunks": len(chunks)},
	}}, nil
}

func (o *IndexKnowledge) Aggregates(ctx context.Context, tx *gorm.DB, result any) error {
	return nil
}
