package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shohq/ontology/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	// WithTx scopes the service to a transaction so appends roll back with
	// the mutation that produced them.
	WithTx(tx *gorm.DB) Service

	// Append writes one event. Feature code never calls this directly; the
	// mutation pipeline does, inside its atomic unit.
	Append(ctx context.Context, req AppendRequest) (*Event, error)
	Query(ctx context.Context, req QueryEventsRequest) (*QueryEventsResponse, error)
}

type AppendRequest struct {
	Type     string
	ActorID  snowflake.ID
	TargetID snowflake.ID
	GroupID  snowflake.ID
	Metadata map[string]any
}

type QueryEventsRequest struct {
	pagination.Pagination
	GroupID  snowflake.ID
	ActorID  snowflake.ID
	TargetID snowflake.ID
	Type     string
	SinceTs  *time.Time
}

type QueryEventsResponse struct {
	pagination.PageInfo
	Events []Event `json:"events"`
}
