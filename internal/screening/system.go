package screening

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/evidence"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/session"
)

// System defines the public contract for screening operations. Every
// operation is scoped to a session id.
type System interface {
	Screen(ctx context.Context, sessionID string, req ScreenRequest) (*Result, error)
	ScreenBatch(ctx context.Context, sessionID string, req BatchRequest) (*BatchResult, error)

	History(ctx context.Context, sessionID string) (session.Cache, error)
	Find(ctx context.Context, sessionID string, id uuid.UUID) (*assessment.Product, error)

	AttachEvidence(
		ctx context.Context,
		sessionID string,
		id uuid.UUID,
		ingredient string,
		file evidence.File,
	) (*EvidenceResult, error)

	RemoveEvidence(
		ctx context.Context,
		sessionID string,
		id uuid.UUID,
		ingredient string,
		evidenceID uuid.UUID,
	) (*EvidenceResult, error)

	Submit(
		ctx context.Context,
		sessionID string,
		id uuid.UUID,
		cmd pipeline.SubmitCommand,
	) (*pipeline.Entry, error)

	EndSession(ctx context.Context, sessionID string) error
}
