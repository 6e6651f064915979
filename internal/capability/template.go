package capability

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentmesh/conductor/pkg/models"
)

// Template is a capability that fulfills any task by rendering a text
// deliverable of the type the request asks for. It gives unattended
// runs a working specialist for every lifecycle phase without an
// external backend behind it.
type Template struct {
	kind string
}

// NewTemplate builds a template capability of the given kind.
func NewTemplate(kind string) *Template {
	return &Template{kind: kind}
}

// Kind returns the capability type string.
func (t *Template) Kind() string { return t.kind }

// Execute renders a deliverable for the request. The deliverable type
// comes from the request's "deliverable" requirement, falling back to
// a generic report.
func (t *Template) Execute(ctx context.Context, req models.TaskRequestPayload) (models.TaskResultPayload, error) {
	if err := ctx.Err(); err != nil {
		return models.TaskResultPayload{}, err
	}
	typ := req.Requirements["deliverable"]
	if typ == "" {
		typ = "report"
	}
	content := fmt.Sprintf("# %s\n\ntask: %s\ncapability: %s\n\n%s\n", typ, req.TaskID, t.kind, req.Description)
	return models.TaskResultPayload{
		TaskID: req.TaskID,
		Status: models.ResultSuccess,
		Deliverables: []models.Deliverable{{
			ID:          uuid.New().String(),
			Type:        typ,
			Content:     content,
			ContentHash: models.HashContent(content),
		}},
		Summary: "rendered " + typ,
	}, nil
}
