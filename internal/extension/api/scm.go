package api

import (
	"context"
	"strings"

	"github.com/dshills/exthost/internal/extension/security"
)

type scmAPI struct{ h *Host }

func (s scmAPI) CreateSourceControl(ctx context.Context, id, label string, root URI) (*SourceControlHandle, error) {
	owner, err := s.h.acquire(ctx, security.GroupSCM, "scm.createSourceControl")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, invalid("empty source control id")
	}
	if label == "" {
		label = id
	}

	sc := NewSourceControl(owner, id, label, root, s.h)
	if err := s.h.track(owner, sc, sc.close); err != nil {
		return nil, err
	}
	s.h.Notify(TopicSCMChanged, owner, SCMEvent{ID: id, Label: label})
	return sc, nil
}

var _ SourceControl = scmAPI{}
