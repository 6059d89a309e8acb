package handler

import (
	"context"

	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/errors"
)

/*
OnGetAuthenticatedExtendedCard serves the richer card reserved for
authenticated callers.  A registered modifier wins over a static extended
card; advertising the capability without configuring either is an error.
*/
func (h *RequestHandler) OnGetAuthenticatedExtendedCard(ctx context.Context, call *a2a.ServerCallContext) (*a2a.AgentCard, *errors.RpcError) {
	if !h.card.SupportsAuthenticatedExtendedCard {
		return nil, errors.ErrExtendedCardNotConfigured
	}

	if h.cardModifier != nil {
		card := h.cardModifier(h.card, call)
		return &card, nil
	}

	if h.extendedCard != nil {
		card := *h.extendedCard
		return &card, nil
	}

	return nil, errors.ErrExtendedCardNotConfigured
}
