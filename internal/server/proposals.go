package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"partnerline/internal/domain"
	"partnerline/internal/engine"
)

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusServiceUnavailable,
}

type proposalPath struct {
	ID string `path:"id"`
}

type proposalBody struct {
	ETag string           `header:"ETag"`
	Body ProposalResponse `json:"body"`
}

func proposalOutput(p domain.Proposal, actorID string) *proposalBody {
	role, ok := p.RoleOf(actorID)
	if !ok {
		role = domain.RoleSystem
	}
	return &proposalBody{ETag: versionTag(p.Version), Body: proposalResponse(p, role)}
}

func versionTag(v int64) string {
	return strconv.Quote(strconv.FormatInt(v, 10))
}

func registerProposals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:      "create-proposal",
		Method:           http.MethodPost,
		Path:             "/proposals",
		Summary:          "Submit a proposal",
		DefaultStatus:    http.StatusCreated,
		SkipValidateBody: true,
		Errors:           mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProposalRequest `json:"body"`
	}) (*proposalBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Create(ctx, engine.CreateOptions{
			ID:          input.Body.ID,
			ActorID:     principal.ActorID,
			RecipientID: input.Body.RecipientID,
			Title:       input.Body.Title,
			Summary:     input.Body.Summary,
			Content:     input.Body.Content,
			Message:     input.Body.Message,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return proposalOutput(p, principal.ActorID), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-proposals",
		Method:      http.MethodGet,
		Path:        "/proposals",
		Summary:     "List the caller's proposals",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Tab            string `query:"tab" enum:"all,sent,received,awaiting,negotiating,accepted,declined" default:"all"`
		Q              string `query:"q"`
		IncludeBlocked bool   `query:"include_blocked"`
		Limit          int    `query:"limit"`
	}) (*struct {
		Body ProposalListResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tab, err := domain.ParseTab(input.Tab)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.List(ctx, engine.ListOptions{
			UserID:         principal.ActorID,
			Tab:            tab,
			Search:         input.Q,
			IncludeBlocked: input.IncludeBlocked,
			Limit:          input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProposalListResponse `json:"body"`
		}{Body: ProposalListResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "proposal-counts",
		Method:      http.MethodGet,
		Path:        "/proposals/counts",
		Summary:     "Per-tab totals and unread count",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CountsResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := e.Counts(ctx, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CountsResponse `json:"body"`
		}{Body: countsResponse(counts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-proposal",
		Method:      http.MethodGet,
		Path:        "/proposals/{id}",
		Summary:     "Proposal detail with thread",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *proposalPath) (*proposalBody, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Get(ctx, principal.ActorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return proposalOutput(p, principal.ActorID), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-revisions",
		Method:      http.MethodGet,
		Path:        "/proposals/{id}/revisions",
		Summary:     "Content history",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *proposalPath) (*struct {
		Body RevisionsResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		revs, err := e.ListRevisions(ctx, principal.ActorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RevisionsResponse `json:"body"`
		}{Body: RevisionsResponse{Items: nonNilSlice(revs)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:      "preview-content",
		Method:           http.MethodPost,
		Path:             "/content/preview",
		Summary:          "Compute end date, KPI validity and outline summary for a draft",
		SkipValidateBody: true,
		Errors:           []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body PreviewRequest `json:"body"`
	}) (*struct {
		Body domain.ContentPreview `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.ContentPreview `json:"body"`
		}{Body: e.Preview(input.Body.Content, input.Body.ProposerName)}, nil
	})
}

func registerProposalActions(api huma.API, e engine.Engine) {
	for _, action := range []domain.Action{domain.ActionAccept, domain.ActionDecline, domain.ActionCancel} {
		registerAct(api, e, action)
	}

	huma.Register(api, huma.Operation{
		OperationID:      "negotiate-proposal",
		Method:           http.MethodPost,
		Path:             "/proposals/{id}/negotiate",
		Summary:          "Submit revised terms",
		SkipValidateBody: true,
		Errors:           mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID      string           `path:"id"`
		IfMatch string           `header:"If-Match"`
		Body    NegotiateRequest `json:"body"`
	}) (*proposalBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		expected, perr := parseIfMatch(input.IfMatch)
		if perr != nil {
			return nil, perr
		}
		p, err := e.Negotiate(ctx, engine.NegotiateOptions{
			ProposalID:      input.ID,
			ActorID:         principal.ActorID,
			ActorName:       principal.ActorName,
			Content:         input.Body.Content,
			Summary:         input.Body.Summary,
			ExpectedVersion: expected,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return proposalOutput(p, principal.ActorID), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/proposals/{id}/messages",
		Summary:     "Post a chat message",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID      string         `path:"id"`
		IfMatch string         `header:"If-Match"`
		Body    MessageRequest `json:"body"`
	}) (*proposalBody, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		expected, perr := parseIfMatch(input.IfMatch)
		if perr != nil {
			return nil, perr
		}
		p, err := e.SendMessage(ctx, engine.MessageOptions{
			ProposalID:      input.ID,
			ActorID:         principal.ActorID,
			ActorName:       principal.ActorName,
			Content:         input.Body.Content,
			ExpectedVersion: expected,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return proposalOutput(p, principal.ActorID), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "expire-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{id}/expire",
		Summary:     "Expire an open proposal (moderator)",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *proposalPath) (*proposalBody, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Expire(ctx, principal.ActorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return proposalOutput(p, principal.ActorID), nil
	})
}

func registerAct(api huma.API, e engine.Engine, action domain.Action) {
	huma.Register(api, huma.Operation{
		OperationID: string(action) + "-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{id}/" + string(action),
		Summary:     "Apply " + string(action),
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID      string         `path:"id"`
		IfMatch string         `header:"If-Match"`
		Body    *ActionRequest `json:"body,omitempty" required:"false"`
	}) (*proposalBody, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		expected, perr := parseIfMatch(input.IfMatch)
		if perr != nil {
			return nil, perr
		}
		opts := engine.ActOptions{
			ProposalID:      input.ID,
			ActorID:         principal.ActorID,
			ActorName:       principal.ActorName,
			Action:          action,
			ExpectedVersion: expected,
		}
		if input.Body != nil {
			opts.Note = input.Body.Note
		}
		p, err := e.Act(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return proposalOutput(p, principal.ActorID), nil
	})
}
