package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"partnerline/internal/domain"
	"partnerline/internal/engine"
	"partnerline/internal/repo"
)

func registerModeration(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "report-proposal",
		Method:        http.MethodPost,
		Path:          "/proposals/{id}/reports",
		Summary:       "Report a proposal to moderators",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ReportRequest `json:"body"`
	}) (*struct {
		Body domain.Report `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.Report(ctx, engine.ReportOptions{
			ProposalID: input.ID,
			ActorID:    principal.ActorID,
			ActorName:  principal.ActorName,
			Reason:     input.Body.Reason,
			Details:    input.Body.Details,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Report `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/proposals/{id}/reports",
		Summary:     "Reports on a proposal",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *proposalPath) (*struct {
		Body ReportsResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reps, err := e.ListReports(ctx, principal.ActorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportsResponse `json:"body"`
		}{Body: ReportsResponse{Items: nonNilSlice(reps)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "block-counterparty",
		Method:      http.MethodPost,
		Path:        "/proposals/{id}/block",
		Summary:     "Block the other party of a proposal",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *proposalPath) (*struct {
		Body domain.Block `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.Block(ctx, principal.ActorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Block `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-blocks",
		Method:      http.MethodGet,
		Path:        "/blocks",
		Summary:     "Businesses the caller blocked",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BlocksResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		blocks, err := e.ListBlocks(ctx, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BlocksResponse `json:"body"`
		}{Body: BlocksResponse{Items: nonNilSlice(blocks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unblock-business",
		Method:        http.MethodDelete,
		Path:          "/blocks/{business_id}",
		Summary:       "Remove a block",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
	}) (*struct{}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Unblock(ctx, principal.ActorID, input.BusinessID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDirectory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-businesses",
		Method:      http.MethodGet,
		Path:        "/businesses",
		Summary:     "Partner discovery",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Industry string `query:"industry"`
		Location string `query:"location"`
		Q        string `query:"q"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body BusinessesResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListBusinesses(ctx, principal.ActorID, repo.BusinessFilter{
			Industry: input.Industry,
			Location: input.Location,
			Query:    input.Q,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BusinessesResponse `json:"body"`
		}{Body: BusinessesResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-business",
		Method:      http.MethodGet,
		Path:        "/businesses/{id}",
		Summary:     "Directory entry",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Business `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		b, err := e.GetBusiness(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Business `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-business",
		Method:      http.MethodPut,
		Path:        "/businesses/{id}",
		Summary:     "Create or update a directory entry",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpsertBusinessRequest `json:"body"`
	}) (*struct {
		Body domain.Business `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.UpsertBusiness(ctx, principal.ActorID, domain.Business{
			ID:       input.ID,
			Name:     input.Body.Name,
			Industry: input.Body.Industry,
			Location: input.Body.Location,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Business `json:"body"`
		}{Body: b}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "expire-due",
		Method:      http.MethodPost,
		Path:        "/admin/expire",
		Summary:     "Expire idle open proposals (moderator)",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ExpireResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ExpireDue(ctx, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ExpireResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Action log (moderator)",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"proposal,business,actor,api_key,config"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		f := repo.EventFilter{Type: input.Type, EntityKind: input.EntityKind, EntityID: input.EntityID, Limit: limit + 1}
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			f.Before = parsed
		}
		items, err := e.ListEvents(ctx, principal.ActorID, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
