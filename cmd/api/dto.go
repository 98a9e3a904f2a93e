package main

import (
	"time"

	"github.com/shopspring/decimal"

	"agencyflow/analytics"
	"agencyflow/policy"
	"agencyflow/takeaction"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error string `json:"error"`
}

type actionStatusRequest struct {
	ActionStatus string `json:"actionStatus"`
}

type noteRequest struct {
	Status       string `json:"status"`
	Requirements string `json:"requirements"`
	Sender       string `json:"sender"`
}

type policyResponse struct {
	ID                  string          `json:"id"`
	PolicyNumber        string          `json:"policyNumber"`
	OwnerNPN            string          `json:"ownerNpn"`
	AgentName           string          `json:"agentName"`
	ClientName          string          `json:"clientName"`
	Carrier             string          `json:"carrier"`
	Product             string          `json:"product"`
	ReceivedDate        string          `json:"receivedDate"`
	Status              string          `json:"status"`
	ActionStatus        string          `json:"actionStatus"`
	Bob                 string          `json:"bob"`
	AnnualizedPremium   decimal.Decimal `json:"annualizedPremium"`
	ActionCompletedDate *string         `json:"actionCompletedDate"`
	FirstTakeActionDate *string         `json:"firstTakeActionDate"`
	UpdatedAt           string          `json:"updatedAt"`
}

// policyRowResponse is a listed policy. Issue fields are null when the policy
// has no take-action record.
type policyRowResponse struct {
	policyResponse
	IssueType        *string `json:"issueType"`
	IssueDescription *string `json:"issueDescription"`
}

type policyListResponse struct {
	Policies    []policyRowResponse `json:"policies"`
	Total       int                 `json:"total"`
	Page        int                 `json:"page"`
	Limit       int                 `json:"limit"`
	TotalPages  int                 `json:"totalPages"`
	ProcessType string              `json:"processType"`
}

type recordResponse struct {
	ID           string `json:"id"`
	PolicyNumber string `json:"policyNumber"`
	Status       string `json:"status"`
	Requirements string `json:"requirements"`
	Sender       string `json:"sender"`
	Bob          string `json:"bob"`
	CreatedAt    string `json:"createdAt"`
}

type historyResponse struct {
	PolicyNumber string           `json:"policyNumber"`
	TakeActions  []recordResponse `json:"takeActions"`
}

type downlineResponse struct {
	NPN      string   `json:"npn"`
	Downline []string `json:"downline"`
	Total    int      `json:"total"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// toPolicyResponse renders the received date as a calendar day in loc.
func toPolicyResponse(p policy.Policy, loc *time.Location) policyResponse {
	if loc == nil {
		loc = time.UTC
	}
	return policyResponse{
		ID:                  p.ID,
		PolicyNumber:        p.PolicyNumber,
		OwnerNPN:            p.OwnerNPN,
		AgentName:           p.AgentName,
		ClientName:          p.ClientName,
		Carrier:             p.Carrier,
		Product:             p.Product,
		ReceivedDate:        p.ReceivedDate.In(loc).Format(dateLayout),
		Status:              string(p.Status),
		ActionStatus:        string(p.ActionStatus),
		Bob:                 string(p.Bob),
		AnnualizedPremium:   p.AnnualizedPremium,
		ActionCompletedDate: formatTime(p.ActionCompletedDate),
		FirstTakeActionDate: formatTime(p.FirstTakeActionDate),
		UpdatedAt:           p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toPolicyListResponse(l analytics.PolicyList, loc *time.Location) policyListResponse {
	out := policyListResponse{
		Policies:    make([]policyRowResponse, 0, len(l.Policies)),
		Total:       l.Total,
		Page:        l.Page,
		Limit:       l.Limit,
		TotalPages:  l.TotalPages,
		ProcessType: string(l.ProcessType),
	}
	for _, row := range l.Policies {
		out.Policies = append(out.Policies, policyRowResponse{
			policyResponse:   toPolicyResponse(row.Policy, loc),
			IssueType:        row.IssueType,
			IssueDescription: row.IssueDescription,
		})
	}
	return out
}

func toRecordResponse(r takeaction.Record) recordResponse {
	return recordResponse{
		ID:           r.ID,
		PolicyNumber: r.PolicyNumber,
		Status:       r.Status,
		Requirements: r.Requirements,
		Sender:       r.Sender,
		Bob:          string(r.Bob),
		CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
	}
}
