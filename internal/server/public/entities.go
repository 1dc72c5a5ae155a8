package public

import "inference-gateway/admission"

type ChatRequest struct {
	RequesterAddress string `json:"requester_address"`
	Model            string `json:"model"`
	Query            string `json:"query"`
}

type ChatResponse struct {
	Response       string `json:"response"`
	Model          string `json:"model"`
	Cost           string `json:"cost"`
	ExternalId     string `json:"external_id,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Valid          bool   `json:"valid"`
	// Warning is set when the response was produced but the final settlement
	// against the requester's account could not be completed.
	Warning string `json:"warning,omitempty"`
}

type BalanceDto struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type EntryDto struct {
	Id                int64  `json:"id"`
	Kind              string `json:"kind"`
	Amount            string `json:"amount"`
	Description       string `json:"description"`
	ExternalReference string `json:"external_reference,omitempty"`
	CreatedAt         int64  `json:"created_at"`
}

type HistoryDto struct {
	Address string     `json:"address"`
	Entries []EntryDto `json:"entries"`
}

type FundRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

type WithdrawRequest struct {
	Amount string `json:"amount"`
}

type StatusDto struct {
	Status           string                `json:"status"`
	Queue            admission.QueueStatus `json:"queue"`
	PoolAddress      string                `json:"pool_address"`
	RefillInProgress bool                  `json:"refill_in_progress"`
}
