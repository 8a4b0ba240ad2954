package model

// DealFilter holds criteria for querying deals.
type DealFilter struct {
	CompanyID int64    `json:"company_id"`
	Search    string   `json:"search,omitempty"` // substring match on name/contact/email/industry
	Stage     []string `json:"stage,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
}
