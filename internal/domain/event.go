package domain

// EventTypeVouched is the club event type that produces graph links
const EventTypeVouched = "VOUCHED"

// AccountRef references an account inside a club event
type AccountRef struct {
	ID string `json:"id"`
}

// ClubEvent is one record of the upstream event feed
type ClubEvent struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Amount    string      `json:"amount"`
	Account   AccountRef  `json:"account"`
	Other     *AccountRef `json:"other"`
}

// IsVouch reports whether the event is a vouch with a known counterparty
func (e ClubEvent) IsVouch() bool {
	return e.Type == EventTypeVouched && e.Other != nil && e.Other.ID != "" && e.Account.ID != ""
}

// AccountDetails holds cumulative vouch statistics for one account
type AccountDetails struct {
	ID                   string `json:"id"`
	AmountVouched        string `json:"amountVouched"`
	AmountReceived       string `json:"amountReceived"`
	VouchesGivenCount    int    `json:"vouchesGivenCount"`
	VouchesReceivedCount int    `json:"vouchesReceivedCount"`
}

// Profile is the display identity resolved for an address
type Profile struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PfpURL      string `json:"pfp_url"`
}

// Handle returns the preferred display name of the profile
func (p Profile) Handle() string {
	if p.Username != "" {
		return p.Username
	}
	return p.DisplayName
}
