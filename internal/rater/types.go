package rater

import "time"

// Account mirrors the slice of the Rater's account object the gateway
// reads: monetary balances and the disabled flag.
type Account struct {
	ID         string               `json:"ID"`
	BalanceMap map[string][]Balance `json:"BalanceMap"`
	Disabled   bool                 `json:"Disabled"`
}

type Balance struct {
	ID    string  `json:"ID"`
	Value float64 `json:"Value"`
}

// MonetaryBalance returns the value of the named monetary balance, and
// whether it exists on the account.
func (a *Account) MonetaryBalance(kind BalanceKind) (float64, bool) {
	for _, b := range a.BalanceMap["*monetary"] {
		if b.ID == string(kind) {
			return b.Value, true
		}
	}
	return 0, false
}

// CDR is one rated call detail record.
type CDR struct {
	CGRID       string            `json:"CGRID"`
	OriginID    string            `json:"OriginID"`
	Subject     string            `json:"Subject"`
	Destination string            `json:"Destination"`
	SetupTime   time.Time         `json:"SetupTime"`
	Usage       int64             `json:"Usage"` // nanoseconds
	Cost        float64           `json:"Cost"`
	ExtraFields map[string]string `json:"ExtraFields"`
}

// BalanceType reports which balance the CDR was charged against.
func (c CDR) BalanceType() string {
	return c.ExtraFields["BalanceType"]
}

// CDRFilter narrows CDR count/list queries.
type CDRFilter struct {
	Subjects            []string          `json:"Subjects,omitempty"`
	DestinationPrefixes []string          `json:"DestinationPrefixes,omitempty"`
	SetupTimeStart      *time.Time        `json:"SetupTimeStart,omitempty"`
	SetupTimeEnd        *time.Time        `json:"SetupTimeEnd,omitempty"`
	ExtraFields         map[string]string `json:"ExtraFields,omitempty"`
}

// Session is one active call on the Rater.
type Session struct {
	CGRID    string  `json:"CGRID"`
	OriginID string  `json:"OriginID"`
	Account  string  `json:"Account"`
	Usage    int64   `json:"Usage"` // nanoseconds
	Cost     float64 `json:"DebitTotal"`
}
