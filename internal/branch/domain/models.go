package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/trunkgate/pkg/money"
)

// CallClass is the destination class CDRs are binned by.
type CallClass string

const (
	ClassLocal         CallClass = "local"
	ClassLongDistance  CallClass = "long_distance"
	ClassCorporate     CallClass = "corporate"
	ClassMobile        CallClass = "mobile"
	ClassInternational CallClass = "international"
)

// Classes lists every bin in query order. Corporate is queried before
// local so a prefix matching both patterns counts as corporate.
var Classes = []CallClass{
	ClassCorporate,
	ClassLocal,
	ClassLongDistance,
	ClassMobile,
	ClassInternational,
}

type Branch struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BranchCode string       `gorm:"uniqueIndex;not null" json:"branch_code"`
	Name       string       `json:"name"`
	// MinRate and MaxRate are per-minute rate bounds across the branch's
	// destinations; MaxRate doubles as the 100% threshold value.
	MinRate   money.Amount `json:"min_rate"`
	MaxRate   money.Amount `json:"max_rate"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`

	Prefixes []BranchPrefix `gorm:"foreignKey:BranchID" json:"prefixes,omitempty"`
}

// BranchPrefix assigns one dialing prefix to a classification class
// within a branch.
type BranchPrefix struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	BranchID snowflake.ID `gorm:"index;not null" json:"branch_id"`
	Prefix   string       `gorm:"not null" json:"prefix"`
	Class    CallClass    `gorm:"not null" json:"class"`
}

// DestinationCode is the global destination family.
type DestinationCode string

const (
	DestMobileNational        DestinationCode = "mobile_national"
	DestMobileInternational   DestinationCode = "mobile_international"
	DestLandlineNational      DestinationCode = "landline_national"
	DestLandlineInternational DestinationCode = "landline_international"
)

type Destination struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	Prefix      string          `gorm:"not null;index" json:"prefix"`
	Name        string          `gorm:"not null" json:"name"`
	Code        DestinationCode `gorm:"not null" json:"code"`
	CountryCode string          `json:"country_code"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

var (
	ErrNotFound      = errors.New("branch not found")
	ErrDuplicateCode = errors.New("branch code already exists")
	ErrInvalidCode   = errors.New("invalid destination code")
)

var OrderableFields = map[string]bool{
	"branch_code": true,
	"created_at":  true,
	"updated_at":  true,
}

var DestinationOrderableFields = map[string]bool{
	"prefix":     true,
	"name":       true,
	"code":       true,
	"created_at": true,
	"updated_at": true,
}
