package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NodeBaseSize is the visual size of a node with no incident links.
const NodeBaseSize = 20

// NodeSizePerLink is added to a node's size for every incident link.
const NodeSizePerLink = 2

// Classification is the categorical activity class of an account
type Classification string

const (
	ClassActiveVoucher    Classification = "active_voucher"
	ClassPopularRecipient Classification = "popular_recipient"
	ClassBigVoucher       Classification = "big_voucher"
	ClassBigRecipient     Classification = "big_recipient"
	ClassDefault          Classification = "default"
)

// Thresholds used by Classify
const (
	activeCountThreshold = 10
	bigAmountThreshold   = 100000000 // minor units
)

var classColors = map[Classification]string{
	ClassActiveVoucher:    "#4CAF50",
	ClassPopularRecipient: "#2196F3",
	ClassBigVoucher:       "#FF9800",
	ClassBigRecipient:     "#9C27B0",
	ClassDefault:          "#607D8B",
}

// Color returns the display color for the classification
func (c Classification) Color() string {
	if color, ok := classColors[c]; ok {
		return color
	}
	return classColors[ClassDefault]
}

// VouchNode is one account in the vouch graph
type VouchNode struct {
	ID              string  `json:"id" yaml:"id"`
	Address         string  `json:"address" yaml:"address"`
	Name            string  `json:"name" yaml:"name"`
	Size            int     `json:"size" yaml:"size"`
	Color           string  `json:"color" yaml:"color"`
	ProfileImageURL *string `json:"profileImageUrl" yaml:"profile_image_url,omitempty"`
	AmountVouched   string  `json:"amountVouched" yaml:"amount_vouched"`
	AmountReceived  string  `json:"amountReceived" yaml:"amount_received"`
	VouchesGiven    int     `json:"vouchesGiven" yaml:"vouches_given"`
	VouchesReceived int     `json:"vouchesReceived" yaml:"vouches_received"`
}

// NewVouchNode creates a node for an address with default statistics.
// The address is lower-cased so node identity is case-insensitive.
func NewVouchNode(address string) VouchNode {
	id := NormalizeAddress(address)
	return VouchNode{
		ID:             id,
		Address:        id,
		Name:           FormatAddress(id),
		Size:           NodeBaseSize,
		Color:          ClassDefault.Color(),
		AmountVouched:  "0",
		AmountReceived: "0",
	}
}

// ApplyProfile sets the display name and image from a resolved profile
func (n *VouchNode) ApplyProfile(p *Profile) {
	if p == nil {
		return
	}
	if name := p.Handle(); name != "" {
		n.Name = name
	}
	if p.PfpURL != "" {
		url := p.PfpURL
		n.ProfileImageURL = &url
	}
}

// ApplyStats copies account statistics onto the node and recomputes its color.
// A nil account leaves zero statistics and the default color.
func (n *VouchNode) ApplyStats(a *AccountDetails) {
	n.Color = Classify(a).Color()
	if a == nil {
		return
	}
	n.AmountVouched = defaultAmount(a.AmountVouched)
	n.AmountReceived = defaultAmount(a.AmountReceived)
	n.VouchesGiven = a.VouchesGivenCount
	n.VouchesReceived = a.VouchesReceivedCount
}

// Classify returns the activity class of an account. Rules are evaluated in
// order and the first match wins.
func Classify(a *AccountDetails) Classification {
	if a == nil {
		return ClassDefault
	}
	big := decimal.NewFromInt(bigAmountThreshold)
	switch {
	case a.VouchesGivenCount > activeCountThreshold:
		return ClassActiveVoucher
	case a.VouchesReceivedCount > activeCountThreshold:
		return ClassPopularRecipient
	case parseMinorUnits(a.AmountVouched).GreaterThan(big):
		return ClassBigVoucher
	case parseMinorUnits(a.AmountReceived).GreaterThan(big):
		return ClassBigRecipient
	}
	return ClassDefault
}

// NormalizeAddress returns the canonical form of an account address
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// FormatAddress shortens an address to "first6...last4"
func FormatAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func defaultAmount(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
