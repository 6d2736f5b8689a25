package intent

import (
	"time"

	errors "github.com/akwaba/rentpay/internal"
	"github.com/akwaba/rentpay/internal/core/common/validation"
	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
)

// CreateIntentRequest is the payload for POST /payment-intents.
type CreateIntentRequest struct {
	ContractID *int64 `json:"contract_id,omitempty"`
	Purpose    string `json:"purpose"`
	Amount     int64  `json:"amount"`
	Channel    string `json:"channel"`
}

func (r *CreateIntentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("purpose", r.Purpose).Required().
		OneOf([]string{intentDatamodel.PurposeLeaseFee, intentDatamodel.PurposeReceipt, intentDatamodel.PurposeOther}, errors.ErrCodeInvalidPurpose)
	validator.Field("amount", r.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("channel", r.Channel).Required().
		OneOf([]string{intentDatamodel.ChannelWeb, intentDatamodel.ChannelApp, intentDatamodel.ChannelUSSD}, errors.ErrCodeInvalidChannel)

	if r.Purpose == intentDatamodel.PurposeLeaseFee {
		validator.Field("contract_id", r.ContractID).Required()
	}

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// CreateIntentResponse is returned to the caller after initiation.
type CreateIntentResponse struct {
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	USSDCode     string `json:"ussd_code,omitempty"`
	Instructions string `json:"instructions"`
}

// IntentView is the read model returned by reference lookups and listings.
type IntentView struct {
	Reference    string     `json:"reference"`
	Purpose      string     `json:"purpose"`
	Amount       int64      `json:"amount"`
	Channel      string     `json:"channel"`
	Status       string     `json:"status"`
	ContractID   *int64     `json:"contract_id,omitempty"`
	RedirectURL  string     `json:"redirect_url,omitempty"`
	USSDCode     string     `json:"ussd_code,omitempty"`
	Instructions string     `json:"instructions"`
	CreatedAt    time.Time  `json:"created_at"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

// ToView shapes an intent row plus its deterministic instructions.
func ToView(p *intentDatamodel.PaymentIntent, ins Instructions) IntentView {
	return IntentView{
		Reference:    p.Reference,
		Purpose:      p.Purpose,
		Amount:       p.Amount,
		Channel:      p.Channel,
		Status:       p.Status,
		ContractID:   p.ContractID,
		RedirectURL:  ins.RedirectURL,
		USSDCode:     ins.USSDCode,
		Instructions: ins.Text,
		CreatedAt:    p.CreatedAt,
		PaidAt:       p.PaidAt,
	}
}
