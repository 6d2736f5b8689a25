package gateway

// InitiationRequest is the payload sent to the mobile-money gateway when a
// payment intent is handed off for collection.
type InitiationRequest struct {
	Reference   string `json:"reference"`
	Amount      int64  `json:"amount"`
	Channel     string `json:"channel"`
	CallbackURL string `json:"callback_url"`
	ReturnURL   string `json:"return_url"`
}

// InitiationResponse carries the gateway-facing instructions returned to the
// payer: a redirect URL for web/app flows, a USSD code for feature phones.
type InitiationResponse struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url,omitempty"`
	USSDCode    string `json:"ussd_code,omitempty"`
}

// CallbackPayload is the shape of the signed settlement notification the
// gateway delivers to the callback ingress.
type CallbackPayload struct {
	Reference string            `json:"reference"`
	Status    string            `json:"status"`
	Amount    int64             `json:"amount"`
	Signature string            `json:"signature"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
