package intent

import (
	"fmt"

	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
)

// Instructions are the gateway-facing payment instructions returned to the
// payer. They are a deterministic function of reference and channel so the
// response can be rebuilt from a reference lookup if the client dropped it.
type Instructions struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url,omitempty"`
	USSDCode    string `json:"ussd_code,omitempty"`
	Text        string `json:"instructions"`
}

// BuildInstructions derives placeholder instructions for a reference and
// channel. When the gateway initiation call succeeds its redirect URL takes
// precedence; these remain the deterministic fallback.
func BuildInstructions(reference, channel, gatewayBaseURL, ussdShortCode string) Instructions {
	ins := Instructions{Reference: reference}

	switch channel {
	case intentDatamodel.ChannelUSSD:
		ins.USSDCode = fmt.Sprintf("%s*%s#", ussdShortCode, reference)
		ins.Text = fmt.Sprintf("Dial %s and confirm with your mobile money PIN", ins.USSDCode)
	default:
		ins.RedirectURL = fmt.Sprintf("%s/pay/%s", gatewayBaseURL, reference)
		ins.Text = fmt.Sprintf("Complete the payment at %s", ins.RedirectURL)
	}

	return ins
}
