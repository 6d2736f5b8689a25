package intent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/akwaba/rentpay/internal"
	gatewayDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/gateway"
	intentDatamodel "github.com/akwaba/rentpay/internal/core/datamodel/intent"
	"gorm.io/gorm"
)

// referenceAttempts bounds the retry loop when the generator and the unique
// constraint disagree.
const referenceAttempts = 3

// RepositoryAPI is the intent store. Implementations must write the intent
// and its payment projection in one transaction.
type RepositoryAPI interface {
	CreateWithProjection(ctx context.Context, p *intentDatamodel.PaymentIntent) error
	GetByReference(ctx context.Context, reference string) (*intentDatamodel.PaymentIntent, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*intentDatamodel.PaymentIntent, error)
	UpdateRedirectURL(ctx context.Context, reference, redirectURL string) error
	MergeMetadata(ctx context.Context, reference string, patch map[string]interface{}) error
}

// GatewayAPI is the outbound initiation call to the mobile-money gateway.
type GatewayAPI interface {
	Initiate(ctx context.Context, req *gatewayDatamodel.InitiationRequest) (*gatewayDatamodel.InitiationResponse, error)
}

type ServiceAPI interface {
	CreateIntent(ctx context.Context, actor *internal.User, req *CreateIntentRequest) (*CreateIntentResponse, error)
	GetIntent(ctx context.Context, actor *internal.User, reference string) (*IntentView, error)
	ListIntents(ctx context.Context, actor *internal.User, limit, offset int) ([]IntentView, error)
}

type Service struct {
	repo           RepositoryAPI
	refgen         ReferenceGenerator
	gateway        GatewayAPI
	logger         *slog.Logger
	gatewayBaseURL string
	callbackURL    string
	returnURL      string
	ussdShortCode  string
	gatewayTimeout time.Duration
}

type ServiceConfig struct {
	GatewayBaseURL string
	CallbackURL    string
	ReturnURL      string
	USSDShortCode  string
	GatewayTimeout time.Duration
}

func NewService(repo RepositoryAPI, refgen ReferenceGenerator, gw GatewayAPI, cfg ServiceConfig, logger *slog.Logger) *Service {
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		repo:           repo,
		refgen:         refgen,
		gateway:        gw,
		logger:         logger,
		gatewayBaseURL: cfg.GatewayBaseURL,
		callbackURL:    cfg.CallbackURL,
		returnURL:      cfg.ReturnURL,
		ussdShortCode:  cfg.USSDShortCode,
		gatewayTimeout: timeout,
	}
}

// CreateIntent validates the request, persists the intent with a fresh
// reference and hands the payer off to the gateway. The local insert commits
// before the gateway call so a gateway outage never loses the intent row.
func (s *Service) CreateIntent(ctx context.Context, actor *internal.User, req *CreateIntentRequest) (*CreateIntentResponse, error) {
	if actor == nil {
		return nil, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken)
	}

	if err := req.Validate(); err != nil {
		s.logger.Error("create intent validation failed", "error", err, "user_id", actor.ID)
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"channel":    req.Channel,
		"created_by": actor.ID,
	})

	var row *intentDatamodel.PaymentIntent
	for attempt := 1; attempt <= referenceAttempts; attempt++ {
		reference, err := s.refgen.NextReference(ctx)
		if err != nil {
			s.logger.Error("reference generation failed", "error", err, "attempt", attempt)
			return nil, internal.NewInternalError("failed to generate payment reference", err)
		}

		candidate := &intentDatamodel.PaymentIntent{
			Reference:  reference,
			UserID:     actor.ID,
			ContractID: req.ContractID,
			Purpose:    req.Purpose,
			Amount:     req.Amount,
			Channel:    req.Channel,
			Status:     intentDatamodel.StatusCreated,
			Metadata:   metadata,
		}

		err = s.repo.CreateWithProjection(ctx, candidate)
		if err == nil {
			row = candidate
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.Warn("reference collision, retrying with a fresh reference",
				"reference", reference, "attempt", attempt)
			continue
		}
		s.logger.Error("failed to persist payment intent", "error", err, "user_id", actor.ID)
		return nil, internal.NewInternalError("failed to create payment intent", err)
	}

	if row == nil {
		return nil, internal.ErrReferenceCollision
	}

	s.logger.Info("payment intent created",
		"reference", row.Reference,
		"user_id", actor.ID,
		"purpose", row.Purpose,
		"amount", row.Amount,
		"channel", row.Channel)

	ins := BuildInstructions(row.Reference, row.Channel, s.gatewayBaseURL, s.ussdShortCode)

	if s.gateway != nil {
		gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()

		resp, err := s.gateway.Initiate(gwCtx, &gatewayDatamodel.InitiationRequest{
			Reference:   row.Reference,
			Amount:      row.Amount,
			Channel:     row.Channel,
			CallbackURL: s.callbackURL,
			ReturnURL:   s.returnURL,
		})
		if err != nil {
			s.logger.Error("gateway initiation failed, intent stays created",
				"error", err, "reference", row.Reference)
			return nil, internal.ErrGatewayUnavailable
		}

		if resp.RedirectURL != "" {
			ins.RedirectURL = resp.RedirectURL
		}
		if resp.USSDCode != "" {
			ins.USSDCode = resp.USSDCode
		}
	}

	if ins.RedirectURL != "" && ins.RedirectURL != row.RedirectURL {
		if err := s.repo.UpdateRedirectURL(ctx, row.Reference, ins.RedirectURL); err != nil {
			s.logger.Warn("failed to persist redirect url", "error", err, "reference", row.Reference)
		}
	}

	return &CreateIntentResponse{
		Reference:    row.Reference,
		Status:       row.Status,
		RedirectURL:  ins.RedirectURL,
		USSDCode:     ins.USSDCode,
		Instructions: ins.Text,
	}, nil
}

// GetIntent reconstructs the initiation response idempotently for a caller
// that dropped the original HTTP response.
func (s *Service) GetIntent(ctx context.Context, actor *internal.User, reference string) (*IntentView, error) {
	if actor == nil {
		return nil, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken)
	}

	row, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrIntentNotFound
		}
		return nil, internal.NewInternalError("failed to load payment intent", err)
	}

	// References are not secret but they are guessable; callers only ever see
	// their own intents.
	if row.UserID != actor.ID {
		return nil, internal.ErrIntentNotFound
	}

	ins := BuildInstructions(row.Reference, row.Channel, s.gatewayBaseURL, s.ussdShortCode)
	if row.RedirectURL != "" {
		ins.RedirectURL = row.RedirectURL
	}

	view := ToView(row, ins)
	return &view, nil
}

func (s *Service) ListIntents(ctx context.Context, actor *internal.User, limit, offset int) ([]IntentView, error) {
	if actor == nil {
		return nil, internal.NewUnauthorizedError("authentication required", internal.ErrCodeInvalidToken)
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.repo.ListByUser(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, internal.NewInternalError("failed to list payment intents", err)
	}

	views := make([]IntentView, 0, len(rows))
	for _, row := range rows {
		ins := BuildInstructions(row.Reference, row.Channel, s.gatewayBaseURL, s.ussdShortCode)
		if row.RedirectURL != "" {
			ins.RedirectURL = row.RedirectURL
		}
		views = append(views, ToView(row, ins))
	}

	return views, nil
}
