// Package generation turns one prompt into one billed, persisted image.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"imageforge-backend/internal/azureai"
	"imageforge-backend/internal/identity"
	"imageforge-backend/internal/metrics"
	"imageforge-backend/internal/models"
	"imageforge-backend/internal/retry"
)

// MaxPromptLength is the longest prompt the provider accepts, in characters.
const MaxPromptLength = 4000

type Verifier interface {
	Verify(ctx context.Context, token string) (*identity.User, error)
}

type Ledger interface {
	TryDebit(ctx context.Context, userID, attemptID uuid.UUID, amount int) (bool, error)
	Refund(ctx context.Context, attemptID uuid.UUID) (bool, error)
}

type JobClient interface {
	Configured() bool
	Submit(ctx context.Context, prompt string) (azureai.JobHandle, error)
	WaitForResult(ctx context.Context, handle azureai.JobHandle) (string, error)
}

type Store interface {
	CreateImage(ctx context.Context, userID uuid.UUID, prompt, imageURL string) (*models.GeneratedImage, error)
}

// Mirror copies a provider image to durable storage and returns its URL.
// RemoveImage deletes a copy that never made it into a record.
type Mirror interface {
	MirrorImage(ctx context.Context, userID, attemptID uuid.UUID, sourceURL string) (string, error)
	RemoveImage(ctx context.Context, imageURL string) error
}

// Limiter throttles generation per user.
type Limiter interface {
	Allow(key string) bool
}

type Publisher interface {
	PublishImageCreated(ctx context.Context, image *models.GeneratedImage) error
}

type Options struct {
	CreditsPerImage int
	RefundOnFailure bool
	RefundRetries   int
	RefundBackoffs  []time.Duration

	// Mirror, Publisher and Limiter are optional.
	Mirror    Mirror
	Publisher Publisher
	Limiter   Limiter
	Logger    zerolog.Logger
}

type Service struct {
	verifier  Verifier
	ledger    Ledger
	jobs      JobClient
	store     Store
	mirror    Mirror
	publisher Publisher
	limiter   Limiter

	creditsPerImage int
	refundOnFailure bool
	refundRetries   int
	refundBackoffs  []time.Duration
	logger          zerolog.Logger
}

type Request struct {
	Credential string
	Prompt     string
	RequestID  string
}

type Result struct {
	AttemptID uuid.UUID
	Image     *models.GeneratedImage
}

func NewService(verifier Verifier, ledger Ledger, jobs JobClient, store Store, opts Options) *Service {
	if opts.CreditsPerImage < 1 {
		opts.CreditsPerImage = 1
	}
	if opts.RefundRetries < 1 {
		opts.RefundRetries = 3
	}
	if opts.RefundBackoffs == nil {
		opts.RefundBackoffs = retry.DefaultBackoffs
	}

	return &Service{
		verifier:        verifier,
		ledger:          ledger,
		jobs:            jobs,
		store:           store,
		mirror:          opts.Mirror,
		publisher:       opts.Publisher,
		limiter:         opts.Limiter,
		creditsPerImage: opts.CreditsPerImage,
		refundOnFailure: opts.RefundOnFailure,
		refundRetries:   opts.RefundRetries,
		refundBackoffs:  opts.RefundBackoffs,
		logger:          opts.Logger.With().Str("component", "generation").Logger(),
	}
}

// Generate authenticates the caller, debits credits, drives the provider job
// to a terminal state and records the image. Every failure is returned as
// *Error. Once the debit succeeds the work is no longer bound to ctx
// cancellation; a debited attempt always reaches a terminal outcome, and
// failures after the debit are refunded when RefundOnFailure is set.
func (s *Service) Generate(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(AsError(err).Code)
		}
		metrics.ObserveGeneration(outcome, time.Since(start))
	}()

	log := s.logger.With().Str("request_id", req.RequestID).Logger()

	if req.Credential == "" {
		return nil, NewError(CodeUnauthorized, identity.ErrUnauthorized)
	}
	user, err := s.verifier.Verify(ctx, req.Credential)
	if err != nil {
		log.Debug().Err(err).Msg("Credential rejected")
		return nil, NewError(CodeUnauthorized, err)
	}
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return nil, NewError(CodeUnauthorized, fmt.Errorf("user id %q is not a uuid: %w", user.ID, err))
	}
	log = log.With().Str("user_id", userID.String()).Logger()

	if s.limiter != nil && !s.limiter.Allow(userID.String()) {
		log.Warn().Msg("Generation rate limit exceeded")
		return nil, NewError(CodeRateLimited, nil)
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, NewError(CodeInvalidRequest, errors.New("prompt is empty"))
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		genErr := NewError(CodeInvalidRequest, errors.New("prompt too long"))
		genErr.Message = fmt.Sprintf("Prompt must be at most %d characters.", MaxPromptLength)
		return nil, genErr
	}

	if !s.jobs.Configured() {
		log.Error().Msg("Image provider is not configured")
		return nil, NewError(CodeProviderMisconfigured, azureai.ErrMisconfigured)
	}

	attemptID := uuid.New()
	log = log.With().Str("attempt_id", attemptID.String()).Logger()

	debited, err := s.ledger.TryDebit(ctx, userID, attemptID, s.creditsPerImage)
	if err != nil {
		log.Error().Err(err).Msg("Credit debit failed")
		return nil, NewError(CodeInternalError, err)
	}
	if !debited {
		log.Info().Msg("Insufficient credits")
		return nil, NewError(CodeInsufficientCredits, nil)
	}
	log.Info().Int("amount", s.creditsPerImage).Msg("Credits debited")

	// The caller may disconnect from here on; the attempt still finishes.
	ctx = context.WithoutCancel(ctx)

	image, err := s.run(ctx, log, userID, attemptID, prompt)
	if err != nil {
		genErr := AsError(err)
		if !s.compensate(ctx, log, attemptID) {
			genErr.Retryable = false
			genErr.Message += " The credit for this attempt was not refunded."
		}
		return nil, genErr
	}

	return &Result{AttemptID: attemptID, Image: image}, nil
}

func (s *Service) run(ctx context.Context, log zerolog.Logger, userID, attemptID uuid.UUID, prompt string) (*models.GeneratedImage, error) {
	handle, err := s.jobs.Submit(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("Job submission failed")
		return nil, NewError(providerCode(err), err)
	}
	log.Info().Str("operation_location", handle.OperationLocation).Msg("Job submitted")

	imageURL, err := s.jobs.WaitForResult(ctx, handle)
	if err != nil {
		code := providerCode(err)
		if code == CodeGenerationRejected {
			log.Warn().Err(err).Msg("Job rejected by provider")
		} else {
			log.Error().Err(err).Msg("Job did not complete")
		}
		return nil, NewError(code, err)
	}
	log.Info().Msg("Job succeeded")

	mirrored := false
	if s.mirror != nil {
		mirroredURL, err := s.mirror.MirrorImage(ctx, userID, attemptID, imageURL)
		if err != nil {
			log.Warn().Err(err).Msg("Image mirroring failed, keeping provider url")
		} else {
			imageURL = mirroredURL
			mirrored = true
		}
	}

	image, err := s.store.CreateImage(ctx, userID, prompt, imageURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist image")
		if mirrored {
			if rmErr := s.mirror.RemoveImage(ctx, imageURL); rmErr != nil {
				log.Warn().Err(rmErr).Str("image_url", imageURL).Msg("Failed to remove orphaned mirror")
			}
		}
		return nil, NewError(CodePersistenceError, err)
	}
	log.Info().Str("image_id", image.ID.String()).Msg("Image persisted")

	if s.publisher != nil {
		if err := s.publisher.PublishImageCreated(ctx, image); err != nil {
			log.Warn().Err(err).Msg("Failed to publish image event")
		}
	}

	return image, nil
}

// compensate refunds the attempt's debit and reports whether the credit is
// back with the user. Refunds are keyed by attempt, so retrying is safe.
func (s *Service) compensate(ctx context.Context, log zerolog.Logger, attemptID uuid.UUID) bool {
	if !s.refundOnFailure {
		log.Warn().Msg("Refunds disabled, debit kept")
		return false
	}

	var refunded bool
	err := retry.WithBackoff(ctx, func(ctx context.Context) error {
		ok, err := s.ledger.Refund(ctx, attemptID)
		if err != nil {
			return err
		}
		refunded = ok
		return nil
	}, s.refundRetries, s.refundBackoffs)

	switch {
	case err != nil:
		metrics.ObserveRefund("error")
		log.Error().Err(err).Msg("Refund failed, credit remains debited")
		return false
	case refunded:
		metrics.ObserveRefund("refunded")
		log.Info().Msg("Credits refunded")
	default:
		metrics.ObserveRefund("noop")
		log.Warn().Msg("Refund already applied")
	}
	return true
}

func providerCode(err error) Code {
	switch {
	case errors.Is(err, azureai.ErrMisconfigured):
		return CodeProviderMisconfigured
	case errors.Is(err, azureai.ErrRejected):
		return CodeGenerationRejected
	case errors.Is(err, azureai.ErrTimedOut):
		return CodeTimedOut
	default:
		return CodeProviderUnavailable
	}
}
