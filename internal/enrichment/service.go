// Package enrichment resolves contact channels one at a time or in bulk
// through the job queue.
package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/events"
	"github.com/altss/altss/internal/shared"
)

// MaxBulk caps the contacts accepted by one bulk request.
const MaxBulk = 100

var (
	// ErrInvalidRequest marks requests rejected before any upstream call.
	ErrInvalidRequest = errors.New("enrichment: invalid request")
	// ErrAlreadyQueued is returned when an identical bulk request was queued today.
	ErrAlreadyQueued = errors.New("enrichment: already queued")
)

type invalidError struct{ msg string }

func invalid(format string, args ...any) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

func (e *invalidError) Error() string       { return "enrichment: " + e.msg }
func (e *invalidError) SafeMessage() string { return e.msg }
func (e *invalidError) Unwrap() error       { return ErrInvalidRequest }

var workChannels = []string{backend.ChannelWorkEmail, backend.ChannelWorkPhone}

var personalChannels = []string{backend.ChannelPersonalEmail, backend.ChannelPersonalPhone}

// Upstream is the backend enrichment API.
type Upstream interface {
	Enrich(ctx context.Context, contactID string, channels []string) (backend.EnrichResult, error)
	PersonalContacts(ctx context.Context, contactID string) (backend.EnrichResult, error)
}

// BulkRequest is the payload of a bulk enrichment job.
type BulkRequest struct {
	UserID     string   `json:"user_id"`
	Token      string   `json:"token"`
	ContactIDs []string `json:"contact_ids"`
	Channels   []string `json:"channels"`
	Key        string   `json:"key"`
}

// BulkResult summarises a processed bulk request.
type BulkResult struct {
	Enriched int
	Failed   int
	Limit    *backend.LimitError
}

// Enqueuer submits bulk requests to the job queue.
type Enqueuer interface {
	EnqueueEnrichBulk(ctx context.Context, req BulkRequest) error
}

// Keys guards against submitting the same bulk request twice.
type Keys interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates enrichment.
type Service struct {
	upstream Upstream
	queue    Enqueuer
	keys     Keys
	bus      events.Bus
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a Service. queue, keys and bus may be nil.
func NewService(upstream Upstream, queue Enqueuer, keys Keys, bus events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{upstream: upstream, queue: queue, keys: keys, bus: bus, logger: logger, now: time.Now}
}

// Enrich resolves the requested channels of one contact. Work channels and
// personal channels are served by different upstream endpoints; the results
// are merged.
func (s *Service) Enrich(ctx context.Context, contactID string, channels []string) (backend.EnrichResult, error) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return backend.EnrichResult{}, invalid("Contact id is required.")
	}
	channels, err := normalizeChannels(channels)
	if err != nil {
		return backend.EnrichResult{}, err
	}
	var work []string
	wantPersonal := false
	for _, ch := range channels {
		if slices.Contains(personalChannels, ch) {
			wantPersonal = true
			continue
		}
		work = append(work, ch)
	}
	out := backend.EnrichResult{ContactID: backend.ID(contactID)}
	if len(work) > 0 {
		res, err := s.upstream.Enrich(ctx, contactID, work)
		if err != nil {
			return backend.EnrichResult{}, err
		}
		out.WorkEmail, out.WorkPhone = res.WorkEmail, res.WorkPhone
	}
	if wantPersonal {
		res, err := s.upstream.PersonalContacts(ctx, contactID)
		if err != nil {
			return backend.EnrichResult{}, err
		}
		out.PersonalEmail, out.PersonalPhone = res.PersonalEmail, res.PersonalPhone
	}
	return out, nil
}

// EnqueueBulk queues enrichment of ids for the user. An identical request
// for the same day is rejected with ErrAlreadyQueued.
func (s *Service) EnqueueBulk(ctx context.Context, userID, token string, ids, channels []string) (BulkRequest, error) {
	if s.queue == nil {
		return BulkRequest{}, errors.New("enrichment: queue not configured")
	}
	if userID == "" {
		return BulkRequest{}, invalid("Sign in to enrich contacts.")
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return BulkRequest{}, invalid("Select at least one contact.")
	}
	if len(ids) > MaxBulk {
		return BulkRequest{}, invalid("Select at most %d contacts.", MaxBulk)
	}
	channels, err := normalizeChannels(channels)
	if err != nil {
		return BulkRequest{}, err
	}
	req := BulkRequest{UserID: userID, Token: token, ContactIDs: ids, Channels: channels}
	req.Key = s.bulkKey(req)
	if s.keys != nil {
		if err := s.keys.CheckAndInsert(ctx, req.Key, "enrichment.bulk"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return BulkRequest{}, ErrAlreadyQueued
			}
			return BulkRequest{}, err
		}
	}
	if err := s.queue.EnqueueEnrichBulk(ctx, req); err != nil {
		if s.keys != nil {
			if derr := s.keys.Delete(ctx, req.Key); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", req.Key), slog.Any("error", derr))
			}
		}
		return BulkRequest{}, fmt.Errorf("enqueue bulk enrichment: %w", err)
	}
	s.logger.Info("bulk enrichment queued", slog.String("user_id", userID), slog.Int("contacts", len(ids)))
	return req, nil
}

// ProcessBulk enriches every contact of req. It stops at the first limit
// error since later contacts would hit the same quota.
func (s *Service) ProcessBulk(ctx context.Context, req BulkRequest) (BulkResult, error) {
	ctx = backend.ContextWithToken(ctx, req.Token)
	var result BulkResult
	for _, id := range req.ContactIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := s.Enrich(ctx, id, req.Channels)
		var limit *backend.LimitError
		switch {
		case errors.As(err, &limit):
			result.Limit = limit
			s.logger.Info("bulk enrichment hit limit", slog.String("user_id", req.UserID), slog.String("limit", string(limit.Type)))
			s.publish(ctx, req.UserID)
			return result, nil
		case errors.Is(err, backend.ErrUnauthorized):
			return result, err
		case err != nil:
			result.Failed++
			s.logger.Warn("enrich contact", slog.String("contact_id", id), slog.Any("error", err))
		default:
			result.Enriched++
		}
	}
	s.publish(ctx, req.UserID)
	return result, nil
}

func (s *Service) publish(ctx context.Context, userID string) {
	if s.bus == nil {
		return
	}
	evt, err := events.NewEvent(events.TopicDirectoryChanged, userID, map[string]string{"source": "enrichment"})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish directory change", slog.Any("error", err))
	}
}

func (s *Service) bulkKey(req BulkRequest) string {
	ids := slices.Clone(req.ContactIDs)
	slices.Sort(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",") + "|" + strings.Join(req.Channels, ",")))
	return fmt.Sprintf("enrich-bulk:%s:%s:%s", req.UserID, s.now().UTC().Format("20060102"), hex.EncodeToString(sum[:8]))
}

func normalizeChannels(channels []string) ([]string, error) {
	if len(channels) == 0 {
		return slices.Clone(workChannels), nil
	}
	out := make([]string, 0, len(channels))
	for _, ch := range dedupe(channels) {
		ch = strings.ToLower(ch)
		if !slices.Contains(workChannels, ch) && !slices.Contains(personalChannels, ch) {
			return nil, invalid("Unknown channel %q.", ch)
		}
		out = append(out, ch)
	}
	slices.Sort(out)
	return out, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
