// Package identity resolves user display names from the external profile
// service, caching results in the user_info table.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"loyalty-points/internal/model"
	"loyalty-points/internal/repository"
)

// ErrIdentityResolutionFailed is returned when neither the cache nor the
// profile service can supply an identity.
var ErrIdentityResolutionFailed = errors.New("identity resolution failed")

// DefaultCacheTTL is how long a cached profile counts as fresh.
const DefaultCacheTTL = 24 * time.Hour

// Identity is what a leaderboard row shows for a user.
type Identity struct {
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatar"`
}

// Cache stores resolved profiles.
type Cache interface {
	Get(ctx context.Context, userID string) (*model.UserInfo, error)
	Upsert(ctx context.Context, info *model.UserInfo) error
}

// Resolver is a cache-aside client for GET {baseURL}/{userID}.
type Resolver struct {
	cache   Cache
	baseURL string
	client  *http.Client
	ttl     time.Duration
	now     func() time.Time
}

// NewResolver creates a Resolver. A zero ttl uses DefaultCacheTTL; a nil
// client uses one with the given timeout.
func NewResolver(cache Cache, baseURL string, ttl, timeout time.Duration, client *http.Client) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Resolver{
		cache:   cache,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		ttl:     ttl,
		now:     time.Now,
	}
}

type profileResponse struct {
	Success bool `json:"success"`
	Data    struct {
		FullName string  `json:"fullname"`
		Email    *string `json:"email"`
		Avatar   *string `json:"avatar"`
	} `json:"data"`
}

// Resolve returns the user's identity as shown on a leaderboard row.
func (r *Resolver) Resolve(ctx context.Context, userID, token string) (*Identity, error) {
	info, err := r.Lookup(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	return toIdentity(info), nil
}

// Lookup returns the user's cached profile. A fresh cache entry is served
// directly; otherwise the profile service is called with token as bearer
// credentials. A stale entry is still served when the service fails.
func (r *Resolver) Lookup(ctx context.Context, userID, token string) (*model.UserInfo, error) {
	cached, err := r.cache.Get(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Warn().Err(err).Str("user_id", userID).Msg("Identity cache read failed")
		cached = nil
	}
	if cached != nil && r.now().Sub(cached.UpdatedAt) < r.ttl {
		return cached, nil
	}

	info, fetchErr := r.fetch(ctx, userID, token)
	if fetchErr == nil {
		if err := r.cache.Upsert(ctx, info); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Identity cache write failed")
		}
		return info, nil
	}

	if cached != nil {
		log.Debug().Err(fetchErr).Str("user_id", userID).Msg("Serving stale identity")
		return cached, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrIdentityResolutionFailed, fetchErr)
}

func (r *Resolver) fetch(ctx context.Context, userID, token string) (*model.UserInfo, error) {
	if r.baseURL == "" {
		return nil, errors.New("profile service not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call profile service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile service returned %d", resp.StatusCode)
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if !body.Success {
		return nil, errors.New("profile service reported failure")
	}

	return &model.UserInfo{
		UserID:      userID,
		DisplayName: body.Data.FullName,
		Email:       body.Data.Email,
		AvatarURL:   body.Data.Avatar,
		UpdatedAt:   r.now(),
	}, nil
}

func toIdentity(info *model.UserInfo) *Identity {
	return &Identity{DisplayName: info.DisplayName, AvatarURL: info.AvatarURL}
}

// Placeholder is the display name used when no identity can be resolved.
func Placeholder(userID string) string {
	short := userID
	if r := []rune(userID); len(r) > 5 {
		short = string(r[:5])
	}
	return "User " + short + "..."
}
