package delegate

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/casfa/casfa/pkg/auth/token"
	"github.com/casfa/casfa/pkg/errors"
	"github.com/casfa/casfa/pkg/logger"
	"github.com/casfa/casfa/pkg/metrics"
	"github.com/casfa/casfa/pkg/pagination"
	"github.com/casfa/casfa/pkg/scope"
)

// ScopeResolver is the slice of the scope package the manager needs.
// *scope.Resolver satisfies it.
type ScopeResolver interface {
	Resolve(ctx context.Context, requested, parentRoots []string) (scope.Resolution, error)
	Roots(ctx context.Context, nodeHash, setNodeID string) ([]string, error)
}

// DefaultAccessTokenTTL is used when no TTL is configured.
const DefaultAccessTokenTTL = time.Hour

// TokenPair is a freshly minted refresh/access token generation. The raw
// bytes are returned to the caller exactly once; only their hashes are
// stored.
type TokenPair struct {
	AccessToken  []byte
	RefreshToken []byte

	// ATExpiresAt is the access token's expiry in epoch milliseconds.
	ATExpiresAt int64
}

// ChildRequest is the client-supplied shape of a new child delegate.
type ChildRequest struct {
	Name            string
	CanUpload       bool
	CanManageDepot  bool
	DelegatedDepots []string

	// Scopes is the relative scope request resolved against the parent's
	// roots. Empty or ["."] inherits the parent's scope.
	Scopes []string

	// ScopeNodeHash pins the child to an already-resolved scope root,
	// bypassing path resolution. Used by the OAuth consent flow, where the
	// grant names a concrete node. Mutually exclusive with Scopes.
	ScopeNodeHash string

	// ExpiresAt is the child's expiry in epoch milliseconds, zero for none.
	ExpiresAt int64

	// TokenTTL overrides the manager's access-token TTL for this child's
	// first token pair when positive.
	TokenTTL time.Duration
}

// RefreshResult is the outcome of a successful token rotation.
type RefreshResult struct {
	Delegate *Delegate
	Tokens   TokenPair
}

// Manager orchestrates delegate creation, token rotation, and revocation
// on top of a Store and a ScopeResolver.
type Manager struct {
	store    Store
	scopes   ScopeResolver
	atTTL    time.Duration
	maxDepth int

	// now is swapped out in tests.
	now func() time.Time
}

// NewManager creates a Manager. atTTL <= 0 falls back to
// DefaultAccessTokenTTL; maxDepth <= 0 means unlimited depth.
func NewManager(store Store, scopes ScopeResolver, atTTL time.Duration, maxDepth int) *Manager {
	if atTTL <= 0 {
		atTTL = DefaultAccessTokenTTL
	}
	return &Manager{
		store:    store,
		scopes:   scopes,
		atTTL:    atTTL,
		maxDepth: maxDepth,
		now:      time.Now,
	}
}

// CreateChild creates a child of parentID after validating that the
// request only narrows the parent's capabilities and scope. The returned
// token pair is the only time the raw bytes exist outside the client.
func (m *Manager) CreateChild(ctx context.Context, parentID string, req ChildRequest) (*Delegate, *TokenPair, error) {
	parent, err := m.getLive(ctx, parentID)
	if err != nil {
		// A revoked issuer is a forbidden operation, not a credential
		// failure, at this layer.
		var appErr *errors.Error
		if stderrors.As(err, &appErr) && appErr.Type == errors.ErrDelegateRevoked {
			appErr.WithStatus(403)
		}
		return nil, nil, err
	}

	if err := ValidateNarrowing(parent, ChildSpec{
		Name:            req.Name,
		CanUpload:       req.CanUpload,
		CanManageDepot:  req.CanManageDepot,
		DelegatedDepots: req.DelegatedDepots,
		ExpiresAt:       req.ExpiresAt,
	}, m.maxDepth); err != nil {
		return nil, nil, err
	}

	var resolution scope.Resolution
	if req.ScopeNodeHash != "" {
		resolution = scope.Resolution{NodeHash: req.ScopeNodeHash}
	} else {
		parentRoots, err := m.scopes.Roots(ctx, parent.ScopeNodeHash, parent.ScopeSetNodeID)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrInternal, "failed to load parent scope roots", err)
		}
		resolution, err = m.scopes.Resolve(ctx, req.Scopes, parentRoots)
		if err != nil {
			return nil, nil, err
		}
	}

	rawID := token.NewID()
	id := token.FormatID(rawID)
	now := m.now()

	ttl := m.atTTL
	if req.TokenTTL > 0 {
		ttl = req.TokenTTL
	}
	pair, rtHash, atHash, err := m.mintPairTTL(rawID, now, ttl)
	if err != nil {
		return nil, nil, err
	}

	child := &Delegate{
		DelegateID:      id,
		Realm:           parent.Realm,
		ParentID:        parent.DelegateID,
		Chain:           append(append([]string{}, parent.Chain...), id),
		Depth:           parent.Depth + 1,
		Name:            req.Name,
		CanUpload:       req.CanUpload,
		CanManageDepot:  req.CanManageDepot,
		DelegatedDepots: req.DelegatedDepots,
		ScopeNodeHash:   resolution.NodeHash,
		ScopeSetNodeID:  resolution.SetNodeID,
		ExpiresAt:       req.ExpiresAt,
		CreatedAt:       now.UnixMilli(),
		CurrentRTHash:   rtHash,
		CurrentATHash:   atHash,
		ATExpiresAt:     pair.ATExpiresAt,
	}

	if err := m.store.Create(ctx, child); err != nil {
		return nil, nil, errors.Wrap(errors.ErrInternal, "failed to store delegate", err)
	}

	metrics.DelegatesCreatedTotal.Inc()
	logger.Infow("delegate created",
		"delegate_id", child.DelegateID,
		"parent_id", parent.DelegateID,
		"realm", child.Realm,
		"depth", child.Depth)
	return child, pair, nil
}

// Refresh rotates the delegate's token generation. The presented refresh
// token must hash to the delegate's current refresh-token hash; the swap
// to the new generation is a compare-and-swap on that hash, so two racing
// refreshes produce exactly one winner.
func (m *Manager) Refresh(ctx context.Context, raw []byte) (*RefreshResult, error) {
	decoded, err := token.Decode(raw)
	if err != nil {
		metrics.TokensRefreshedTotal.WithLabelValues("invalid").Inc()
		return nil, errors.Wrap(errors.ErrInvalidTokenFormat, "token matches no known layout", err)
	}
	if decoded.Type != token.TypeRefresh {
		metrics.TokensRefreshedTotal.WithLabelValues("invalid").Inc()
		return nil, errors.New(errors.ErrNotRefreshToken, "an access token cannot be refreshed")
	}

	id := token.FormatID(decoded.DelegateID)
	d, err := m.getLive(ctx, id)
	if err != nil {
		metrics.TokensRefreshedTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if token.Hash(raw) != d.CurrentRTHash {
		metrics.TokensRefreshedTotal.WithLabelValues("rejected").Inc()
		return nil, errors.New(errors.ErrTokenInvalid, "refresh token is not the current generation")
	}

	pair, rtHash, atHash, err := m.mintPair(decoded.DelegateID, m.now())
	if err != nil {
		return nil, err
	}

	ok, err := m.store.RotateTokens(ctx, RotateRequest{
		DelegateID:     d.DelegateID,
		ExpectedRTHash: d.CurrentRTHash,
		NewRTHash:      rtHash,
		NewATHash:      atHash,
		NewATExpiresAt: pair.ATExpiresAt,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to rotate tokens", err)
	}
	if !ok {
		// Lost the race: another refresh landed between our read and the
		// conditional write.
		metrics.TokensRefreshedTotal.WithLabelValues("conflict").Inc()
		return nil, errors.New(errors.ErrTokenInvalid, "refresh token was rotated concurrently").WithStatus(409)
	}

	d.CurrentRTHash = rtHash
	d.CurrentATHash = atHash
	d.ATExpiresAt = pair.ATExpiresAt

	metrics.TokensRefreshedTotal.WithLabelValues("ok").Inc()
	return &RefreshResult{Delegate: d, Tokens: *pair}, nil
}

// EnsureRoot returns the realm's root delegate, creating it on first use.
// Roots carry every capability and no tokens; the owning user's JWT is
// their credential. The second return is true when this call created the
// root.
func (m *Manager) EnsureRoot(ctx context.Context, realm string) (*Delegate, bool, error) {
	rawID := token.NewID()
	id := token.FormatID(rawID)

	proposed := &Delegate{
		DelegateID:     id,
		Realm:          realm,
		Chain:          []string{id},
		Depth:          0,
		CanUpload:      true,
		CanManageDepot: true,
		CreatedAt:      m.now().UnixMilli(),
	}

	root, created, err := m.store.GetOrCreateRoot(ctx, realm, proposed)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrInternal, "failed to resolve root delegate", err)
	}
	if root.IsRevoked {
		return nil, false, errors.New(errors.ErrRootDelegateRevoked, "the realm's root delegate has been revoked")
	}
	if created {
		metrics.DelegatesCreatedTotal.Inc()
		logger.Infow("root delegate created", "delegate_id", root.DelegateID, "realm", realm)
	}
	return root, created, nil
}

// RevokeCascade revokes the target and every descendant. Descendant
// failures are logged and skipped rather than aborting the walk; a parent
// that is already revoked still has its subtree visited, since an earlier
// cascade may have been interrupted. Returns the number of delegates this
// call actually revoked.
func (m *Manager) RevokeCascade(ctx context.Context, id, by string) (int, error) {
	target, err := m.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return 0, errors.New(errors.ErrDelegateNotFound, "delegate not found").WithStatus(404)
		}
		return 0, errors.Wrap(errors.ErrInternal, "failed to load delegate", err)
	}
	if target.IsRevoked {
		return 0, errors.New(errors.ErrDelegateAlreadyRevoked, "delegate is already revoked")
	}

	revoked := 0
	if ok, err := m.store.Revoke(ctx, id, by); err != nil {
		return 0, errors.Wrap(errors.ErrInternal, "failed to revoke delegate", err)
	} else if ok {
		revoked++
	}

	// Depth-first over the subtree. Children created concurrently with the
	// walk may be missed here, but they fail authentication anyway once an
	// ancestor is revoked.
	stack := []string{id}
	for len(stack) > 0 {
		parentID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cursor := ""
		for {
			children, next, err := m.store.ListChildren(ctx, parentID, 100, cursor)
			if err != nil {
				logger.Errorw("cascade revocation: listing children failed",
					"parent_id", parentID, "error", err.Error())
				break
			}
			for _, child := range children {
				stack = append(stack, child.DelegateID)
				ok, err := m.store.Revoke(ctx, child.DelegateID, by)
				if err != nil {
					logger.Errorw("cascade revocation: revoking child failed",
						"delegate_id", child.DelegateID, "error", err.Error())
					continue
				}
				if ok {
					revoked++
				}
			}
			if next == "" {
				break
			}
			cursor = next
		}
	}

	metrics.DelegatesRevokedTotal.Add(float64(revoked))
	logger.Infow("delegate revoked", "delegate_id", id, "revoked_by", by, "cascade_count", revoked)
	return revoked, nil
}

// GetVisible returns the target delegate if callerID is an ancestor of it
// (self included). A missing delegate and an out-of-subtree delegate are
// deliberately indistinguishable.
func (m *Manager) GetVisible(ctx context.Context, callerID, targetID string) (*Delegate, error) {
	d, err := m.store.Get(ctx, targetID)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return nil, errors.New(errors.ErrDelegateNotFound, "delegate not found").WithStatus(404)
		}
		return nil, errors.Wrap(errors.ErrInternal, "failed to load delegate", err)
	}
	if !d.HasAncestor(callerID) {
		return nil, errors.New(errors.ErrDelegateNotFound, "delegate not found").WithStatus(404)
	}
	return d, nil
}

// ListChildren pages through the direct children of parentID, which must
// be visible to callerID. Revoked children are filtered out unless
// includeRevoked is set; the cursor always tracks the unfiltered page.
func (m *Manager) ListChildren(ctx context.Context, callerID, parentID string, limit int, cursor string, includeRevoked bool) ([]*Delegate, string, error) {
	if _, err := m.GetVisible(ctx, callerID, parentID); err != nil {
		return nil, "", err
	}

	children, next, err := m.store.ListChildren(ctx, parentID, limit, cursor)
	if err != nil {
		if stderrors.Is(err, pagination.ErrInvalidCursor) {
			return nil, "", errors.New(errors.ErrInvalidRequest, "invalid cursor")
		}
		return nil, "", errors.Wrap(errors.ErrInternal, "failed to list children", err)
	}
	if includeRevoked {
		return children, next, nil
	}

	filtered := make([]*Delegate, 0, len(children))
	for _, child := range children {
		if !child.IsRevoked {
			filtered = append(filtered, child)
		}
	}
	return filtered, next, nil
}

// getLive loads a delegate and rejects it when revoked or expired.
func (m *Manager) getLive(ctx context.Context, id string) (*Delegate, error) {
	d, err := m.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return nil, errors.New(errors.ErrDelegateNotFound, "delegate not found")
		}
		return nil, errors.Wrap(errors.ErrInternal, "failed to load delegate", err)
	}
	if d.IsRevoked {
		return nil, errors.New(errors.ErrDelegateRevoked, "delegate has been revoked")
	}
	if d.IsExpired(m.now()) {
		return nil, errors.New(errors.ErrDelegateExpired, "delegate has expired")
	}
	return d, nil
}

// mintPair builds a fresh refresh/access token generation for the
// delegate.
func (m *Manager) mintPair(rawID [16]byte, now time.Time) (*TokenPair, string, string, error) {
	return m.mintPairTTL(rawID, now, m.atTTL)
}

func (m *Manager) mintPairTTL(rawID [16]byte, now time.Time, ttl time.Duration) (*TokenPair, string, string, error) {
	atExpiresAt := now.Add(ttl).UnixMilli()

	at, err := token.EncodeAccess(rawID, atExpiresAt)
	if err != nil {
		return nil, "", "", errors.Wrap(errors.ErrInternal, "failed to mint access token", err)
	}
	rt, err := token.EncodeRefresh(rawID)
	if err != nil {
		return nil, "", "", errors.Wrap(errors.ErrInternal, "failed to mint refresh token", err)
	}

	pair := &TokenPair{AccessToken: at, RefreshToken: rt, ATExpiresAt: atExpiresAt}
	return pair, token.Hash(rt), token.Hash(at), nil
}
