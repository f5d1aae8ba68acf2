package auth

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// IdentityURNPrefix prefixes a Globus identity id to form a principal
const IdentityURNPrefix = "urn:globus:auth:identity:"

// UserInfoSource fetches the current user's identity
type UserInfoSource interface {
	UserInfo(ctx context.Context) (*UserInfo, error)
}

// Identity caches the logged-in user's identity for the lifetime of one
// command. Concurrent first lookups share a single request.
type Identity struct {
	src   UserInfoSource
	group singleflight.Group

	mu   sync.Mutex
	info *UserInfo
}

// NewIdentity wraps src with a cache
func NewIdentity(src UserInfoSource) *Identity {
	return &Identity{src: src}
}

// UserInfo returns the cached identity, fetching it on first use
func (i *Identity) UserInfo(ctx context.Context) (*UserInfo, error) {
	i.mu.Lock()
	info := i.info
	i.mu.Unlock()
	if info != nil {
		return info, nil
	}

	v, err, _ := i.group.Do("userinfo", func() (any, error) {
		i.mu.Lock()
		cached := i.info
		i.mu.Unlock()
		if cached != nil {
			return cached, nil
		}

		info, err := i.src.UserInfo(ctx)
		if err != nil {
			return nil, err
		}
		i.mu.Lock()
		i.info = info
		i.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*UserInfo), nil
}

// CurrentUser returns the identity URN used in visible_to lists
func (i *Identity) CurrentUser(ctx context.Context) (string, error) {
	info, err := i.UserInfo(ctx)
	if err != nil {
		return "", err
	}
	return IdentityURNPrefix + info.Sub, nil
}

// PreferredUsername returns the user's display handle
func (i *Identity) PreferredUsername(ctx context.Context) (string, error) {
	info, err := i.UserInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.PreferredUsername, nil
}
