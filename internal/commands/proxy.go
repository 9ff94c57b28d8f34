package commands

import (
	"context"

	scope_errors "scope-chat/pkg/errors"
)

type Proxy interface {
	Authorize(ctx context.Context, cmd Command) error
}

type ProxyChain struct {
	proxies []Proxy
}

func NewProxyChain(proxies ...Proxy) *ProxyChain {
	items := make([]Proxy, 0, len(proxies))
	for _, proxy := range proxies {
		if proxy != nil {
			items = append(items, proxy)
		}
	}
	return &ProxyChain{proxies: items}
}

func (p *ProxyChain) Authorize(ctx context.Context, cmd Command) error {
	for _, proxy := range p.proxies {
		if err := proxy.Authorize(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
}

// MembershipProxy rejects chat scoped commands from non-members. Leaving a
// chat never needs membership.
type MembershipProxy struct {
	members MembershipChecker
}

func NewMembershipProxy(members MembershipChecker) *MembershipProxy {
	return &MembershipProxy{members: members}
}

func (p *MembershipProxy) Authorize(ctx context.Context, cmd Command) error {
	scoped, ok := cmd.(ChatScoped)
	if !ok || cmd.CommandType() == TypeLeaveChat {
		return nil
	}
	chatID, userID := scoped.Scope()
	ok, err := p.members.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return scope_errors.ErrNotMember
	}
	return nil
}
