package rater

import "context"

type attrSessionFilter struct {
	Filters map[string]string `json:"Filters,omitempty"`
}

type attrForceDisconnect struct {
	Filters map[string]string `json:"Filters"`
}

// ActiveSessions lists the subscription's in-flight calls.
func (c *Client) ActiveSessions(ctx context.Context, subscriptionCode string) ([]Session, error) {
	var sessions []Session
	err := c.call(ctx, methodGetActiveSessions, attrSessionFilter{
		Filters: map[string]string{"Account": c.names.Account(subscriptionCode)},
	}, &sessions)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return sessions, nil
}

// ForceDisconnect tears down one active session by origin id.
func (c *Client) ForceDisconnect(ctx context.Context, originID string) error {
	return c.call(ctx, methodForceDisconnect, attrForceDisconnect{
		Filters: map[string]string{"OriginID": originID},
	}, nil)
}
