package rater

import "context"

type attributeProfile struct {
	Tenant     string      `json:"Tenant"`
	ID         string      `json:"ID"`
	Contexts   []string    `json:"Contexts"`
	FilterIDs  []string    `json:"FilterIDs"`
	Attributes []attribute `json:"Attributes"`
	Weight     int         `json:"Weight"`
}

type attribute struct {
	Path  string `json:"Path"`
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

// SetAttributeProfile installs the outbound attribute profile carrying
// the subscription's destination classification and emergency
// destinations.
func (c *Client) SetAttributeProfile(ctx context.Context, subscriptionCode string, classification map[string]string, emergency []string) error {
	attrs := make([]attribute, 0, len(classification)+1)
	for field, value := range classification {
		attrs = append(attrs, attribute{
			Path:  "*req." + field,
			Type:  "*constant",
			Value: value,
		})
	}
	if len(emergency) > 0 {
		attrs = append(attrs, attribute{
			Path:  "*req.EmergencyDestinations",
			Type:  "*constant",
			Value: joinValues(emergency),
		})
	}
	return c.call(ctx, methodSetAttribute, attributeProfile{
		Tenant:   c.names.Tenant,
		ID:       c.names.AttributeProfile(subscriptionCode),
		Contexts: []string{"*sessions", "*cdrs"},
		FilterIDs: []string{
			"*string:~*req.Account:" + c.names.Account(subscriptionCode),
		},
		Attributes: attrs,
		Weight:     20,
	}, nil)
}

// SetInboundAttributeProfile installs the inbound-side profile used by
// package activation.
func (c *Client) SetInboundAttributeProfile(ctx context.Context, subscriptionCode string, attrsIn map[string]string) error {
	attrs := make([]attribute, 0, len(attrsIn))
	for field, value := range attrsIn {
		attrs = append(attrs, attribute{
			Path:  "*req." + field,
			Type:  "*constant",
			Value: value,
		})
	}
	return c.call(ctx, methodSetAttribute, attributeProfile{
		Tenant:   c.names.Tenant,
		ID:       c.names.InboundAttributeProfile(subscriptionCode),
		Contexts: []string{"*sessions"},
		FilterIDs: []string{
			"*string:~*req.Destination:" + c.names.Account(subscriptionCode),
		},
		Attributes: attrs,
		Weight:     20,
	}, nil)
}

// RemoveAttributeProfile drops the outbound profile.
func (c *Client) RemoveAttributeProfile(ctx context.Context, subscriptionCode string) error {
	return c.call(ctx, methodRemoveAttribute, attrTenantID{
		Tenant: c.names.Tenant,
		ID:     c.names.AttributeProfile(subscriptionCode),
	}, nil)
}
