package rater

import "context"

// CountCDRs returns the number of CDRs matching the filter.
func (c *Client) CountCDRs(ctx context.Context, filter CDRFilter) (int64, error) {
	var count int64
	if err := c.call(ctx, methodCountCDRs, filter, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListCDRs fetches matching CDRs. The call runs without timeout: large
// windows are expected and slow.
func (c *Client) ListCDRs(ctx context.Context, filter CDRFilter) ([]CDR, error) {
	var cdrs []CDR
	if err := c.callNoTimeout(ctx, methodListCDRs, filter, &cdrs); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return cdrs, nil
}

// SubjectFilter builds the CDR filter subject for a subscription.
func (c *Client) SubjectFilter(subscriptionCode string) string {
	return c.names.Account(subscriptionCode)
}
