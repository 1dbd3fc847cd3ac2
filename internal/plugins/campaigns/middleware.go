package campaigns

import (
	"github.com/labstack/echo/v4"
)

// contextKeyCampaign is the Echo context key for the loaded campaign.
const contextKeyCampaign = "campaign"

// RequireCampaign returns middleware that loads the running campaign into
// the request context, failing with 404 when none is running.
//
// Must be applied AFTER auth.RequireAuth.
func RequireCampaign(service CampaignService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			campaign, err := service.Get(c.Request().Context())
			if err != nil {
				return err
			}
			c.Set(contextKeyCampaign, campaign)
			return next(c)
		}
	}
}

// GetCampaign returns the campaign loaded by RequireCampaign, or nil.
func GetCampaign(c echo.Context) *Campaign {
	campaign, ok := c.Get(contextKeyCampaign).(*Campaign)
	if !ok {
		return nil
	}
	return campaign
}
