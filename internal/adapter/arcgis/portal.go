package arcgis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pnhp/nha-sync/internal/domain"
)

// Form is the feature service behind a survey form item: the submission
// layer and its three repeat tables.
type Form struct {
	Surveys    *FeatureLayer
	SiteRefs   *FeatureLayer
	ThreatRefs *FeatureLayer
	Bullets    *FeatureLayer
}

// ResolveForm looks up the survey form item on the portal and binds the
// layers of the service it points to.
func (c *Client) ResolveForm(ctx context.Context, itemID string) (Form, error) {
	var item struct {
		URL  string `json:"url"`
		Type string `json:"type"`
	}
	if err := c.get(ctx, c.portalURL+"/sharing/rest/content/items/"+itemID, nil, &item); err != nil {
		return Form{}, fmt.Errorf("portal item %s: %w", itemID, err)
	}
	if item.URL == "" {
		return Form{}, fmt.Errorf("portal item %s: %w", itemID, domain.ErrNotFound)
	}
	serviceURL := strings.TrimRight(item.URL, "/")

	var service struct {
		Layers []struct {
			ID int `json:"id"`
		} `json:"layers"`
		Tables []struct {
			ID int `json:"id"`
		} `json:"tables"`
	}
	if err := c.get(ctx, serviceURL, nil, &service); err != nil {
		return Form{}, fmt.Errorf("form service: %w", err)
	}
	if len(service.Layers) == 0 || len(service.Tables) < 3 {
		return Form{}, errors.New("form service: expected one layer and three tables")
	}

	layer := func(id int) *FeatureLayer {
		return NewFeatureLayer(c, fmt.Sprintf("%s/%d", serviceURL, id))
	}
	c.logger.Info("survey form resolved", "item", itemID, "service", serviceURL)
	return Form{
		Surveys:    layer(service.Layers[0].ID),
		SiteRefs:   layer(service.Tables[0].ID),
		ThreatRefs: layer(service.Tables[1].ID),
		Bullets:    layer(service.Tables[2].ID),
	}, nil
}
