package confluence

import (
	"time"

	"github.com/poiesic/pagewise/core"
)

// page is the subset of the content REST representation the pipeline uses.
type page struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Body   struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version struct {
		Number int    `json:"number"`
		When   string `json:"when"`
		By     user   `json:"by"`
	} `json:"version"`
	Space struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"space"`
	History struct {
		LastUpdated struct {
			When string `json:"when"`
			By   user   `json:"by"`
		} `json:"lastUpdated"`
	} `json:"history"`
	Metadata struct {
		Labels struct {
			Results []struct {
				Name string `json:"name"`
			} `json:"results"`
		} `json:"labels"`
	} `json:"metadata"`
	Links struct {
		Base  string `json:"base"`
		WebUI string `json:"webui"`
	} `json:"_links"`
}

type user struct {
	DisplayName string `json:"displayName"`
	PublicName  string `json:"publicName"`
}

func (u user) name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.PublicName
}

// document converts the payload. siteURL is used when the response carries no _links.base.
func (p *page) document(siteURL string) *core.Document {
	doc := &core.Document{
		ID:        p.ID,
		Body:      p.Body.Storage.Value,
		Version:   p.Version.Number,
		Title:     p.Title,
		SpaceKey:  p.Space.Key,
		SpaceName: p.Space.Name,
		Author:    p.History.LastUpdated.By.name(),
		URL:       pageURL(p.Links.Base, p.Links.WebUI, siteURL),
	}
	if doc.Author == "" {
		doc.Author = p.Version.By.name()
	}
	for _, label := range p.Metadata.Labels.Results {
		if label.Name != "" {
			doc.Labels = append(doc.Labels, label.Name)
		}
	}
	when := p.History.LastUpdated.When
	if when == "" {
		when = p.Version.When
	}
	if t, err := time.Parse(time.RFC3339, when); err == nil {
		doc.UpdatedAt = t.UTC()
	}
	return doc
}

func pageURL(base, webui, siteURL string) string {
	if webui == "" {
		return ""
	}
	if base == "" {
		base = siteURL + "/wiki"
	}
	return base + webui
}
