package session

import (
	"context"

	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/property"
)

// Store is the external database a session reads from and writes to.
type Store interface {
	Schema(ctx context.Context) (property.Schema, error)
	// FindByURL returns the first row whose column equals url, or nil.
	FindByURL(ctx context.Context, column, url string) (*notion.Page, error)
	Create(ctx context.Context, props map[string]notion.PropertyValue) (string, error)
	Update(ctx context.Context, rowID string, props map[string]notion.PropertyValue) (string, error)
}

// NotionStore is a Store backed by one Notion database.
type NotionStore struct {
	Client     *notion.Client
	DatabaseID string
}

func (s NotionStore) Schema(ctx context.Context) (property.Schema, error) {
	db, err := s.Client.GetDatabase(ctx, s.DatabaseID)
	if err != nil {
		return property.Schema{}, err
	}
	return property.SchemaFromDatabase(db), nil
}

func (s NotionStore) FindByURL(ctx context.Context, column, url string) (*notion.Page, error) {
	pages, err := s.Client.QueryByURL(ctx, s.DatabaseID, column, url, 1)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return &pages[0], nil
}

func (s NotionStore) Create(ctx context.Context, props map[string]notion.PropertyValue) (string, error) {
	page, err := s.Client.CreatePage(ctx, s.DatabaseID, props)
	if err != nil {
		return "", err
	}
	return page.ID, nil
}

func (s NotionStore) Update(ctx context.Context, rowID string, props map[string]notion.PropertyValue) (string, error) {
	page, err := s.Client.UpdatePage(ctx, rowID, props)
	if err != nil {
		return "", err
	}
	return page.ID, nil
}
