package models

import (
	"time"

	"github.com/gocql/gocql"
)

type Category struct {
	ID          gocql.UUID  `json:"id,omitempty"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	Description string      `json:"description,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	ParentID    *gocql.UUID `json:"parent_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type CategorySummary struct {
	ID     gocql.UUID `json:"id"`
	Name   string     `json:"name"`
	Slug   string     `json:"slug"`
	Count  int        `json:"count"`
	Parent string     `json:"parent,omitempty"`
}
