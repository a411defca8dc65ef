package models

import (
	"time"
)

// The freshness database is written by the crawler; every model here is
// consumed read-only.

// Run is one complete crawl pass over all datasets.
type Run struct {
	RunNumber int       `gorm:"primaryKey;column:run_number" json:"run_number"`
	RunDate   time.Time `gorm:"column:run_date" json:"run_date"`
}

// Dataset is the per-run freshness snapshot of one dataset. Fresh is the
// ordinal status 0=Fresh, 1=Due, 2=Overdue, 3=Delinquent.
type Dataset struct {
	RunNumber         int       `gorm:"primaryKey;column:run_number" json:"run_number"`
	ID                string    `gorm:"primaryKey;column:id" json:"id"`
	DatasetDate       string    `gorm:"column:dataset_date" json:"dataset_date"`
	UpdateFrequency   *int      `gorm:"column:update_frequency" json:"update_frequency,omitempty"`
	LatestOfModifieds time.Time `gorm:"column:latest_of_modifieds" json:"latest_of_modifieds"`
	WhatUpdated       string    `gorm:"column:what_updated" json:"what_updated"`
	Fresh             *int      `gorm:"column:fresh" json:"fresh,omitempty"`
}

// InfoDataset is the static descriptive row for a dataset.
type InfoDataset struct {
	ID             string `gorm:"primaryKey;column:id" json:"id"`
	Name           string `gorm:"column:name" json:"name"`
	Title          string `gorm:"column:title" json:"title"`
	Maintainer     string `gorm:"column:maintainer" json:"maintainer"`
	OrganizationID string `gorm:"column:organization_id" json:"organization_id"`
}

// Organization is the static descriptive row for an organization.
type Organization struct {
	ID    string `gorm:"primaryKey;column:id" json:"id"`
	Name  string `gorm:"column:name" json:"name"`
	Title string `gorm:"column:title" json:"title"`
}

// Resource is the per-run snapshot of one resource. Error is set when the
// last check of the resource failed.
type Resource struct {
	RunNumber   int       `gorm:"primaryKey;column:run_number" json:"run_number"`
	ID          string    `gorm:"primaryKey;column:id" json:"id"`
	Name        string    `gorm:"column:name" json:"name"`
	DatasetID   string    `gorm:"column:dataset_id" json:"dataset_id"`
	Error       *string   `gorm:"column:error" json:"error,omitempty"`
	WhenChecked time.Time `gorm:"column:when_checked" json:"when_checked"`
}

// TableName overrides
func (Run) TableName() string {
	return "dbruns"
}

func (Dataset) TableName() string {
	return "dbdatasets"
}

func (InfoDataset) TableName() string {
	return "dbinfodatasets"
}

func (Organization) TableName() string {
	return "dborganizations"
}

func (Resource) TableName() string {
	return "dbresources"
}
