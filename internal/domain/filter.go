package domain

// SortBy selects the ordering column of a filtered read.
type SortBy string

const (
	SortByCreatedAt    SortBy = "created_at"
	SortByText         SortBy = "text"
	SortByNextAccessAt SortBy = "next_access_at"
)

// SortDir is the ordering direction.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Filter narrows a read over cards or notes. Zero values mean "no constraint".
type Filter struct {
	TagIDsToInclude []int64 `json:"tagIdsToInclude" validate:"dive,min=1"`
	TagIDsToExclude []int64 `json:"tagIdsToExclude" validate:"dive,min=1"`
	SearchText      string  `json:"searchText"`
	CreatedFrom     *int64  `json:"createdFrom"`
	CreatedTo       *int64  `json:"createdTo"`
	SortBy          SortBy  `json:"sortBy" validate:"omitempty,oneof=created_at text next_access_at"`
	SortDir         SortDir `json:"sortDir" validate:"omitempty,oneof=asc desc"`
	RowsLimit       int     `json:"rowsLimit" validate:"min=0"`
}
