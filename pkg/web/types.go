// Package web provides HTTP request and response types for the workflow manager API.
package web

import (
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
)

// PagedResponse wraps one page of a listing.
type PagedResponse[T any] struct {
	Data         []T   `json:"data"`
	PageNumber   int   `json:"page_number"`
	PageSize     int   `json:"page_size"`
	TotalRecords int64 `json:"total_records"`
	TotalPages   int64 `json:"total_pages"`
}

func NewPagedResponse[T any](data []T, paging persistence.Paging, total int64) PagedResponse[T] {
	if data == nil {
		data = []T{}
	}

	var pages int64
	if paging.PageSize > 0 {
		pages = (total + int64(paging.PageSize) - 1) / int64(paging.PageSize)
	}

	return PagedResponse[T]{
		Data:         data,
		PageNumber:   paging.PageNumber,
		PageSize:     paging.PageSize,
		TotalRecords: total,
		TotalPages:   pages,
	}
}

// StatsResponse is one page of execution stats with the averages of the window.
type StatsResponse struct {
	PagedResponse[*models.ExecutionStats]

	models.AverageStats
}

// StatsOverviewResponse counts the executions of the window per status.
type StatsOverviewResponse struct {
	StartTime string               `json:"start_time"`
	EndTime   string               `json:"end_time"`
	Total     int64                `json:"total"`
	Statuses  []models.StatusCount `json:"statuses"`
}

