package helper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

/* ===============================
   Pagination type
=================================*/

type Pagination struct {
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int64  `json:"total"`
	TotalPages int    `json:"total_pages"`
	HasNext    bool   `json:"has_next"`
	HasPrev    bool   `json:"has_prev"`
	Count      int    `json:"count"`
	Indicator  string `json:"indicator"`
}

// ResolvePage reads ?page= and clamps it to >= 1.
func ResolvePage(c *fiber.Ctx) int {
	page, _ := strconv.Atoi(strings.TrimSpace(c.Query("page", "1")))
	if page < 1 {
		page = 1
	}
	return page
}

// TotalPages is ceil(total/perPage), never below 1.
func TotalPages(total int64, perPage int) int {
	if perPage <= 0 {
		perPage = 20
	}
	n := int((total + int64(perPage) - 1) / int64(perPage))
	if n == 0 {
		n = 1
	}
	return n
}

// PageOf returns the 1-based page that holds the 1-based item number.
func PageOf(number, perPage int) int {
	if number < 1 || perPage <= 0 {
		return 1
	}
	return (number + perPage - 1) / perPage
}

func PageIndicator(page, totalPages int) string {
	return fmt.Sprintf("Page %d of %d", page, totalPages)
}

func BuildPaginationFromPage(total int64, page, perPage, count int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := TotalPages(total, perPage)
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
		Count:      count,
		Indicator:  PageIndicator(page, totalPages),
	}
}

// BuildPaginationFromPages is used when upstream reports total_pages but no total count.
func BuildPaginationFromPages(page, totalPages, count int) Pagination {
	if page <= 0 {
		page = 1
	}
	if totalPages <= 0 {
		totalPages = 1
	}
	return Pagination{
		Page:       page,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
		Count:      count,
		Indicator:  PageIndicator(page, totalPages),
	}
}
