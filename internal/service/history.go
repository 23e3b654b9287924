package service

import (
	"context"
	"time"

	"github.com/you/go-flight-harvester/internal/flight"
	"github.com/you/go-flight-harvester/internal/storage"
)

type PriceHistory interface {
	MonthlyAverages(ctx context.Context, route flight.Route, months int, now time.Time) ([]storage.MonthPoint, error)
}

// HistoryService returns monthly average prices from stored offers.
type HistoryService struct {
	store PriceHistory
	now   func() time.Time
}

func NewHistoryService(store PriceHistory) *HistoryService {
	return &HistoryService{store: store, now: time.Now}
}

// MonthlyAverages returns one point per month and currency that has data,
// oldest first. months <= 0 means 24.
func (h *HistoryService) MonthlyAverages(ctx context.Context, route flight.Route, months int) ([]storage.MonthPoint, error) {
	if months <= 0 {
		months = 24
	}
	points, err := h.store.MonthlyAverages(ctx, route, months, h.now().UTC())
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []storage.MonthPoint{}
	}
	return points, nil
}
