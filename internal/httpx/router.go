package httpx

import (
	"log/slog"
	"net/http"

	"github.com/you/go-flight-harvester/internal/auth"
	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/harvest"
)

type Deps struct {
	Offers   OfferFinder
	History  HistoryFinder
	Harvest  Harvester
	Runs     RunFeed
	Defaults func() harvest.Request
	Log      *slog.Logger
}

// NewRouter mounts /auth/login publicly and everything else behind JWT.
func NewRouter(cfg *config.Config, d Deps) http.Handler {
	publicMux := http.NewServeMux()
	publicMux.HandleFunc("/auth/login", auth.LoginHandler(cfg))

	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("/offers", OffersHandler(d.Offers))
	protectedMux.HandleFunc("/offers/history", HistoryHandler(d.History))
	protectedMux.HandleFunc("/harvest", HarvestHandler(d.Harvest, d.Defaults))
	protectedMux.HandleFunc("/harvest/latest", LatestRunHandler(d.Runs))
	protectedMux.HandleFunc("/sse/offers/", SubscribeSSEHandler(d.Offers, d.Runs, d.Log)) // /sse/offers/SGN/HAN?date=2025-11-01
	protectedMux.HandleFunc("/ws/runs", RunsWSHandler(d.Runs, d.Log))

	return auth.JWTMiddleware(publicMux, protectedMux, cfg, d.Log)
}
