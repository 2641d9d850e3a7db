package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"roombook/internal/availability"
	"roombook/internal/calendar"
	"roombook/internal/config"
	"roombook/internal/kv"
	"roombook/internal/reservas"
	"roombook/internal/rooms"
	"roombook/internal/slots"
)

func newReservationsClient() *reservas.Client {
	return reservas.NewClient(cfg.Reservations.BaseURL, cfg.Reservations.APIKey, cfg.ReservationsTimeout())
}

func newResolver() (*availability.Resolver, error) {
	catalog, err := slots.NewCatalog(cfg.Schedule())
	if err != nil {
		return nil, fmt.Errorf("slot schedule: %w", err)
	}
	return availability.NewResolver(catalog, cfg.Location()), nil
}

// loadRooms reads rooms.yaml, falling back to the built-in list when the
// file does not exist.
func loadRooms() (*rooms.Catalog, error) {
	rc, err := config.LoadRoomsConfig(cfg.RoomsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("path", cfg.RoomsPath()).Msg("rooms config not found, using built-in rooms")
			return rooms.NewCatalog(rooms.Defaults()), nil
		}
		return nil, err
	}
	return rooms.NewCatalog(rc.Rooms), nil
}

// newStore connects to redis when configured, otherwise keeps state in memory.
func newStore() (kv.Store, *redis.Client) {
	if cfg.Redis.Address == "" {
		logger.Warn().Msg("redis not configured, event references and dashboards are kept in memory")
		return kv.NewMemoryStore(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	return kv.NewRedisStore(rdb, "roombook:"), rdb
}

// newCalendar returns the configured provider and, for Graph, the client
// used for directory search.
func newCalendar(ctx context.Context) (calendar.Provider, *calendar.Graph, error) {
	switch cfg.CalendarProvider() {
	case "none":
		return calendar.None{}, nil, nil
	case "google":
		var opts []option.ClientOption
		if cfg.Calendar.GoogleCredsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Calendar.GoogleCredsFile))
		}
		g, err := calendar.NewGoogle(ctx, cfg.Calendar.GoogleCalendar, opts...)
		if err != nil {
			return nil, nil, err
		}
		return g, nil, nil
	default:
		g := calendar.NewGraph(calendar.GraphConfig{
			BaseURL:        cfg.GraphBaseURL(),
			TenantID:       cfg.Graph.TenantID,
			ClientID:       cfg.Graph.ClientID,
			ClientSecret:   cfg.Graph.ClientSecret,
			Mailbox:        cfg.Graph.Mailbox,
			RequestsPerSec: cfg.GraphRate(),
			Timeout:        cfg.GraphTimeout(),
		})
		return g, g, nil
	}
}
