// Demo wires the full command pipeline against in-memory stores and walks
// one register/dispatch round trip. Useful for exploring the flow without
// Postgres or a broker.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/registry/internal/locations"
	"github.com/mcdev12/registry/internal/outbox"
	"github.com/mcdev12/registry/internal/pipeline"
	"github.com/mcdev12/registry/internal/store"
	"github.com/mcdev12/registry/internal/tenant"
	"github.com/mcdev12/registry/internal/uow"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	clock := clockwork.NewRealClock()
	locationDB := store.NewMemoryDB(clock)
	outboxDB := outbox.NewMemoryDB(clock)

	factory := uow.NewMemoryFactory(locationDB, outboxDB)
	app := locations.NewApp(pipeline.New(factory))

	ctx := context.Background()
	ctx, err := tenant.WithTenant(ctx, "ProductA")
	if err != nil {
		log.Fatal().Err(err).Msg("bind tenant")
	}
	ctx = tenant.WithActor(ctx, "demo-user")

	loc, err := app.RegisterLocation(ctx, locations.RegisterLocationRequest{
		Code:   "LOC-001",
		Name:   "Main Warehouse",
		Region: "eu-west",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("register location")
	}
	log.Info().
		Str("id", loc.ID.String()).
		Str("code", loc.Code).
		Str("tenant_id", loc.Tenant.TenantID).
		Msg("location registered")

	// Drain the outbox once with the mock sink.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	worker := outbox.NewWorker(
		outboxDB,
		outbox.NewMockPublisher(logger),
		outbox.DefaultConfig(),
		clock,
		logger,
		nil,
	)
	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start worker")
	}
	// Stop waits for the immediate first cycle to finish.
	if err := worker.Stop(); err != nil {
		log.Fatal().Err(err).Msg("stop worker")
	}

	for _, rec := range outboxDB.All() {
		log.Info().
			Str("event_id", rec.ID.String()).
			Str("event_type", rec.EventType).
			Str("status", string(rec.Status)).
			Str("tenant_header", rec.Headers[outbox.TenantHeader]).
			Msg("outbox record")
	}
}
