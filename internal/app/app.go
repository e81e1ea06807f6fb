package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/booking_engine/internal/config"
	"github.com/Freeeeeet/booking_engine/internal/consumer"
	"github.com/Freeeeeet/booking_engine/internal/notify"
	"github.com/Freeeeeet/booking_engine/internal/repository"
	"github.com/Freeeeeet/booking_engine/internal/repository/memory"
	"github.com/Freeeeeet/booking_engine/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App собирает хранилище, сервисы и фоновые задачи движка
type App struct {
	Availability *service.AvailabilityService
	Bookings     *service.BookingService
	Groups       *service.GroupBookingService
	Sessions     *service.SessionService

	cfg       *config.Config
	logger    *zap.Logger
	pool      *pgxpool.Pool
	amqp      *notify.AMQPNotifier
	payments  *consumer.PaymentConsumer
	scheduler *Scheduler
}

// New подключается к хранилищу и брокеру согласно конфигурации
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var notifier service.Notifier = notify.NewLogNotifier(logger)
	if cfg.AMQPURL != "" {
		if a.amqp, err = notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect notifier: %w", err)
		}
		notifier = a.amqp
	}

	policy := service.PaymentPolicy{Required: cfg.PaymentRequired()}
	a.Availability = service.NewAvailabilityService(store, logger)
	a.Bookings = service.NewBookingService(store, policy, notifier, logger)
	a.Groups = service.NewGroupBookingService(store, notifier, logger)
	a.Sessions = service.NewSessionService(store, notifier, logger)

	if cfg.AMQPURL != "" {
		a.payments, err = consumer.NewPaymentConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.PaymentQueue, a.Bookings, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect payment consumer: %w", err)
		}
	}

	a.scheduler = NewScheduler(a.Groups, a.Bookings, cfg.ReminderInterval, cfg.SweepInterval, logger)

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.Storage == config.StorageMemory {
		a.logger.Warn("Using in-memory storage, state is lost on exit")
		return memory.New(), nil
	}

	pool, err := pgxpool.New(ctx, a.cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	a.pool = pool

	migrator, err := NewMigrator(pool, a.cfg.MigrationsDir, a.logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer migrator.Close()

	if err := migrator.Run(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return repository.NewPgStore(pool), nil
}

// Run запускает фоновые задачи и потребителя платежей и блокируется до отмены ctx
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.scheduler.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		a.scheduler.Stop()
		return nil
	})

	if a.payments != nil {
		g.Go(func() error {
			return a.payments.Run(ctx)
		})
	}

	a.logger.Info("Booking engine started",
		zap.String("storage", a.cfg.Storage),
		zap.Bool("broker", a.cfg.AMQPURL != ""),
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close освобождает соединения
func (a *App) Close() {
	if a.payments != nil {
		a.payments.Close()
	}
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Warn("Failed to close notifier", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
