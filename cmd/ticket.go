package cmd

import (
	"context"
	"event-ticket/common/constant"
	commonJetstream "event-ticket/common/jetstream"
	"event-ticket/inbound/event"
	"event-ticket/outbound/store"
	"github.com/nats-io/nats.go/jetstream"
	"log"
	"log/slog"
	"os"
	"runtime/pprof"
	"time"
)

func runQueueTicketCmd(ctx context.Context) {
	cfg := newCfg("env")

	if cfg.GetString("env") == "dev" {
		cpu, err := os.Create("ticket-cpu.prof")
		if err != nil {
			log.Fatalf("could not create CPU profile: %v", err)
		}
		defer cpu.Close()

		err = pprof.StartCPUProfile(cpu)
		if err != nil {
			log.Fatalf("could not start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()

		mem, err := os.Create("ticket-mem.prof")
		if err != nil {
			log.Fatalf("could not create memory profile: %v", err)
		}
		defer mem.Close()

		err = pprof.WriteHeapProfile(mem)
		if err != nil {
			log.Fatalf("could not write memory profile: %v", err)
		}
		defer mem.Close()
	}

	db := newDb(cfg)
	defer db.Close()

	querier := store.New(db)

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	commonJetstream.CreateQueueStream(ctx, js)

	st, err := js.Stream(ctx, constant.QueueStreamName)
	if err != nil {
		log.Fatalln("failed to get stream", err)
	}

	ticketEvent := event.TicketEvent{
		Db:        db,
		Querier:   querier,
		Publisher: js,
		Timeout:   cfg.GetDuration("queue.ticket.timeout"),
		TimeNow:   time.Now,
	}

	cons, err := st.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "consumer:ticket",
		FilterSubject: constant.TicketWildcard,
		MaxDeliver:    cfg.GetInt("queue.ticket.max_deliver"),
		AckWait:       cfg.GetDuration("queue.ticket.ack_wait"),
	})
	if err != nil {
		log.Fatalln("failed to create consumer", err)
	}

	iter, err := cons.Messages()
	if err != nil {
		panic(err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := iter.Next()
				if err != nil && err != jetstream.ErrMsgIteratorClosed {
					slog.ErrorContext(ctx, "Error fetching message", slog.Any(constant.LogFieldErr, err))
					continue
				}

				if msg == nil {
					continue
				}

				var eventErr error
				switch msg.Subject() {
				case constant.SubjectSettlePayment:
					eventErr = ticketEvent.SettleHandler(ctx, msg.Data())
				case constant.SubjectFailPayment:
					eventErr = ticketEvent.FailHandler(ctx, msg.Data())
				}

				if eventErr != nil {
					msg.NakWithDelay(1 * time.Second)
					continue
				}

				if err := msg.Ack(); err != nil {
					slog.ErrorContext(ctx, "Error acknowledging message",
						slog.Any(constant.LogFieldErr, err),
						slog.Any(constant.LogFieldPayload, string(msg.Data())),
						slog.String("subject", msg.Subject()),
					)
					continue
				}
			}
		}
	}()

	slog.InfoContext(ctx, "ticket queue consumer started")

	<-ctx.Done()

	iter.Stop()

	slog.InfoContext(ctx, "ticket queue consumer stopped")
}
