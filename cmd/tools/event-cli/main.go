package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/blockroll/internal/eventbus"
	"github.com/annel0/blockroll/internal/protocol"
)

const defaultNATSURL = "nats://127.0.0.1:4222"

func main() {
	var (
		natsURL    = flag.String("nats", envOr("NATS_URL", defaultNATSURL), "NATS server URL")
		stream     = flag.String("stream", eventbus.DefaultStream, "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sessions   = flag.String("sessions", "", "Session IDs filter (comma-separated)")
		limit      = flag.Int("limit", 0, "Stop after N events (0 - unlimited)")
		window     = flag.Duration("for", 30*time.Second, "How long to collect stats")
	)
	flag.Parse()

	if *command == "types" {
		showTypes()
		return
	}

	types := parseStringList(*eventTypes)
	for _, t := range types {
		if !protocol.EventType(t).Known() {
			log.Fatalf("❌ Unknown event type: %s (see -cmd types)", t)
		}
	}

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 0)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := &TailOptions{
		EventTypes: types,
		Sessions:   parseStringList(*sessions),
		Limit:      *limit,
	}

	switch *command {
	case "tail":
		if err := tailEvents(ctx, bus, opts); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		ctx, stop := context.WithTimeout(ctx, *window)
		defer stop()
		if err := showStats(ctx, bus, opts); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
}

type TailOptions struct {
	EventTypes []string
	Sessions   []string
	Limit      int
}

// collect подписывается на шину и передает в fn подходящие события,
// пока не отменен ctx или не набран лимит
func collect(ctx context.Context, bus eventbus.EventBus, opts *TailOptions, fn func(*eventbus.Envelope, *protocol.GameEvent)) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		count int
	)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: opts.EventTypes}, func(_ context.Context, env *eventbus.Envelope) {
		ev, err := protocol.DecodeEvent(env.Payload)
		if err != nil {
			fmt.Printf("⚠️  %s: undecodable payload: %v\n", env.ID, err)
			return
		}
		if !matchSession(ev, opts.Sessions) {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if opts.Limit > 0 && count >= opts.Limit {
			return
		}
		fn(env, ev)
		count++
		if opts.Limit > 0 && count >= opts.Limit {
			cancel()
		}
	})
	if err != nil {
		return 0, err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	mu.Lock()
	defer mu.Unlock()
	return count, nil
}

// tailEvents выводит события в реальном времени
func tailEvents(ctx context.Context, bus eventbus.EventBus, opts *TailOptions) error {
	fmt.Printf("🎬 Tailing events (limit: %d)\n", opts.Limit)

	n, err := collect(ctx, bus, opts, func(env *eventbus.Envelope, ev *protocol.GameEvent) {
		fmt.Println(formatEvent(env, ev))
	})
	if err != nil {
		return err
	}
	fmt.Printf("\n📊 Total events: %d\n", n)
	return nil
}

// showStats считает события по типам и уровням за окно наблюдения
func showStats(ctx context.Context, bus eventbus.EventBus, opts *TailOptions) error {
	fmt.Println("📊 Event statistics (collecting...)")

	st := newStats()
	n, err := collect(ctx, bus, opts, func(_ *eventbus.Envelope, ev *protocol.GameEvent) {
		st.add(ev)
	})
	if err != nil {
		return err
	}

	fmt.Printf("Total events: %d\n", n)
	fmt.Println("\nBy event type:")
	for _, k := range sortedKeys(st.byType) {
		fmt.Printf("  %s: %d events\n", k, st.byType[k])
	}
	fmt.Println("\nCompleted levels:")
	for _, k := range sortedKeys(st.completed) {
		fmt.Printf("  %s: %d\n", k, st.completed[k])
	}
	return nil
}

// showTypes выводит известные типы событий
func showTypes() {
	fmt.Println("📋 Available event types")
	for _, t := range protocol.EventTypes {
		fmt.Printf("  %s  (subject %s)\n", t, eventbus.Subject(string(t)))
	}
}

type stats struct {
	byType    map[string]int
	completed map[string]int
}

func newStats() *stats {
	return &stats{byType: make(map[string]int), completed: make(map[string]int)}
}

func (s *stats) add(ev *protocol.GameEvent) {
	s.byType[string(ev.Type)]++
	if ev.Type == protocol.EventLevelCompleted {
		s.completed[ev.LevelID]++
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatEvent выводит событие в читаемом формате
func formatEvent(env *eventbus.Envelope, ev *protocol.GameEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s/%s [%s] tick=%d",
		env.Timestamp.Format("15:04:05"),
		ev.LevelID,
		ev.SessionID,
		ev.Type,
		ev.Tick)

	// Добавляем детали в зависимости от типа события
	switch ev.Type {
	case protocol.EventMoveAccepted:
		fmt.Fprintf(&b, " dir=%s moves=%d", ev.Direction, ev.Moves)
	case protocol.EventMoveRejected:
		fmt.Fprintf(&b, " dir=%s reason=%q", ev.Direction, ev.Reason)
	case protocol.EventTransitionCompleted:
		fmt.Fprintf(&b, " dir=%s pose=%s", ev.Direction, ev.Pose)
	case protocol.EventLevelCompleted:
		fmt.Fprintf(&b, " 🏁 moves=%d", ev.Moves)
	}
	return b.String()
}

func matchSession(ev *protocol.GameEvent, sessions []string) bool {
	if len(sessions) == 0 {
		return true
	}
	for _, s := range sessions {
		if s == ev.SessionID {
			return true
		}
	}
	return false
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
