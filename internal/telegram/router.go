// Package telegram turns bot updates into weather replies and settings changes,
// and delivers scheduled digests.
package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ykvlv/weather-bot/internal/store"
	"github.com/ykvlv/weather-bot/internal/weather"
)

// Pending state keys used in conversational flows.
const (
	pendingCity = "await_city"
	pendingTime = "await_time"
	pendingTZ   = "await_tz"
)

// BotAPI is the part of tgbotapi.BotAPI the router uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// WeatherService answers interactive weather requests.
type WeatherService interface {
	Current(ctx context.Context, city string) (weather.Current, error)
	CurrentByCoords(ctx context.Context, lat, lon float64) (weather.Current, error)
	CityByCoords(ctx context.Context, lat, lon float64) (string, error)
	Forecast(ctx context.Context, city string) (weather.Forecast, error)
	ZoneOffset(ctx context.Context, city string) (int, error)
}

// Options configures a Router.
type Options struct {
	AdminChatID int64          // 0 disables admin features
	DefaultTZ   *time.Location // zone shown for subscribers without one
	SendRate    float64        // messages per second across all chats
	Now         func() time.Time
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	bot     BotAPI
	log     *zap.Logger
	repo    store.Repo
	weather WeatherService
	limiter *rate.Limiter
	opts    Options

	state map[int64]string // chatID -> pending state
	mu    sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot BotAPI, log *zap.Logger, repo store.Repo, wx WeatherService, opts Options) *Router {
	if opts.DefaultTZ == nil {
		opts.DefaultTZ = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	return &Router{
		bot:     bot,
		log:     log,
		repo:    repo,
		weather: wx,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		state:   make(map[int64]string),
	}
}

// setPending sets a pending state for a chat (non-persistent, in-memory).
func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

// getPending returns current pending state for a chat.
func (r *Router) getPending(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

// clearPending clears a pending state for a chat.
func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID

		if msg.Location != nil {
			lat, lon := msg.Location.Latitude, msg.Location.Longitude
			if r.getPending(chatID) == pendingCity {
				r.clearPending(chatID)
				r.handleLocationAsCity(ctx, chatID, lat, lon)
				return
			}
			r.handleLocation(ctx, chatID, lat, lon)
			return
		}

		text := strings.TrimSpace(msg.Text)
		if msg.IsCommand() {
			// Any command abandons an unfinished flow.
			r.clearPending(chatID)
			args := strings.TrimSpace(msg.CommandArguments())

			switch msg.Command() {
			case "start":
				r.handleStart(ctx, chatID)
			case "help":
				r.sendText(ctx, chatID, helpText)
			case "weather":
				r.handleWeather(ctx, chatID, args)
			case "status":
				r.handleStatus(ctx, chatID)
			case "setcity":
				r.handleSetCity(ctx, chatID, args)
			case "settime":
				r.handleSetTime(ctx, chatID, args)
			case "settz":
				r.handleSetTZ(ctx, chatID, args)
			case "subscribe":
				r.handleSubscribe(ctx, chatID)
			case "unsubscribe":
				r.handleUnsubscribe(ctx, chatID)
			case "broadcast":
				r.handleBroadcast(ctx, chatID, args)
			default:
				r.sendText(ctx, chatID, unknownCommandText)
			}
			return
		}

		if text != "" {
			r.handleFreeForm(ctx, chatID, text)
		}
		return
	}

	// Callback queries (inline buttons)
	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		if cb.Message == nil {
			return
		}
		chatID := cb.Message.Chat.ID
		kind, arg, _ := strings.Cut(cb.Data, ":")

		switch kind {
		case "evening":
			r.handleEveningCallback(ctx, chatID, arg, cb.ID)
		case "forecast":
			r.handleForecastCallback(ctx, chatID, arg, cb.ID)
		case "save":
			r.answerCallback(cb.ID, "")
			r.applyCity(ctx, chatID, arg)
		case "time":
			r.handleTimeCallback(ctx, chatID, arg, cb.ID)
		case "tz":
			r.handleTZCallback(ctx, chatID, arg, cb.ID)
		default:
			r.answerCallback(cb.ID, "")
		}
	}
}

// Deliver sends a scheduled digest. The first line is rendered bold; the rest
// is escaped for MarkdownV2. Deliver blocks on the shared send rate limit.
func (r *Router) Deliver(ctx context.Context, chatID int64, content string) error {
	head, body, _ := strings.Cut(content, "\n")
	text := "*" + escapeMarkdown(head) + "*"
	if body != "" {
		text += "\n" + escapeMarkdown(body)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	return r.send(ctx, msg)
}

// NotifyAdmin sends text to the admin chat, if one is configured.
func (r *Router) NotifyAdmin(ctx context.Context, text string) {
	if r.opts.AdminChatID == 0 {
		return
	}
	if err := r.send(ctx, tgbotapi.NewMessage(r.opts.AdminChatID, text)); err != nil {
		r.log.Warn("admin notice failed", zap.Error(err))
	}
}

// send waits for the rate limiter and sends c.
func (r *Router) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := r.bot.Send(c)
	return err
}
