package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/weather-bot/internal/domain"
	"github.com/ykvlv/weather-bot/internal/store"
	"github.com/ykvlv/weather-bot/internal/weather"
)

const defaultNotifyAt = "08:00"

// ensureSubscriber makes sure a subscriber row exists; if not, creates it with defaults.
// New subscribers start opted out and without a city.
func (r *Router) ensureSubscriber(ctx context.Context, chatID int64) (*domain.Subscriber, error) {
	s, err := r.repo.GetSubscriber(ctx, chatID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	s = &domain.Subscriber{
		ChatID:   chatID,
		NotifyAt: defaultNotifyAt,
	}
	if err := r.repo.UpsertSubscriber(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// --- Generic helpers ---

func (r *Router) sendText(ctx context.Context, chatID int64, text string) {
	if err := r.send(ctx, tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

func (r *Router) answerCallback(id, text string) {
	if _, err := r.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		r.log.Debug("answer callback failed", zap.Error(err))
	}
}

// weatherErrorText maps a provider error to a user-facing reply.
func (r *Router) weatherErrorText(city string, err error) string {
	if errors.Is(err, weather.ErrCityNotFound) {
		return fmt.Sprintf(cityNotFoundFmt, city)
	}
	r.log.Warn("weather request failed", zap.String("city", city), zap.Error(err))
	return weatherUnavailableText
}

func (r *Router) location(s *domain.Subscriber) string {
	return domain.ResolveLocation(s.TZ, r.opts.DefaultTZ).String()
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	if _, err := r.ensureSubscriber(ctx, chatID); err != nil {
		r.log.Error("ensureSubscriber failed", zap.Error(err))
		r.sendText(ctx, chatID, "Profile initialization error. Please try again later.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, startText)
	msg.ReplyMarkup = locationKeyboard()
	if err := r.send(ctx, msg); err != nil {
		r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	s, err := r.ensureSubscriber(ctx, chatID)
	if err != nil {
		r.log.Error("ensureSubscriber failed", zap.Error(err))
		r.sendText(ctx, chatID, "Error reading your settings.")
		return
	}

	city := s.City
	if city == "" {
		city = "not set"
	}
	tz := s.TZ
	if tz == "" {
		tz = r.opts.DefaultTZ.String() + " (default)"
	}
	enabled := "✅ Subscribed"
	if !s.Enabled {
		enabled = "⏸ Not subscribed"
	}
	last := "never"
	if s.LastSentAt != nil {
		last = domain.LocalizeTime(*s.LastSentAt, s.TZ, r.opts.DefaultTZ)
	}
	next := "—"
	if s.Enabled && s.City != "" {
		if at, err := domain.NextDigestAt(r.opts.Now().UTC(), *s, r.opts.DefaultTZ); err == nil {
			next = domain.LocalizeTime(at, s.TZ, r.opts.DefaultTZ)
		}
	}

	body := fmt.Sprintf("%s\n\n"+statusFmt, statusTitle, city, s.NotifyAt, tz, enabled, last, next)
	r.sendText(ctx, chatID, body)
}

// --- Weather requests ---

func (r *Router) handleWeather(ctx context.Context, chatID int64, city string) {
	if city == "" {
		s, err := r.ensureSubscriber(ctx, chatID)
		if err != nil {
			r.log.Error("ensureSubscriber failed", zap.Error(err))
			r.sendText(ctx, chatID, "Error reading your settings.")
			return
		}
		if s.City == "" {
			r.sendText(ctx, chatID, noCityText)
			return
		}
		city = s.City
	}
	r.replyCurrent(ctx, chatID, city)
}

// replyCurrent answers with current conditions and follow-up buttons.
func (r *Router) replyCurrent(ctx context.Context, chatID int64, city string) {
	cur, err := r.weather.Current(ctx, city)
	if err != nil {
		r.sendText(ctx, chatID, r.weatherErrorText(city, err))
		return
	}
	r.sendCurrent(ctx, chatID, cur)
}

func (r *Router) sendCurrent(ctx context.Context, chatID int64, cur weather.Current) {
	msg := tgbotapi.NewMessage(chatID, weather.FormatCurrent(cur))
	if kb, ok := weatherInlineKeyboard(cur.City); ok {
		msg.ReplyMarkup = kb
	}
	if err := r.send(ctx, msg); err != nil {
		r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

func (r *Router) handleLocation(ctx context.Context, chatID int64, lat, lon float64) {
	cur, err := r.weather.CurrentByCoords(ctx, lat, lon)
	if err != nil {
		r.sendText(ctx, chatID, r.weatherErrorText("your location", err))
		return
	}
	r.sendCurrent(ctx, chatID, cur)
}

func (r *Router) handleLocationAsCity(ctx context.Context, chatID int64, lat, lon float64) {
	city, err := r.weather.CityByCoords(ctx, lat, lon)
	if err != nil {
		r.sendText(ctx, chatID, r.weatherErrorText("your location", err))
		return
	}
	r.applyCity(ctx, chatID, city)
}

func (r *Router) handleEveningCallback(ctx context.Context, chatID int64, city, cbID string) {
	r.answerCallback(cbID, "")
	fc, err := r.weather.Forecast(ctx, city)
	if err != nil {
		r.sendText(ctx, chatID, r.weatherErrorText(city, err))
		return
	}
	r.sendText(ctx, chatID, weather.FormatEvening(fc))
}

func (r *Router) handleForecastCallback(ctx context.Context, chatID int64, city, cbID string) {
	r.answerCallback(cbID, "")
	fc, err := r.weather.Forecast(ctx, city)
	if err != nil {
		r.sendText(ctx, chatID, r.weatherErrorText(city, err))
		return
	}
	r.sendText(ctx, chatID, weather.FormatFiveDay(fc))
}

// --- City flow ---

func (r *Router) handleSetCity(ctx context.Context, chatID int64, city string) {
	if city == "" {
		r.setPending(chatID, pendingCity)
		r.sendText(ctx, chatID, askCityText)
		return
	}
	r.applyCity(ctx, chatID, city)
}

// applyCity validates city against the provider and stores its canonical name.
// A subscriber without a timezone inherits the city's current UTC offset.
func (r *Router) applyCity(ctx context.Context, chatID int64, city string) {
	city = strings.TrimSpace(city)
	if city == "" {
		r.sendText(ctx, chatID, askCityText)
		return
	}
	cur, err := r.weather.Current(ctx, city)
	if err != nil {
		r.sendText(ctx, chatID, r.weatherErrorText(city, err))
		return
	}

	s, err := r.ensureSubscriber(ctx, chatID)
	if err != nil {
		r.log.Error("ensureSubscriber failed", zap.Error(err))
		r.sendText(ctx, chatID, "Could not save city.")
		return
	}
	s.City = cur.City
	reply := "City saved: " + s.City
	if s.TZ == "" {
		s.TZ = domain.OffsetZoneName(cur.TZOffset)
		reply += "\nTimezone set to " + s.TZ + " (change with /settz)"
	}
	if err := r.repo.UpsertSubscriber(ctx, s); err != nil {
		r.log.Error("save city failed", zap.Error(err))
		r.sendText(ctx, chatID, "Could not save city.")
		return
	}
	if !s.Enabled {
		reply += "\n\n" + subscribeHintText
	}
	r.sendText(ctx, chatID, reply)
}

// --- Digest time flow ---

func (r *Router) handleSetTime(ctx context.Context, chatID int64, val string) {
	if val == "" {
		msg := tgbotapi.NewMessage(chatID, "Choose the daily digest time (or Custom):")
		msg.ReplyMarkup = timePresetsKeyboard()
		if err := r.send(ctx, msg); err != nil {
			r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
		}
		return
	}
	r.applyTime(ctx, chatID, val)
}

func (r *Router) handleTimeCallback(ctx context.Context, chatID int64, val, cbID string) {
	r.answerCallback(cbID, "")
	if val == "custom" {
		r.setPending(chatID, pendingTime)
		r.sendText(ctx, chatID, "Enter time as HH:MM, e.g. 07:30")
		return
	}
	r.applyTime(ctx, chatID, val)
}

func (r *Router) applyTime(ctx context.Context, chatID int64, val string) {
	at, err := domain.ParseTimeOfDay(val)
	if err != nil {
		r.sendText(ctx, chatID, "Invalid time. Example: 07:30")
		return
	}
	s, err := r.ensureSubscriber(ctx, chatID)
	if err != nil {
		r.log.Error("ensureSubscriber failed", zap.Error(err))
		r.sendText(ctx, chatID, "Could not save time.")
		return
	}
	s.NotifyAt = at.String()
	if err := r.repo.UpsertSubscriber(ctx, s); err != nil {
		r.log.Error("save time failed", zap.Error(err))
		r.sendText(ctx, chatID, "Could not save time.")
		return
	}
	r.sendText(ctx, chatID, fmt.Sprintf("Digest time updated: %s (%s)", s.NotifyAt, r.location(s)))
}

// --- Timezone flow ---

func (r *Router) handleSetTZ(ctx context.Context, chatID int64, val string) {
	if val == "" {
		msg := tgbotapi.NewMessage(chatID, "Choose a timezone or enter your own (Region/City or +HH:MM):")
		msg.ReplyMarkup = tzPresetsKeyboard()
		if err := r.send(ctx, msg); err != nil {
			r.log.Warn("send failed", zap.Int64("chatID", chatID), zap.Error(err))
		}
		return
	}
	r.applyTZ(ctx, chatID, val)
}

func (r *Router) handleTZCallback(ctx context.Context, chatID int64, val, cbID string) {
	r.answerCallback(cbID, "")
	switch val {
	case "custom":
		r.setPending(chatID, pendingTZ)
		r.sendText(ctx, chatID, "Enter timezone (e.g., Europe/Kyiv or +03:00):")
	case "city":
		r.applyCityTZ(ctx, chatID)
	default:
		r.applyTZ(ctx, chatID, val)
	}
}

func (r *Router) applyTZ(ctx context.Context, chatID int64, val string) {
	tz, err := domain.ValidateTZ(val)
	if err != nil {
		r.sendText(ctx, chatID, "Invalid timezone. Example: Europe/Kyiv or +03:00")
		return
	}
	r.saveTZ(ctx, chatID, tz)
}

// applyCityTZ stores the saved city's current UTC offset as the timezone.
func (r *Router) applyCityTZ(ctx context.Context, chatID int64) {
	s, err := r.ensureSubscriber(ctx, chatID)
	if err != nil {
		r.log.Error("ensureSubscriber failed", zap.Error(err))
		r.sendText(ctx, chatID, "Could not save timezone.")
		return
	}
	if s.City == "" {
		r.sendText(ctx, chatID, noCityText)
		return
	}
	off, err := r.weather.ZoneOffset(ctx, s.City)
	if err != nil {
		r.sendText(ctx, chatID, r.weatherErrorText(s.City, err))
		return
	}
	r.saveTZ(ctx, chatID, domain.OffsetZoneName(off))
}

func (r *Router) saveTZ(ctx context.Context, chatID int64, tz string) {
	s, err := r.ensureSubscriber(ctx, chatID)
	if err != nil {
		r.log.Error("ensureSubscriber failed", zap.Error(err))
		r.sendText(ctx, chatID, "Could not save timezone.")
		return
	}
	s.TZ = tz
	if err := r.repo.UpsertSubscriber(ctx, s); err != nil {
		r.log.Error("save timezone failed", zap.Error(err))
		r.sendText(ctx, chatID, "Could not save timezone.")
		return
	}
	r.sendText(ctx, chatID, "Timezone updated: "+tz)
}

// --- Subscribe / Unsubscribe ---

func (r *Router) handleSubscribe(ctx context.Context, chatID int64) {
	s, err := r.ensureSubscriber(ctx, chatID)
	if err != nil {
		r.log.Error("ensureSubscriber failed", zap.Error(err))
		r.sendText(ctx, chatID, "Failed to subscribe.")
		return
	}
	if s.City == "" {
		r.sendText(ctx, chatID, noCityText)
		return
	}
	if err := r.repo.SetEnabled(ctx, chatID, true); err != nil {
		r.log.Error("subscribe failed", zap.Error(err))
		r.sendText(ctx, chatID, "Failed to subscribe.")
		return
	}
	r.sendText(ctx, chatID, fmt.Sprintf(subscribedFmt, s.City, s.NotifyAt, r.location(s)))
}

func (r *Router) handleUnsubscribe(ctx context.Context, chatID int64) {
	if err := r.repo.SetEnabled(ctx, chatID, false); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.log.Error("unsubscribe failed", zap.Error(err))
		r.sendText(ctx, chatID, "Failed to unsubscribe.")
		return
	}
	r.sendText(ctx, chatID, unsubscribedText)
}

// --- Admin ---

func (r *Router) handleBroadcast(ctx context.Context, chatID int64, text string) {
	if r.opts.AdminChatID == 0 || chatID != r.opts.AdminChatID {
		r.sendText(ctx, chatID, unknownCommandText)
		return
	}
	if text == "" {
		r.sendText(ctx, chatID, "Usage: /broadcast <text>")
		return
	}
	ids, err := r.repo.ListChatIDs(ctx)
	if err != nil {
		r.log.Error("list chats failed", zap.Error(err))
		r.sendText(ctx, chatID, "Broadcast failed: cannot list chats.")
		return
	}

	var sent, failed int
	for _, id := range ids {
		if err := r.send(ctx, tgbotapi.NewMessage(id, text)); err != nil {
			r.log.Warn("broadcast send failed", zap.Int64("chatID", id), zap.Error(err))
			failed++
			continue
		}
		sent++
	}
	r.log.Info("broadcast finished", zap.Int("sent", sent), zap.Int("failed", failed))
	r.sendText(ctx, chatID, fmt.Sprintf("Broadcast finished: %d sent, %d failed.", sent, failed))
}

// --- Free-form dispatcher ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	switch r.getPending(chatID) {
	case pendingCity:
		r.clearPending(chatID)
		r.applyCity(ctx, chatID, text)
	case pendingTime:
		r.clearPending(chatID)
		r.applyTime(ctx, chatID, text)
	case pendingTZ:
		r.clearPending(chatID)
		r.applyTZ(ctx, chatID, text)
	default:
		// No pending flow: treat the text as a city name.
		r.replyCurrent(ctx, chatID, text)
	}
}
