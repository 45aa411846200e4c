package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ykvlv/weather-bot/internal/domain"
	"github.com/ykvlv/weather-bot/internal/store"
	"github.com/ykvlv/weather-bot/internal/weather"
)

type fakeBot struct {
	mu        sync.Mutex
	sent      []tgbotapi.MessageConfig
	callbacks int
	failFor   map[int64]bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if b.failFor[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	b.sent = append(b.sent, msg)
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.sent)
	return b.sent[len(b.sent)-1]
}

type fakeWeather struct{}

var kyivNow = weather.Current{City: "Kyiv", Country: "UA", Description: "clear sky", TempC: 5, TZOffset: 7200}

func (fakeWeather) Current(_ context.Context, city string) (weather.Current, error) {
	if strings.EqualFold(city, "kyiv") {
		return kyivNow, nil
	}
	if strings.HasPrefix(city, "Llanfair") {
		return weather.Current{City: city, Country: "GB", Description: "drizzle"}, nil
	}
	if city == "down" {
		return weather.Current{}, errors.New("503")
	}
	return weather.Current{}, weather.ErrCityNotFound
}

func (fakeWeather) CurrentByCoords(context.Context, float64, float64) (weather.Current, error) {
	return kyivNow, nil
}

func (fakeWeather) CityByCoords(context.Context, float64, float64) (string, error) {
	return "Kyiv", nil
}

func (fakeWeather) Forecast(_ context.Context, city string) (weather.Forecast, error) {
	return weather.Forecast{City: city, TZOffset: 7200, Slots: []weather.Slot{
		{Time: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC), TempC: 10, TempMinC: 9, TempMaxC: 10, Description: "rain"},
	}}, nil
}

func (fakeWeather) ZoneOffset(context.Context, string) (int, error) { return 7200, nil }

const adminID = 999

type fixture struct {
	bot    *fakeBot
	repo   store.Repo
	router *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := store.OpenJSONFile(filepath.Join(t.TempDir(), "subscribers.json"))
	require.NoError(t, err)

	bot := &fakeBot{failFor: make(map[int64]bool)}
	r := NewRouter(bot, zap.NewNop(), repo, fakeWeather{}, Options{
		AdminChatID: adminID,
		Now:         func() time.Time { return time.Date(2025, time.March, 10, 5, 0, 0, 0, time.UTC) },
	})
	return &fixture{bot: bot, repo: repo, router: r}
}

func (f *fixture) text(chatID int64, text string) {
	msg := &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: chatID}}
	if strings.HasPrefix(text, "/") {
		n := len(text)
		if i := strings.IndexByte(text, ' '); i >= 0 {
			n = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	f.router.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (f *fixture) callback(chatID int64, data string) {
	f.router.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}})
}

func (f *fixture) subscriber(t *testing.T, chatID int64) *domain.Subscriber {
	t.Helper()
	s, err := f.repo.GetSubscriber(context.Background(), chatID)
	require.NoError(t, err)
	return s
}

func TestDeliver_EscapesAndBoldsHeader(t *testing.T) {
	f := newFixture(t)

	err := f.router.Deliver(context.Background(), 42, "Daily digest\n\nWeather in Kyiv, UA:\nRain (12.5°C)!")
	require.NoError(t, err)

	msg := f.bot.last(t)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.Equal(t, "*Daily digest*\n\nWeather in Kyiv, UA:\nRain \\(12\\.5°C\\)\\!", msg.Text)
}

func TestDeliver_ReturnsSendError(t *testing.T) {
	f := newFixture(t)
	f.bot.failFor[42] = true

	err := f.router.Deliver(context.Background(), 42, "hi")
	require.Error(t, err)
}

func TestDeliver_WaitsForRateLimit(t *testing.T) {
	f := newFixture(t)
	f.router = NewRouter(f.bot, zap.NewNop(), f.repo, fakeWeather{}, Options{SendRate: 0.001})

	require.NoError(t, f.router.Deliver(context.Background(), 1, "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, f.router.Deliver(ctx, 2, "second"))
	assert.Len(t, f.bot.sent, 1)
}

func TestStart_CreatesOptedOutSubscriber(t *testing.T) {
	f := newFixture(t)
	f.text(1, "/start")

	s := f.subscriber(t, 1)
	assert.False(t, s.Enabled)
	assert.Equal(t, "08:00", s.NotifyAt)
	assert.Empty(t, s.City)
	assert.IsType(t, tgbotapi.ReplyKeyboardMarkup{}, f.bot.last(t).ReplyMarkup)
}

func TestSetCity_StoresCanonicalNameAndCityOffset(t *testing.T) {
	f := newFixture(t)
	f.text(1, "/setcity kyiv")

	s := f.subscriber(t, 1)
	assert.Equal(t, "Kyiv", s.City)
	assert.Equal(t, "+02:00", s.TZ)
	assert.Contains(t, f.bot.last(t).Text, "City saved: Kyiv")
}

func TestSetCity_KeepsExistingTimezone(t *testing.T) {
	f := newFixture(t)
	f.text(1, "/settz Europe/Kyiv")
	f.text(1, "/setcity kyiv")

	assert.Equal(t, "Europe/Kyiv", f.subscriber(t, 1).TZ)
}

func TestSetCity_PendingFlow(t *testing.T) {
	f := newFixture(t)
	f.text(1, "/setcity")
	assert.Equal(t, askCityText, f.bot.last(t).Text)

	f.text(1, "Kyiv")
	assert.Equal(t, "Kyiv", f.subscriber(t, 1).City)

	// The flow is finished; free text is a weather query again.
	f.text(1, "Kyiv")
	assert.Contains(t, f.bot.last(t).Text, "Weather in Kyiv, UA")
}

func TestSetCity_LocationWhilePending(t *testing.T) {
	f := newFixture(t)
	f.text(1, "/setcity")
	f.router.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 1},
		Location: &tgbotapi.Location{Latitude: 50.45, Longitude: 30.52},
	}})

	assert.Equal(t, "Kyiv", f.subscriber(t, 1).City)
}

func TestSetCity_UnknownCity(t *testing.T) {
	f := newFixture(t)
	f.text(1, "/setcity Atlantis")

	assert.Contains(t, f.bot.last(t).Text, "not found")
	_, err := f.repo.GetSubscriber(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFreeText_ProviderDown(t *testing.T) {
	f := newFixture(t)
	f.text(1, "down")
	assert.Equal(t, weatherUnavailableText, f.bot.last(t).Text)
}

func TestFreeText_CurrentWeatherWithButtons(t *testing.T) {
	f := newFixture(t)
	f.text(1, "kyiv")

	msg := f.bot.last(t)
	assert.Contains(t, msg.Text, "Weather in Kyiv, UA")
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "evening:Kyiv", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "forecast:Kyiv", *kb.InlineKeyboard[0][1].CallbackData)
}

const longCity = "Llanfairpwllgwyngyllgogerychwyrndrobwllllantysiliogogogoch"

func TestWeatherInlineKeyboard_RespectsPayloadLimit(t *testing.T) {
	kb, ok := weatherInlineKeyboard(longCity)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 1)
	assert.Equal(t, "save:"+longCity, *kb.InlineKeyboard[0][0].CallbackData)

	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			assert.LessOrEqual(t, len(*b.CallbackData), maxCallbackData)
		}
	}

	_, ok = weatherInlineKeyboard(strings.Repeat("x", maxCallbackData))
	assert.False(t, ok)
}

func TestFreeText_LongCityStillAnswers(t *testing.T) {
	f := newFixture(t)
	f.text(1, longCity)

	msg := f.bot.last(t)
	assert.Contains(t, msg.Text, "Weather in "+longCity)
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			assert.LessOrEqual(t, len(*b.CallbackData), maxCallbackData)
		}
	}
}

func TestCallbacks_Forecasts(t *testing.T) {
	f := newFixture(t)

	f.callback(1, "evening:Kyiv")
	assert.Contains(t, f.bot.last(t).Text, "Forecast until evening for Kyiv")

	f.callback(1, "forecast:Kyiv")
	assert.Contains(t, f.bot.last(t).Text, "5-day forecast for Kyiv")
	assert.Equal(t, 2, f.bot.callbacks)
}

func TestSubscribe_RequiresCity(t *testing.T) {
	f := newFixture(t)
	f.text(1, "/subscribe")
	assert.Equal(t, noCityText, f.bot.last(t).Text)
	assert.False(t, f.subscriber(t, 1).Enabled)

	f.text(1, "/setcity Kyiv")
	f.text(1, "/subscribe")
	assert.True(t, f.subscriber(t, 1).Enabled)
	assert.Contains(t, f.bot.last(t).Text, "Subscribed")

	f.text(1, "/unsubscribe")
	assert.False(t, f.subscriber(t, 1).Enabled)
}

func TestSetTime(t *testing.T) {
	f := newFixture(t)

	f.callback(1, "time:07:30")
	assert.Equal(t, "07:30", f.subscriber(t, 1).NotifyAt)

	f.text(1, "/settime 25:00")
	assert.Contains(t, f.bot.last(t).Text, "Invalid time")
	assert.Equal(t, "07:30", f.subscriber(t, 1).NotifyAt)

	f.callback(1, "time:custom")
	f.text(1, "6:05")
	assert.Equal(t, "06:05", f.subscriber(t, 1).NotifyAt)
}

func TestSetTZ(t *testing.T) {
	f := newFixture(t)

	f.text(1, "/settz Not/AZone")
	assert.Contains(t, f.bot.last(t).Text, "Invalid timezone")

	f.callback(1, "tz:custom")
	f.text(1, "utc+3")
	assert.Equal(t, "+03:00", f.subscriber(t, 1).TZ)

	f.callback(1, "tz:city")
	assert.Equal(t, noCityText, f.bot.last(t).Text)

	f.text(1, "/setcity Kyiv")
	f.callback(1, "tz:city")
	assert.Equal(t, "+02:00", f.subscriber(t, 1).TZ)
}

func TestSettingsUpdateKeepsLastSent(t *testing.T) {
	f := newFixture(t)
	sent := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	require.NoError(t, f.repo.UpsertSubscriber(context.Background(), &domain.Subscriber{
		ChatID: 1, Enabled: true, City: "Kyiv", NotifyAt: "08:00", TZ: "Europe/Kyiv", LastSentAt: &sent,
	}))

	f.text(1, "/settime 09:00")

	s := f.subscriber(t, 1)
	assert.Equal(t, "09:00", s.NotifyAt)
	require.NotNil(t, s.LastSentAt)
	assert.True(t, s.LastSentAt.Equal(sent))
}

func TestStatus_ShowsNextDigest(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.UpsertSubscriber(context.Background(), &domain.Subscriber{
		ChatID: 1, Enabled: true, City: "Kyiv", NotifyAt: "08:00", TZ: "Europe/Kyiv",
	}))

	f.text(1, "/status")

	body := f.bot.last(t).Text
	assert.Contains(t, body, "• City: Kyiv")
	assert.Contains(t, body, "• Last sent: never")
	// 05:00 UTC is 07:00 in Kyiv.
	assert.Contains(t, body, "• Next: 2025-03-10 08:00")
}

func TestBroadcast_AdminOnly(t *testing.T) {
	f := newFixture(t)
	for _, id := range []int64{1, 2, 3} {
		f.text(id, "/start")
	}
	f.bot.failFor[2] = true
	f.bot.sent = nil

	f.text(1, "/broadcast hello")
	assert.Equal(t, unknownCommandText, f.bot.last(t).Text)

	f.bot.sent = nil
	f.text(adminID, "/broadcast maintenance tonight")

	var got []int64
	for _, m := range f.bot.sent {
		if m.Text == "maintenance tonight" {
			got = append(got, m.ChatID)
		}
	}
	assert.Equal(t, []int64{1, 3}, got)
	assert.Equal(t, "Broadcast finished: 2 sent, 1 failed.", f.bot.last(t).Text)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	f.text(1, "/nope")
	assert.Equal(t, unknownCommandText, f.bot.last(t).Text)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c \[x\]\(y\) 1\.5\-2 \!`, escapeMarkdown("a_b*c [x](y) 1.5-2 !"))
	assert.Equal(t, `back\\slash`, escapeMarkdown(`back\slash`))
}
