package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UI texts in English
const (
	startText = "👋 I am a weather bot.\n\n" +
		"Send me a city name or share your location to get the current weather.\n" +
		"Use /setcity and /subscribe to receive a daily digest. /help lists all commands."
	helpText = "Commands:\n" +
		"/weather [city] - current weather\n" +
		"/setcity [city] - save your city\n" +
		"/settime [HH:MM] - daily digest time\n" +
		"/settz [zone] - your timezone\n" +
		"/subscribe - enable the daily digest\n" +
		"/unsubscribe - disable it\n" +
		"/status - your settings\n\n" +
		"Or just send a city name."
	statusTitle            = "🧾 Your current settings:"
	statusFmt              = "• City: %s\n• Digest time: %s\n• TZ: %s\n• Digest: %s\n• Last sent: %s\n• Next: %s\n"
	askCityText            = "Send a city name (e.g. Kyiv or London,GB) or share your location:"
	noCityText             = "No city saved yet. Use /setcity first."
	subscribeHintText      = "Use /subscribe to get a daily digest."
	subscribedFmt          = "Subscribed ✅ Daily digest for %s at %s (%s)."
	unsubscribedText       = "Unsubscribed ⏸ You will not receive the daily digest."
	cityNotFoundFmt        = "City %q not found. Check the spelling and try again."
	weatherUnavailableText = "Weather service is unavailable right now. Please try later."
	unknownCommandText     = "Unknown command. See /help."
)

// locationKeyboard offers a one-tap location share.
func locationKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonLocation("📍 Send location"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/help"),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// maxCallbackData is Telegram's limit for inline button payloads, in bytes.
const maxCallbackData = 64

// weatherInlineKeyboard offers follow-ups for city. Buttons whose payload would
// exceed maxCallbackData are left out; ok is false when none fit.
func weatherInlineKeyboard(city string) (kb tgbotapi.InlineKeyboardMarkup, ok bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range [][][2]string{
		{{"🌆 Until evening", "evening:"}, {"📅 5 days", "forecast:"}},
		{{"📌 Save as my city", "save:"}},
	} {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			data := b[1] + city
			if len(data) > maxCallbackData {
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b[0], data))
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return kb, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func timePresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("06:00", "time:06:00"),
			tgbotapi.NewInlineKeyboardButtonData("07:00", "time:07:00"),
			tgbotapi.NewInlineKeyboardButtonData("08:00", "time:08:00"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("09:00", "time:09:00"),
			tgbotapi.NewInlineKeyboardButtonData("18:00", "time:18:00"),
			tgbotapi.NewInlineKeyboardButtonData("21:00", "time:21:00"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "time:custom"),
		),
	)
}

func tzPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Europe/Kyiv", "tz:Europe/Kyiv"),
			tgbotapi.NewInlineKeyboardButtonData("Europe/London", "tz:Europe/London"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("America/New_York", "tz:America/New_York"),
			tgbotapi.NewInlineKeyboardButtonData("UTC", "tz:UTC"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏙 From my city", "tz:city"),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "tz:custom"),
		),
	)
}

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// escapeMarkdown escapes every MarkdownV2 special character in text.
func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}
