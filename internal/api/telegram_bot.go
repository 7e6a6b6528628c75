// Package api provides handlers for external APIs and interfaces
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abelzeko/water-dashboard/internal/charts"
	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/abelzeko/water-dashboard/internal/export"
	"github.com/abelzeko/water-dashboard/internal/integration"
	"github.com/abelzeko/water-dashboard/internal/integration/openai"
	"github.com/abelzeko/water-dashboard/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const helpText = "Available commands:\n" +
	"/start - Start the bot\n" +
	"/stations - Show the list of monitoring stations\n" +
	"/summary [from] [to] [stations] - Show statistics for a selection\n" +
	"/chart <name> [from] [to] [stations] - Draw a chart\n" +
	"/export [csv|xlsx] [from] [to] [stations] - Download the filtered rows\n" +
	"/report [from] [to] [stations] - Download the full report as Markdown\n" +
	"/help - Show this help message\n\n" +
	"Dates are YYYY-MM-DD, stations are separated by commas.\n" +
	"Example: /summary 2023-01-01 2023-06-30 Station A, Station B"

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot      *tgbotapi.BotAPI
	useCase  *usecases.ReportUseCase
	renderer *charts.Renderer
	agent    openai.OpenAIService
	logger   *zap.Logger
}

// NewTelegramBot creates a new Telegram bot handler. The agent is optional;
// without it free-text messages get the help hint.
func NewTelegramBot(botToken string, useCase *usecases.ReportUseCase, renderer *charts.Renderer, agent openai.OpenAIService, logger *zap.Logger) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TelegramBot{
		bot:      bot,
		useCase:  useCase,
		renderer: renderer,
		agent:    agent,
		logger:   logger,
	}, nil
}

// Start begins listening for and handling Telegram messages until ctx is done
func (t *TelegramBot) Start(ctx context.Context) {
	t.logger.Info("Authorized on Telegram account", zap.String("account", t.bot.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	t.logger.Info("Bot is now listening for messages...")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			go t.handleMessage(ctx, update.Message)
		}
	}
}

func userName(message *tgbotapi.Message) string {
	if message.From == nil {
		return ""
	}
	return message.From.UserName
}

// handleMessage processes a Telegram message and sends every reply
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	t.logger.Info("Received message",
		zap.String("user", userName(message)),
		zap.Int64("chat", message.Chat.ID),
		zap.String("text", message.Text))

	for _, reply := range t.replies(ctx, message) {
		if _, err := t.bot.Send(reply); err != nil {
			t.logger.Error("Error sending message", zap.Error(err))
		}
	}
}

// replies builds the responses to one message
func (t *TelegramBot) replies(ctx context.Context, message *tgbotapi.Message) []tgbotapi.Chattable {
	if message.IsCommand() {
		return t.handleCommand(ctx, message)
	}
	return t.handleNonCommand(ctx, message)
}

func text(chatID int64, s string) tgbotapi.Chattable {
	return tgbotapi.NewMessage(chatID, s)
}

// handleCommand processes commands like /start, /help, etc.
func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) []tgbotapi.Chattable {
	chatID := message.Chat.ID
	args := message.CommandArguments()
	t.logger.Debug("Handling command",
		zap.String("command", message.Command()),
		zap.String("args", args),
		zap.String("user", userName(message)))

	switch message.Command() {
	case "start":
		return []tgbotapi.Chattable{text(chatID, "Welcome to the Water Quality Bot! Use /stations to see the monitoring stations or /help for more information.")}

	case "help":
		return []tgbotapi.Chattable{text(chatID, helpText)}

	case "stations":
		return t.handleStations(ctx, chatID)

	case "summary", "report", "export", "chart":
		command := message.Command()
		var option string
		if command == "export" || command == "chart" {
			option, args = splitOption(args)
		}
		req, err := parseRequestArgs(args)
		if err != nil {
			return []tgbotapi.Chattable{text(chatID, err.Error())}
		}
		return t.respond(ctx, chatID, command, option, req)

	default:
		return []tgbotapi.Chattable{text(chatID, "Unknown command. Use /help to see available commands.")}
	}
}

// handleStations processes the /stations command
func (t *TelegramBot) handleStations(ctx context.Context, chatID int64) []tgbotapi.Chattable {
	stations, err := t.useCase.Stations(ctx)
	if err != nil {
		return []tgbotapi.Chattable{text(chatID, t.errorText(err))}
	}
	if len(stations) == 0 {
		return []tgbotapi.Chattable{text(chatID, "No monitoring stations found in the data.")}
	}

	var b strings.Builder
	b.WriteString("Monitoring stations:\n\n")
	for _, s := range stations {
		b.WriteString("• " + s + "\n")
	}
	b.WriteString(fmt.Sprintf("\nUse /summary with up to %d comma-separated stations.", t.useCase.MaxStations()))
	return []tgbotapi.Chattable{text(chatID, b.String())}
}

// respond builds the report for a request and renders it for one command
func (t *TelegramBot) respond(ctx context.Context, chatID int64, command, option string, req usecases.Request) []tgbotapi.Chattable {
	if command == "chart" && option == "" {
		return []tgbotapi.Chattable{text(chatID, "Please name a chart: "+strings.Join(charts.Kinds(), ", "))}
	}

	report, err := t.useCase.Build(ctx, req)
	if err != nil {
		return []tgbotapi.Chattable{text(chatID, t.errorText(err))}
	}

	switch command {
	case "report":
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "water_report.md", Bytes: []byte(report.Markdown())})
		doc.Caption = fmt.Sprintf("%d rows from %d stations", report.Summary.Rows, report.Summary.Stations)
		return []tgbotapi.Chattable{doc}

	case "export":
		format, err := export.ParseFormat(option)
		if err != nil {
			return []tgbotapi.Chattable{text(chatID, err.Error())}
		}
		var buf bytes.Buffer
		if err := export.Write(&buf, format, report.Filtered); err != nil {
			return []tgbotapi.Chattable{text(chatID, t.errorText(err))}
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: format.FileName(), Bytes: buf.Bytes()})
		doc.Caption = fmt.Sprintf("%d rows", report.Filtered.Len())
		return []tgbotapi.Chattable{doc}

	case "chart":
		var buf bytes.Buffer
		if err := t.renderer.Render(&buf, report, option); err != nil {
			return []tgbotapi.Chattable{text(chatID, t.errorText(err))}
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: option + ".png", Bytes: buf.Bytes()})
		photo.Caption = fmt.Sprintf("%s – %s", report.Selection.From.Format("2006-01-02"), report.Selection.To.Format("2006-01-02"))
		return []tgbotapi.Chattable{photo}
	}

	return []tgbotapi.Chattable{text(chatID, report.FormatSummary())}
}

// handleNonCommand processes regular messages through the agent
func (t *TelegramBot) handleNonCommand(ctx context.Context, message *tgbotapi.Message) []tgbotapi.Chattable {
	chatID := message.Chat.ID
	if t.agent == nil || strings.TrimSpace(message.Text) == "" {
		return []tgbotapi.Chattable{text(chatID, "I don't understand. Use /help to see available commands.")}
	}

	stations, err := t.useCase.Stations(ctx)
	if err != nil {
		return []tgbotapi.Chattable{text(chatID, t.errorText(err))}
	}

	agentResp, err := t.agent.InterpretRequest(ctx, message.Text, stations)
	if err != nil {
		t.logger.Error("Error interpreting message", zap.Error(err))
		return []tgbotapi.Chattable{text(chatID, "I don't understand. Use /help to see available commands.")}
	}
	t.logger.Info("Interpreted message",
		zap.String("command", agentResp.CommandName),
		zap.Strings("stations", agentResp.Stations))

	var replies []tgbotapi.Chattable
	if agentResp.UserMessage != "" {
		replies = append(replies, text(chatID, agentResp.UserMessage))
	}

	req, err := agentResp.Request()
	if err != nil {
		return append(replies, text(chatID, err.Error()))
	}

	switch agentResp.CommandName {
	case openai.CommandSummary:
		return append(replies, t.respond(ctx, chatID, "summary", "", req)...)
	case openai.CommandExport:
		return append(replies, t.respond(ctx, chatID, "export", agentResp.Format, req)...)
	case openai.CommandChart:
		return append(replies, t.respond(ctx, chatID, "chart", agentResp.Chart, req)...)
	case openai.CommandStations:
		return append(replies, t.handleStations(ctx, chatID)...)
	}
	if len(replies) == 0 {
		replies = append(replies, text(chatID, "I don't understand. Use /help to see available commands."))
	}
	return replies
}

// errorText maps an error to a message for the user
func (t *TelegramBot) errorText(err error) string {
	var missing *entities.ColumnMissingError
	switch {
	case errors.Is(err, entities.ErrDataUnavailable):
		t.logger.Error("Measurement data unavailable", zap.Error(err))
		return "Measurement data is not available right now. Please try again later."
	case errors.As(err, &missing):
		return fmt.Sprintf("The data has no %s column, so this cannot be shown.", missing.Column)
	case errors.Is(err, charts.ErrNoData):
		return "No data matches this selection."
	case errors.Is(err, charts.ErrUnknownKind):
		return "Unknown chart. Available charts: " + strings.Join(charts.Kinds(), ", ")
	}
	t.logger.Error("Error building response", zap.Error(err))
	return "Error fetching water data. Please try again later."
}

// splitOption separates the first word of the arguments
func splitOption(args string) (option, rest string) {
	args = strings.TrimSpace(args)
	if i := strings.IndexAny(args, " \t"); i >= 0 {
		return strings.ToLower(args[:i]), strings.TrimSpace(args[i+1:])
	}
	return strings.ToLower(args), ""
}

// parseRequestArgs reads "[from] [to] [station, station...]". Up to two
// leading words that parse as dates set the range; everything after them is
// a comma-separated station list.
func parseRequestArgs(args string) (usecases.Request, error) {
	var req usecases.Request
	fields := strings.Fields(args)

	var dates []string
	for len(fields) > 0 && len(dates) < 2 && looksLikeDate(fields[0]) {
		dates = append(dates, fields[0])
		fields = fields[1:]
	}
	for i, s := range dates {
		d, err := integration.ParseDate(s)
		if err != nil {
			return req, fmt.Errorf("Could not read the date %q. Use YYYY-MM-DD.", s)
		}
		if i == 0 {
			req.From = d
		} else {
			req.To = d
		}
	}

	for _, s := range strings.Split(strings.Join(fields, " "), ",") {
		if s = strings.TrimSpace(s); s != "" {
			req.Stations = append(req.Stations, s)
		}
	}
	return req, nil
}

// looksLikeDate reports whether a word starts with a digit and has a date separator
func looksLikeDate(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9' && strings.ContainsAny(s, "-./")
}
