package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/imagestudio/internal/catalog"
	"github.com/digkill/imagestudio/internal/kie"
	"github.com/digkill/imagestudio/internal/models"
	"github.com/digkill/imagestudio/internal/service"
	"github.com/digkill/imagestudio/internal/storage"
)

const (
	maxReferenceImages = 8
	historyPageSize    = 10

	callbackModelPrefix = "model:"
	callbackAllModels   = "model:all"
)

type ImageStorage interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// Bot is a private Telegram front end for the studio. Only the configured
// owner is served; everyone else gets a refusal.
type Bot struct {
	api           *tgbotapi.BotAPI
	ownerID       int64
	log           *slog.Logger
	history       *service.HistoryService
	subscriptions *service.SubscriptionService
	generation    *service.GenerationService
	storage       ImageStorage
	state         *StateManager
	httpClient    *http.Client
}

func NewBot(api *tgbotapi.BotAPI, ownerID int64, log *slog.Logger, history *service.HistoryService, subscriptions *service.SubscriptionService, generation *service.GenerationService, storage ImageStorage) *Bot {
	return &Bot{
		api:           api,
		ownerID:       ownerID,
		log:           log,
		history:       history,
		subscriptions: subscriptions,
		generation:    generation,
		storage:       storage,
		state:         NewStateManager(),
		httpClient:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started", "owner", b.ownerID)

	for {
		select {
		case update := <-updates:
			switch {
			case update.Message != nil:
				if !b.isOwner(update.Message.From) {
					b.sendText(update.Message.Chat.ID, "This studio is private.")
					continue
				}
				b.handleMessage(ctx, update.Message)
			case update.CallbackQuery != nil:
				if !b.isOwner(update.CallbackQuery.From) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) isOwner(from *tgbotapi.User) bool {
	return from != nil && from.ID == b.ownerID
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if len(msg.Photo) > 0 || msg.Document != nil {
		if err := b.handleReferenceImage(ctx, msg); err != nil {
			if errors.Is(err, storage.ErrNotImage) {
				b.sendText(msg.Chat.ID, "That is not an image. Send a photo or a picture file.")
			} else {
				b.log.Error("reference upload failed", "err", err)
				b.sendText(msg.Chat.ID, "Could not save the reference, please try again.")
			}
		}
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	session := b.state.Get(msg.Chat.ID)
	switch session.State {
	case StateAwaitingPrompt:
		b.handlePrompt(ctx, msg, session)
	default:
		b.sendText(msg.Chat.ID, "Send /generate to start.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		b.sendText(msg.Chat.ID, fmt.Sprintf(
			"Image studio.\n\nAttach up to %d reference images, pick a model and send a prompt.\n\nCommands:\n/generate [template] - start a generation\n/usage - monthly usage\n/plans - available plans\n/upgrade <plan> - switch plan\n/cancel - cancel subscription\n/history [query] - recent images\n/stats - history statistics\n/clearrefs - forget references",
			maxReferenceImages,
		))
	case "generate":
		b.promptModelSelection(msg.Chat.ID, args)
	case "usage":
		b.sendText(msg.Chat.ID, formatUsage(b.subscriptions.GetUsageStats(ctx)))
	case "plans":
		b.sendText(msg.Chat.ID, formatPlans(catalog.Plans(), b.subscriptions.GetCurrentPlan(ctx).ID))
	case "upgrade":
		if _, ok := catalog.FindPlan(args); !ok {
			b.sendText(msg.Chat.ID, "Usage: /upgrade <plan>. See /plans for ids.")
			return
		}
		b.subscriptions.UpgradePlan(ctx, args)
		b.sendText(msg.Chat.ID, fmt.Sprintf("Plan switched to %s.\n\n%s", b.subscriptions.GetCurrentPlan(ctx).Name, formatUsage(b.subscriptions.GetUsageStats(ctx))))
	case "cancel":
		b.subscriptions.CancelSubscription(ctx)
		b.sendText(msg.Chat.ID, "Subscription cancelled. Use /upgrade to reactivate.")
	case "history":
		records := b.history.Query(ctx, service.HistoryQuery{Text: args})
		b.sendText(msg.Chat.ID, formatHistory(records, historyPageSize))
	case "stats":
		b.sendText(msg.Chat.ID, formatStats(b.history.GetStats(ctx)))
	case "clearrefs":
		b.state.ClearReferences(msg.Chat.ID)
		b.sendText(msg.Chat.ID, "References cleared.")
	default:
		b.sendText(msg.Chat.ID, "Unknown command. Use /generate.")
	}
}

func (b *Bot) promptModelSelection(chatID int64, templateID string) {
	if templateID != "" {
		if _, ok := catalog.TemplateByID(templateID); !ok {
			b.sendText(chatID, fmt.Sprintf("Unknown template %q.", templateID))
			return
		}
	}

	session := b.state.Get(chatID)
	session.State = StateAwaitingModel
	session.TemplateID = templateID
	session.Models = nil
	b.state.Set(chatID, session)

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kie.Models())+1)
	for _, model := range kie.Models() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(modelLabel(model), callbackModelPrefix+string(model)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("All models", callbackAllModels),
	))

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Pick a model. You can attach up to %d references, then send the prompt.", maxReferenceImages))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send keyboard", "err", err)
	}
}

func (b *Bot) handleCallback(_ context.Context, cb *tgbotapi.CallbackQuery) {
	selected, ok := parseModelCallback(cb.Data)
	if !ok || cb.Message == nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "Unknown choice")); err != nil {
			b.log.Error("callback error", "err", err)
		}
		return
	}

	chatID := cb.Message.Chat.ID
	session := b.state.Get(chatID)
	session.State = StateAwaitingPrompt
	session.Models = selected
	b.state.Set(chatID, session)

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "Model selected")); err != nil {
		b.log.Error("callback ack", "err", err)
	}
	b.sendText(chatID, "Now send the prompt.")
}

func parseModelCallback(data string) ([]kie.Model, bool) {
	if data == callbackAllModels {
		return kie.Models(), true
	}
	raw, ok := strings.CutPrefix(data, callbackModelPrefix)
	if !ok {
		return nil, false
	}
	model, err := kie.ParseModel(raw)
	if err != nil {
		return nil, false
	}
	return []kie.Model{model}, true
}

func (b *Bot) handlePrompt(ctx context.Context, msg *tgbotapi.Message, session *Session) {
	if len(session.Models) == 0 {
		b.sendText(msg.Chat.ID, "Pick a model with /generate first.")
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		b.sendText(msg.Chat.ID, "The prompt cannot be empty.")
		return
	}

	req := service.GenerationRequest{
		Prompt:      msg.Text,
		Models:      append([]kie.Model(nil), session.Models...),
		TemplateID:  session.TemplateID,
		AspectRatio: session.AspectRatio,
		Resolution:  session.Resolution,
	}
	if session.TemplateID != "" {
		// Let the template pick its own aspect ratio.
		req.AspectRatio = ""
	}
	if len(session.ReferenceURLs) > 0 {
		req.InputURLs = append([]string(nil), session.ReferenceURLs...)
	}

	b.sendText(msg.Chat.ID, "Generating, this can take a couple of minutes.")

	result, err := b.generation.Generate(ctx, req)
	switch {
	case errors.Is(err, service.ErrQuotaExceeded):
		b.sendText(msg.Chat.ID, "Monthly limit reached or subscription inactive. See /usage and /plans.")
		return
	case errors.Is(err, service.ErrTemplateNotAllowed):
		b.sendText(msg.Chat.ID, "This template is not included in your plan. See /plans.")
		return
	case err != nil && result == nil:
		b.log.Error("generate", "err", err)
		b.sendText(msg.Chat.ID, "Could not start the generation, please try later.")
		return
	}

	b.deliverResult(msg.Chat.ID, result)
	b.state.Reset(msg.Chat.ID)
}

func (b *Bot) deliverResult(chatID int64, result *service.GenerationResult) {
	for _, img := range result.Images {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(img.Record.ImageData))
		photo.Caption = fmt.Sprintf("Model: %s\nResolution: %s", img.Model, result.Resolution)
		if _, err := b.api.Send(photo); err != nil {
			b.log.Error("send image", "err", err)
		}
	}
	for _, failure := range result.Failures {
		b.sendText(chatID, fmt.Sprintf("%s failed: %s", modelLabel(failure.Model), failure.Error))
	}
}

func (b *Bot) handleReferenceImage(ctx context.Context, msg *tgbotapi.Message) error {
	if b.storage == nil {
		b.sendText(msg.Chat.ID, "Reference uploads are not configured.")
		return nil
	}

	var fileID string
	switch {
	case len(msg.Photo) > 0:
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil:
		if mt := strings.ToLower(msg.Document.MimeType); mt != "" && !strings.HasPrefix(mt, "image/") {
			return storage.ErrNotImage
		}
		fileID = msg.Document.FileID
	default:
		return nil
	}

	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("get file: %w", err)
	}
	data, contentType, err := storage.Fetch(ctx, b.httpClient, fileURL)
	if err != nil {
		return err
	}
	url, err := b.storage.Upload(ctx, data, contentType)
	if err != nil {
		return err
	}

	session := b.state.Get(msg.Chat.ID)
	session.ReferenceURLs = append(session.ReferenceURLs, url)
	if len(session.ReferenceURLs) > maxReferenceImages {
		session.ReferenceURLs = session.ReferenceURLs[len(session.ReferenceURLs)-maxReferenceImages:]
	}
	b.state.Set(msg.Chat.ID, session)

	b.sendText(msg.Chat.ID, fmt.Sprintf("Reference saved (%d/%d).", len(session.ReferenceURLs), maxReferenceImages))
	return nil
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func modelLabel(model kie.Model) string {
	switch model {
	case kie.ModelFlux2:
		return "Flux 2"
	case kie.ModelNanoBananaPro:
		return "Nano Banana Pro"
	default:
		return string(model)
	}
}

func formatUsage(stats models.UsageStats) string {
	limit := fmt.Sprintf("%d", stats.ImagesLimit)
	if stats.ImagesLimit < 0 {
		limit = "unlimited"
	}
	status := "yes"
	if !stats.CanGenerate {
		status = "no"
	}
	return fmt.Sprintf("Plan: %s\nUsed this month: %d/%s (%d%%)\nCan generate: %s\nResets in %d days",
		stats.Plan, stats.ImagesUsed, limit, stats.PercentageUsed, status, stats.DaysUntilReset)
}

func formatPlans(plans []models.Plan, currentID string) string {
	var sb strings.Builder
	for _, p := range plans {
		marker := ""
		if p.ID == currentID {
			marker = " (current)"
		}
		fmt.Fprintf(&sb, "%s [%s]%s - %.2f %s/%s\n", p.Name, p.ID, marker, p.Price, p.Currency, p.Interval)
		for _, feature := range p.Features {
			fmt.Fprintf(&sb, "  • %s\n", feature)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatHistory(records []models.ImageRecord, limit int) string {
	if len(records) == 0 {
		return "No images yet."
	}
	var sb strings.Builder
	for i, rec := range records {
		if i == limit {
			fmt.Fprintf(&sb, "…and %d more", len(records)-limit)
			break
		}
		fmt.Fprintf(&sb, "%s [%s] %s\n%s\n", time.UnixMilli(rec.Timestamp).UTC().Format("2006-01-02 15:04"), rec.Category, rec.Prompt, rec.ImageData)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStats(stats models.HistoryStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Images: %d\n", stats.Total)
	for _, category := range models.Categories {
		if n := stats.ByCategory[category]; n > 0 {
			fmt.Fprintf(&sb, "  %s: %d\n", category, n)
		}
	}
	for provider, n := range stats.ByProvider {
		fmt.Fprintf(&sb, "Provider %s: %d\n", provider, n)
	}
	return strings.TrimRight(sb.String(), "\n")
}
