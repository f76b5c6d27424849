// Package telegram delivers reminder notices to a Telegram chat and turns
// the inline "Taken" and "Need help" buttons back into actions.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Medi-Pal/medipal/internal/notify"
	"github.com/Medi-Pal/medipal/internal/reconcile"
	"github.com/Medi-Pal/medipal/internal/sos"
	"github.com/Medi-Pal/medipal/internal/store"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	prefNamespace  = "telegram"
	prefChatID     = "chat_id"
	callbackPrefix = "a:"
	actionTTL      = 48 * time.Hour
	maxMessageLen  = 4096
)

// API is the part of tgbotapi.BotAPI the bot uses
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Reconciler applies mark-taken actions
type Reconciler interface {
	MarkTaken(ctx context.Context, req reconcile.Request) reconcile.Result
}

// Alerter sends SOS messages
type Alerter interface {
	SendSOS(ctx context.Context, medicineName string) (sos.Report, error)
}

// State keeps action tokens and the bound chat
type State interface {
	PutAction(payload []byte, ttl time.Duration) (string, error)
	TakeAction(token string) ([]byte, error)
	GetInt(namespace, key string, def int) (int, error)
	SetInt(namespace, key string, value int) error
}

// Prescriptions lists the cached prescriptions for /meds
type Prescriptions interface {
	ListPrescriptions(ctx context.Context) ([]store.Prescription, error)
}

// Config holds Telegram bot configuration
type Config struct {
	Token   string
	Enabled bool
	ChatID  int64 // fixed chat; 0 binds the first chat that sends /start
}

// Deps are the collaborators the bot routes actions to
type Deps struct {
	Reconciler    Reconciler
	Alerter       Alerter
	State         State
	Prescriptions Prescriptions
}

// Bot represents the Telegram reminder channel
type Bot struct {
	api    API
	deps   Deps
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	enabled bool
	fixed   bool

	mu     sync.RWMutex
	chatID int64
}

// NewBot connects to Telegram. A disabled config yields an inert bot.
func NewBot(cfg Config, deps Deps, logger *zap.Logger) (*Bot, error) {
	if !cfg.Enabled || cfg.Token == "" {
		return &Bot{enabled: false, logger: logger}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = false
	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	return NewWithAPI(api, cfg.ChatID, deps, logger), nil
}

// NewWithAPI builds an enabled bot over an existing API handle
func NewWithAPI(api API, chatID int64, deps Deps, logger *zap.Logger) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		api:     api,
		deps:    deps,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		enabled: true,
		fixed:   chatID != 0,
		chatID:  chatID,
	}

	if chatID == 0 && deps.State != nil {
		if stored, err := deps.State.GetInt(prefNamespace, prefChatID, 0); err == nil {
			b.chatID = int64(stored)
		}
	}
	return b
}

// Enabled reports whether the bot talks to Telegram
func (b *Bot) Enabled() bool {
	return b.enabled
}

// ChatID returns the chat reminders go to, 0 when unbound
func (b *Bot) ChatID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chatID
}

// Start starts polling for updates
func (b *Bot) Start() error {
	if !b.enabled {
		return nil
	}

	b.wg.Add(1)
	go b.run()

	return nil
}

// Stop stops the bot
func (b *Bot) Stop() {
	if !b.enabled {
		return
	}

	b.cancel()
	b.api.StopReceivingUpdates()
	b.wg.Wait()
}

func (b *Bot) run() {
	defer b.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.handleUpdate(update); err != nil {
				b.logger.Error("Failed to handle update", zap.Error(err))
			}
		}
	}
}

// Name implements notify.Sink
func (b *Bot) Name() string { return "telegram" }

// Deliver implements notify.Sink. Reminder actions become inline buttons
// whose callback data is a one-shot token.
func (b *Bot) Deliver(ctx context.Context, n notify.Notice) error {
	if !b.enabled {
		return nil
	}
	chatID := b.ChatID()
	if chatID == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, truncate(formatNotice(n)))
	if len(n.Actions) > 0 && b.deps.State != nil {
		markup, err := b.keyboard(n.Actions)
		if err != nil {
			return fmt.Errorf("failed to build keyboard: %w", err)
		}
		msg.ReplyMarkup = markup
	}

	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) keyboard(actions []notify.Action) (tgbotapi.InlineKeyboardMarkup, error) {
	buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(actions))
	for _, a := range actions {
		payload, err := json.Marshal(a)
		if err != nil {
			return tgbotapi.InlineKeyboardMarkup{}, err
		}
		token, err := b.deps.State.PutAction(payload, actionTTL)
		if err != nil {
			return tgbotapi.InlineKeyboardMarkup{}, err
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, callbackPrefix+token))
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...)), nil
}

func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return b.handleCallback(update.CallbackQuery)
	}

	if update.Message == nil {
		return nil
	}
	msg := update.Message

	if !b.allowed(msg.Chat.ID, msg.IsCommand() && msg.Command() == "start") {
		_, err := b.sendMessage(msg.Chat.ID, "This bot is bound to another chat.")
		return err
	}

	if msg.IsCommand() {
		return b.handleCommand(msg)
	}

	_, err := b.sendMessage(msg.Chat.ID, "Use /help to see what I can do.")
	return err
}

// allowed binds the first /start chat when no chat is configured
func (b *Bot) allowed(chatID int64, isStart bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chatID == chatID {
		return true
	}
	if b.fixed || b.chatID != 0 || !isStart {
		return false
	}

	b.chatID = chatID
	if b.deps.State != nil {
		if err := b.deps.State.SetInt(prefNamespace, prefChatID, int(chatID)); err != nil {
			b.logger.Warn("Failed to store telegram chat", zap.Error(err))
		}
	}
	b.logger.Info("Telegram chat bound", zap.Int64("chat_id", chatID))
	return true
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		_, err := b.sendMessage(chatID, `*MediPal*

Medicine reminders will arrive in this chat. Tap *Taken* when you take a dose or *Need help* to alert your emergency contacts.`)
		return err

	case "help":
		_, err := b.sendMessage(chatID, `*Available Commands:*

/start - Receive reminders in this chat
/meds - Show remaining doses
/sos - Alert emergency contacts
/help - Show this help`)
		return err

	case "meds":
		return b.handleMeds(chatID)

	case "sos":
		return b.handleSOS(chatID, strings.TrimSpace(msg.CommandArguments()))

	default:
		_, err := b.sendMessage(chatID, "Unknown command. Use /help for available commands.")
		return err
	}
}

func (b *Bot) handleMeds(chatID int64) error {
	if b.deps.Prescriptions == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()

	list, err := b.deps.Prescriptions.ListPrescriptions(ctx)
	if err != nil {
		return err
	}
	_, err = b.sendMessage(chatID, truncate(formatMedicines(list)))
	return err
}

func (b *Bot) handleSOS(chatID int64, medicine string) error {
	if b.deps.Alerter == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(b.ctx, 60*time.Second)
	defer cancel()

	report, err := b.deps.Alerter.SendSOS(ctx, medicine)
	if err != nil {
		_, sendErr := b.sendMessage(chatID, fmt.Sprintf("SOS failed: %v", err))
		return sendErr
	}
	_, err = b.sendMessage(chatID, fmt.Sprintf("SOS sent to %d contact(s)", report.Sent))
	return err
}

func (b *Bot) handleCallback(q *tgbotapi.CallbackQuery) error {
	if q.Message == nil || q.Message.Chat == nil || q.Message.Chat.ID != b.ChatID() {
		return b.answer(q.ID, "Not allowed")
	}
	if !strings.HasPrefix(q.Data, callbackPrefix) || b.deps.State == nil {
		return b.answer(q.ID, "Unknown action")
	}

	payload, err := b.deps.State.TakeAction(strings.TrimPrefix(q.Data, callbackPrefix))
	if err != nil {
		return err
	}
	if payload == nil {
		return b.answer(q.ID, "This reminder has expired")
	}

	var action notify.Action
	if err := json.Unmarshal(payload, &action); err != nil {
		return b.answer(q.ID, "Unknown action")
	}

	ctx, cancel := context.WithTimeout(b.ctx, 60*time.Second)
	defer cancel()

	var reply string
	switch action.Kind {
	case notify.ActionMarkTaken:
		res := b.deps.Reconciler.MarkTaken(ctx, reconcile.Request{
			PrescriptionID: action.PrescriptionID,
			MedicineName:   action.MedicineName,
			TimeOfDay:      action.TimeOfDay,
		})
		reply = takenReply(res)
	case notify.ActionNeedHelp:
		report, err := b.deps.Alerter.SendSOS(ctx, action.MedicineName)
		if err != nil {
			reply = "Could not send SOS"
			b.logger.Warn("SOS from telegram failed", zap.Error(err))
		} else {
			reply = fmt.Sprintf("SOS sent to %d contact(s)", report.Sent)
		}
	default:
		reply = "Unknown action"
	}

	// the other buttons of this reminder are spent too
	edit := tgbotapi.NewEditMessageReplyMarkup(q.Message.Chat.ID, q.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Debug("Failed to clear reminder buttons", zap.Error(err))
	}

	return b.answer(q.ID, reply)
}

func (b *Bot) answer(callbackID, text string) error {
	_, err := b.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

func (b *Bot) sendMessage(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	sent, err := b.api.Send(msg)
	if err != nil {
		// Try without markdown if it fails
		msg.ParseMode = ""
		sent, err = b.api.Send(msg)
		if err != nil {
			return 0, err
		}
	}

	return sent.MessageID, nil
}

func takenReply(res reconcile.Result) string {
	switch res.Outcome {
	case reconcile.Taken:
		return fmt.Sprintf("Recorded. %d dose(s) left", res.Remaining)
	case reconcile.AlreadyZero:
		return "No doses left for this time"
	case reconcile.NotFound:
		return "Prescription not found"
	case reconcile.Invalid:
		return reconcile.MissingParameters
	case reconcile.PersistFailed:
		return "Could not save, please try again"
	}
	return "Marked as taken"
}

func formatNotice(n notify.Notice) string {
	if n.Title == "" {
		return n.Message
	}
	return n.Title + "\n" + n.Message
}

func formatMedicines(list []store.Prescription) string {
	if len(list) == 0 {
		return "No prescriptions yet. Sync from the app first."
	}

	var sb strings.Builder
	for _, p := range list {
		sb.WriteString(fmt.Sprintf("Prescription %s", p.ID))
		if p.Doctor.Name != "" {
			sb.WriteString(" (" + p.Doctor.Name + ")")
		}
		sb.WriteString("\n")
		for _, m := range p.Medicines {
			sb.WriteString(fmt.Sprintf("  %s: %d dose(s) left", m.DisplayName(), m.TotalDosage()))
			for _, t := range m.Timings {
				sb.WriteString(fmt.Sprintf(", %s %d", strings.ToLower(t.TimeOfDay), t.Dosage))
			}
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string) string {
	if len(s) > maxMessageLen {
		return s[:maxMessageLen-3] + "..."
	}
	return s
}
