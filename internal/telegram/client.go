// Package telegram provides the Telegram bot front end: price-check commands
// and service notifications.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/resaleoracle/internal/estimator"
	"github.com/rewired-gh/resaleoracle/internal/logger"
	"github.com/rewired-gh/resaleoracle/internal/models"
)

const priceUsage = "Usage: /price <brand> <type> <size> <condition> [fast|normal|premium]"

// Estimator prices a validated request.
type Estimator interface {
	Estimate(ctx context.Context, req estimator.Request) (*models.Estimate, error)
}

// Client handles Telegram notifications and bot commands.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, est Estimator) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, est, update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, est Estimator, msg *tgbotapi.Message) {
	reply, markdown := commandReply(ctx, est, msg.Command(), msg.CommandArguments())
	if reply == "" {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	if markdown {
		out.ParseMode = "MarkdownV2"
	}
	if _, err := c.bot.Send(out); err != nil {
		logger.Warn("Failed to reply to /%s: %v", msg.Command(), err)
	}
}

// commandReply returns the reply text for a command and whether it is
// MarkdownV2. Unknown commands get no reply.
func commandReply(ctx context.Context, est Estimator, command, args string) (string, bool) {
	switch command {
	case "ping":
		return "Pong", false
	case "start", "help":
		return "Send a price check:\n" + priceUsage + "\nExample: /price nike hoodie M good", false
	case "price":
		raw, err := parsePriceArgs(args)
		if err != nil {
			return err.Error(), false
		}
		req, err := raw.Parse()
		if err != nil {
			return err.Error(), false
		}
		e, err := est.Estimate(ctx, req)
		if err != nil {
			logger.Error("Telegram price check failed: %v", err)
			return "Estimation failed, please retry later.", false
		}
		return formatEstimate(e), true
	}
	return "", false
}

// parsePriceArgs splits "/price" arguments. Multi-word conditions use
// underscores (very_good, new_with_tags).
func parsePriceArgs(args string) (estimator.RawRequest, error) {
	fields := strings.Fields(args)
	if len(fields) < 4 || len(fields) > 5 {
		return estimator.RawRequest{}, fmt.Errorf("%s", priceUsage)
	}
	raw := estimator.RawRequest{
		Brand:     fields[0],
		ItemType:  fields[1],
		Size:      fields[2],
		Condition: strings.ReplaceAll(fields[3], "_", " "),
	}
	if len(fields) == 5 {
		raw.Speed = fields[4]
	}
	return raw, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a maintenance error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Maintenance error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Maintenance recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendEstimate posts an estimate to the configured chat.
func (c *Client) SendEstimate(e *models.Estimate) error {
	return c.sendMarkdownV2(formatEstimate(e))
}

// formatEstimate formats an estimate into a Telegram MarkdownV2 message.
func formatEstimate(e *models.Estimate) string {
	r := e.Recommendation
	var b strings.Builder

	b.WriteString("🏷️ *Price estimate*\n\n")
	fmt.Fprintf(&b, "%s %s, size %s, %s\n\n",
		escapeMarkdownV2(e.Brand), escapeMarkdownV2(e.ItemType),
		escapeMarkdownV2(e.Size), escapeMarkdownV2(strings.ReplaceAll(string(e.Condition), "_", " ")))

	fmt.Fprintf(&b, "💶 Suggested: *%s€* \\(%s\\)\n",
		escapeMarkdownV2(strconv.FormatFloat(r.SuggestedPrice, 'f', -1, 64)),
		escapeMarkdownV2(string(e.SaleSpeed)))
	fmt.Fprintf(&b, "📊 Range: %s\n", escapeMarkdownV2(r.PriceRange))
	fmt.Fprintf(&b, "📍 Position: %s\n", escapeMarkdownV2(r.MarketPosition))
	fmt.Fprintf(&b, "🎯 Confidence: %s\n", escapeMarkdownV2(fmt.Sprintf("%.0f%%", e.OverallConfidence*100)))

	switch {
	case r.UsedFallback:
		b.WriteString("\n_No market data, generic estimate_")
	case e.Origin == models.OriginSynthetic:
		fmt.Fprintf(&b, "\n_Based on %d reference prices, market data unavailable_", r.SampleSize)
	default:
		fmt.Fprintf(&b, "\n_Based on %d sold listings_", r.SampleSize)
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
