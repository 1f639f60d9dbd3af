// Package telegram serves letter predictions to Telegram chats. Users send
// a transparent PNG of their drawing as a file; photos are refused because
// Telegram recompresses them to opaque JPEG, which drops the ink stored in
// the alpha channel.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Brownie44l1/letter-api/internal/model"
	"github.com/Brownie44l1/letter-api/internal/pipeline"
	"github.com/Brownie44l1/letter-api/internal/raster"
	"github.com/Brownie44l1/letter-api/internal/tensor"
)

const (
	maxDownload = 10 << 20
	topN        = 5
)

const helpText = "Send a drawing of one capital letter as a PNG file with a transparent background " +
	"(attach it as a file, not as a photo). I will reply with the letter and the confidence per class."

// Sender is the part of *tgbotapi.BotAPI the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Downloader fetches a file sent to the bot.
type Downloader func(ctx context.Context, fileID string) ([]byte, error)

type Bot struct {
	Sender   Sender
	Download Downloader
	Pipeline *pipeline.Pipeline
}

// New wires a bot to the Telegram API, downloading files over HTTP.
func New(api *tgbotapi.BotAPI, p *pipeline.Pipeline) *Bot {
	client := &http.Client{Timeout: 30 * time.Second}
	return &Bot{
		Sender:   api,
		Pipeline: p,
		Download: func(ctx context.Context, fileID string) ([]byte, error) {
			url, err := api.GetFileDirectURL(fileID)
			if err != nil {
				return nil, err
			}
			return download(ctx, client, url)
		},
	}
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
}

// Run long-polls for updates until ctx is done.
func Run(ctx context.Context, api *tgbotapi.BotAPI, b *Bot) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.Sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("telegram send to %d: %v", chatID, err)
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		switch msg.Command() {
		case "start", "help":
			b.send(cid, helpText)
		default:
			b.send(cid, "Unknown command. Try /help")
		}
	case msg.Document != nil:
		b.send(cid, b.classifyDocument(ctx, msg.Document))
	case len(msg.Photo) > 0:
		b.send(cid, "Photos lose transparency. Please resend the PNG as a file.")
	default:
		b.send(cid, helpText)
	}
}

func (b *Bot) classifyDocument(ctx context.Context, doc *tgbotapi.Document) string {
	if doc.MimeType != "" && doc.MimeType != "image/png" {
		return "Only PNG files are supported."
	}
	data, err := b.Download(ctx, doc.FileID)
	if err != nil {
		log.Printf("telegram download %s: %v", doc.FileID, err)
		return "Result: not available (could not download the file)."
	}
	res, err := b.classifyBytes(ctx, data)
	if err != nil {
		return FormatError(err)
	}
	return FormatPrediction(res)
}

func (b *Bot) classifyBytes(ctx context.Context, data []byte) (pipeline.Result, error) {
	img, _, err := raster.Decode(data)
	if err != nil {
		return pipeline.Result{}, err
	}
	return b.Pipeline.Predict(ctx, pipeline.Static(img))
}

// FormatPrediction renders the label and the highest confidences.
func FormatPrediction(res pipeline.Result) string {
	type row struct{ letter, conf string }
	rows := make([]row, 0, len(res.Confidences))
	for l, c := range res.Confidences {
		rows = append(rows, row{l, c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].conf != rows[j].conf {
			return rows[i].conf > rows[j].conf
		}
		return rows[i].letter < rows[j].letter
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Letter: %s\n", res.Label)
	for i, r := range rows {
		if i == topN {
			break
		}
		fmt.Fprintf(&sb, "%s  %s\n", r.letter, r.conf)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatError explains why no letter is shown.
func FormatError(err error) string {
	switch {
	case errors.Is(err, tensor.ErrEmptyInput):
		return "Result: not available (no strokes found, is the background transparent?)"
	case errors.Is(err, raster.ErrMalformedRaster):
		return "Result: not available (the file is not a readable image)"
	case errors.Is(err, model.ErrClassifierUnavailable):
		return "Result: not available (the classifier is not loaded)"
	case errors.Is(err, pipeline.ErrBusy):
		return "Result: not available (busy, try again)"
	default:
		log.Printf("telegram prediction error: %v", err)
		return "Result: not available"
	}
}
