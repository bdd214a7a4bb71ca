package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/r4den/kanjiquiz/quiz"
)

// teleTransport adapts a telebot bot to the quiz transport interface.
type teleTransport struct {
	bot *tele.Bot
}

// NewTransport wraps b for use by quiz sessions. The returned transport
// is safe for concurrent use.
func NewTransport(b *tele.Bot) quiz.Transport {
	return &teleTransport{bot: b}
}

func (t *teleTransport) SendMessage(chatID int64, text string, opts quiz.MessageOptions) error {
	so := &tele.SendOptions{DisableNotification: opts.Quiet}
	if opts.HTML {
		so.ParseMode = tele.ModeHTML
	}
	if opts.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opts.ReplyTo}
	}
	_, err := t.bot.Send(tele.ChatID(chatID), text, so)
	return err
}

func (t *teleTransport) SendPhoto(chatID int64, url, caption string, replyTo int) (int, error) {
	photo := &tele.Photo{File: tele.FromURL(url), Caption: caption}
	so := &tele.SendOptions{}
	if replyTo != 0 {
		so.ReplyTo = &tele.Message{ID: replyTo}
	}
	msg, err := t.bot.Send(tele.ChatID(chatID), photo, so)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}
