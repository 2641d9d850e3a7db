package notify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTelegramSender struct {
	mock.Mock
}

func (m *MockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func toChat(id int64) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == id
	})
}

func newTestTelegram(bot TelegramSender, chats ...int64) (*Telegram, *[]time.Duration) {
	tg := NewTelegram(bot, chats, zerolog.New(io.Discard))
	var waits []time.Duration
	tg.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return tg, &waits
}

func TestSendToAllChats(t *testing.T) {
	bot := new(MockTelegramSender)
	bot.On("Send", toChat(1)).Return(tgbotapi.Message{}, nil).Once()
	bot.On("Send", toChat(2)).Return(tgbotapi.Message{}, nil).Once()

	tg, waits := newTestTelegram(bot, 1, 2)
	require.NoError(t, tg.Send(context.Background(), "Ana booked Sala Ipê"))

	bot.AssertExpectations(t)
	assert.Empty(t, *waits)
	msg := bot.Calls[0].Arguments.Get(0).(tgbotapi.MessageConfig)
	assert.Equal(t, "Ana booked Sala Ipê", msg.Text)
}

func TestSendHonorsRetryAfter(t *testing.T) {
	bot := new(MockTelegramSender)
	tooMany := &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}}
	bot.On("Send", toChat(1)).Return(tgbotapi.Message{}, tooMany).Once()
	bot.On("Send", toChat(1)).Return(tgbotapi.Message{}, nil).Once()

	tg, waits := newTestTelegram(bot, 1)
	require.NoError(t, tg.Send(context.Background(), "x"))
	assert.Equal(t, []time.Duration{3 * time.Second}, *waits)
}

func TestSendFailuresAreIsolatedPerChat(t *testing.T) {
	bot := new(MockTelegramSender)
	blocked := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	bot.On("Send", toChat(1)).Return(tgbotapi.Message{}, blocked).Once()
	bot.On("Send", toChat(2)).Return(tgbotapi.Message{}, errors.New("timeout"))

	tg, waits := newTestTelegram(bot, 1, 2, 3)
	bot.On("Send", toChat(3)).Return(tgbotapi.Message{}, nil).Once()

	err := tg.Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 1")
	assert.Contains(t, err.Error(), "chat 2")
	assert.NotContains(t, err.Error(), "chat 3")

	bot.AssertNumberOfCalls(t, "Send", 1+3+1)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, *waits)
}
