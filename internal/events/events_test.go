package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Kind: KindMatch}))
	p.Close()
}

func TestSubject(t *testing.T) {
	p := &NATSPublisher{subject: "pairs.events"}
	assert.Equal(t, "pairs.events.abc123.gameover", p.Subject(Event{Session: "abc123", Kind: KindGameOver}))
}

func TestNATSPublishDelivers(t *testing.T) {
	url := os.Getenv("PAIRS_TEST_NATS_URL")
	if url == "" {
		t.Skip("PAIRS_TEST_NATS_URL not set")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("pairs.test.*.match", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	p, err := NewNATSPublisher(url, "pairs.test", zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	ev := Event{Session: "abc123", Kind: KindMatch, Cards: []int{0, 1}, Score: 100, Combo: 1, Best: 100, At: time.Now().UTC()}
	require.NoError(t, p.Publish(context.Background(), ev))

	select {
	case m := <-msgs:
		assert.Equal(t, "pairs.test.abc123.match", m.Subject)
		var got Event
		require.NoError(t, json.Unmarshal(m.Data, &got))
		assert.Equal(t, ev.Cards, got.Cards)
		assert.Equal(t, 100, got.Score)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
