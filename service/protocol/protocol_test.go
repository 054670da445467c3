package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	msgmodel "PPDirect/module/message/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	t.Run("auth", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"type":"auth","content":"tok"}`))
		require.NoError(t, err)
		auth, ok := f.(*AuthFrame)
		require.True(t, ok)
		assert.Equal(t, "tok", auth.Token)
	})

	t.Run("auth without token", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"type":"auth"}`))
		require.NoError(t, err)
		assert.Equal(t, "", f.(*AuthFrame).Token)
	})

	t.Run("ping", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"type":"ping"}`))
		require.NoError(t, err)
		_, ok := f.(*PingFrame)
		assert.True(t, ok)
	})

	t.Run("message with numeric receiver", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"type":"message","content":"hi","receiver_id":42}`))
		require.NoError(t, err)
		cf := f.(*ChatFrame)
		assert.Equal(t, int64(42), cf.ReceiverID)
		assert.Equal(t, "hi", cf.Content)
		assert.True(t, cf.Valid())
	})

	t.Run("message with legacy spelling and string id", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"type":"message","content":"hi","reciever_id":"7"}`))
		require.NoError(t, err)
		assert.Equal(t, int64(7), f.(*ChatFrame).ReceiverID)
	})

	t.Run("large id survives", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"type":"message","content":"x","receiver_id":1865032704863068160}`))
		require.NoError(t, err)
		assert.Equal(t, int64(1865032704863068160), f.(*ChatFrame).ReceiverID)
	})

	t.Run("message missing fields", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"type":"message","content":""}`))
		require.NoError(t, err)
		assert.False(t, f.(*ChatFrame).Valid())
	})

	t.Run("unknown type", func(t *testing.T) {
		f, err := ParseFrame([]byte(`{"type":"typing"}`))
		require.NoError(t, err)
		assert.Equal(t, "typing", f.FrameType())
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseFrame([]byte(`hello`))
		assert.Error(t, err)
		_, err = ParseFrame([]byte(`[1,2]`))
		assert.Error(t, err)
	})
}

func TestRelayPayload(t *testing.T) {
	m := &msgmodel.Message{ID: 9, SenderID: 1, ReceiverID: 2, Content: "yo", CreatedAt: time.Unix(1700000000, 0).UTC()}
	p := RelayNewMessage(m, "node-a")

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var back map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&back))

	env, err := ReadEnvelope(back)
	require.NoError(t, err)
	assert.Equal(t, int64(2), env.UserID)
	assert.Equal(t, "node-a", env.Origin)
	assert.Equal(t, EventNewMessage, env.Type)

	out := StripRelayMeta(back)
	assert.NotContains(t, out, MetaUserID)
	assert.NotContains(t, out, MetaOrigin)
	assert.Equal(t, "yo", out["content"])
	assert.Contains(t, back, MetaUserID, "original payload is untouched")
}

func TestReadEnvelopeRejectsMissingTarget(t *testing.T) {
	_, err := ReadEnvelope(map[string]any{"type": "new_message"})
	assert.Error(t, err)
}

func TestMessageEventFlattens(t *testing.T) {
	m := &msgmodel.Message{ID: 3, SenderID: 1, ReceiverID: 2, Content: "a"}
	raw, err := json.Marshal(MessageSent(m, "published"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "message_sent", got["type"])
	assert.Equal(t, "published", got["delivered"])
	assert.EqualValues(t, 3, got["id"])
	assert.Equal(t, "a", got["content"])

	raw, err = json.Marshal(NewMessage(m))
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.NotContains(t, got, "delivered")
}
