package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		raw  string
		want ID
	}{
		{`42`, IntID(42)},
		{`-3`, IntID(-3)},
		{`0`, IntID(0)},
		{`42.0`, IntID(42)},
		{`1e3`, IntID(1000)},
		{`"42"`, StringID("42")},
		{`"room-a"`, StringID("room-a")},
		{`null`, ID{}},
		{``, ID{}},
	}

	for _, tt := range tests {
		got, err := ParseID(json.RawMessage(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParseIDRejectsOtherValues(t *testing.T) {
	for _, raw := range []string{`true`, `1.5`, `{"id":1}`, `[1]`, `"unterminated`} {
		_, err := ParseID(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrInvalidID, raw)
	}
}

func TestIDKindsNeverCoerce(t *testing.T) {
	assert.NotEqual(t, IntID(42), StringID("42"))
	assert.Equal(t, "42", IntID(42).String())
	assert.Equal(t, "42", StringID("42").String())
	assert.Equal(t, `"42"`, StringID("42").GoString())
	assert.Equal(t, "42", IntID(42).GoString())
	assert.Equal(t, "<none>", ID{}.GoString())
}

func TestIDValid(t *testing.T) {
	assert.True(t, IntID(0).Valid())
	assert.True(t, StringID("x").Valid())
	assert.False(t, StringID("").Valid())
	assert.False(t, ID{}.Valid())
}

func TestIDMarshalJSON(t *testing.T) {
	payload := struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}{A: IntID(7), B: StringID("7")}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":7,"b":"7","c":null}`, string(data))
}

func TestCreateMessageRequestJSON(t *testing.T) {
	media := "https://cdn.test/a.png"
	req := CreateMessageRequest{
		ConversationID: StringID("42"),
		UserID:         IntID(1),
		Content:        "hi",
		Type:           DefaultMessageType,
		MediaURL:       &media,
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"conversation_id":"42","user_id":1,"content":"hi","type":"text","media_url":"https://cdn.test/a.png"}`, string(data))
}
