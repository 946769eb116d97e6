package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/line-relay/pkg/protocol"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name         string
		data         string
		want         []string
		wantConsumed int
	}{
		{
			name:         "single frame",
			data:         "hello\n",
			want:         []string{"hello"},
			wantConsumed: 6,
		},
		{
			name:         "no delimiter yet",
			data:         "hel",
			want:         nil,
			wantConsumed: 0,
		},
		{
			name:         "empty lines only",
			data:         "\n\n",
			want:         nil,
			wantConsumed: 2,
		},
		{
			name:         "doubled delimiter between frames",
			data:         "a\n\nb\n",
			want:         []string{"a", "b"},
			wantConsumed: 5,
		},
		{
			name:         "leading delimiter and trailing partial",
			data:         "\nfirst\nsec",
			want:         []string{"first"},
			wantConsumed: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payloads, consumed := protocol.Split([]byte(tt.data))

			var got []string
			for _, p := range payloads {
				got = append(got, string(p))
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantConsumed, consumed)
		})
	}
}

func TestFrame(t *testing.T) {
	payload := []byte("hi")
	framed := protocol.Frame(payload)

	assert.Equal(t, []byte("hi\n"), framed)
	assert.Equal(t, []byte("hi"), payload, "Frame must not touch its input")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, protocol.Validate([]byte("plain text")))
	assert.NoError(t, protocol.Validate(nil))
	assert.ErrorIs(t, protocol.Validate([]byte("two\nlines")), protocol.ErrDelimiterInPayload)
}

func TestNewMessage_Copies(t *testing.T) {
	src := []byte("abc")
	msg := protocol.NewMessage(src)
	src[0] = 'x'

	require.Equal(t, "abc", msg.String())
	assert.Equal(t, 3, msg.Len())
}
