package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groverooms/grove/internal/euphid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	id, err := euphid.Parse("00000000001pz")
	require.NoError(t, err)

	want, err := ToFrame(TypeSend, "3", SendCmd{Content: "hi", Parent: &id})
	require.NoError(t, err)

	raw, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)

	require.Equal(t, want.Type, got.Type)
	require.Equal(t, want.ID, got.ID)
	require.JSONEq(t, string(want.Data), string(got.Data))
	require.Equal(t, want.Throttled, got.Throttled)
	require.Equal(t, want.Error, got.Error)

	payload, err := DecodePayload[SendCmd](got)
	require.NoError(t, err)
	require.Equal(t, "hi", payload.Content)
	require.Equal(t, id, *payload.Parent)
}

func TestThrottledFrameDecodesAsError(t *testing.T) {
	f := Frame{
		Type:            TypeSend,
		Throttled:       true,
		ThrottledReason: "too many messages",
	}
	_, err := DecodePayload[SendReply](f)
	require.Error(t, err)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.True(t, serverErr.Throttled)
	require.Equal(t, "too many messages", serverErr.ThrottledReason)
}

func TestErrorFrameDecodesAsError(t *testing.T) {
	f := Frame{Type: TypeAuth, Error: "unauthorized"}
	_, err := DecodePayload[AuthReply](f)
	require.Error(t, err)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, "unauthorized", serverErr.Reason)
}

func TestClassify(t *testing.T) {
	require.Equal(t, KindLifecycle, Classify(TypeHelloEvent))
	require.Equal(t, KindMembership, Classify(TypeJoinEvent))
	require.Equal(t, KindMessage, Classify(TypeSendEvent))
	require.Equal(t, KindPing, Classify(TypePingEvent))
	require.Equal(t, KindCommandReply, Classify(TypeSendReply))
	require.Equal(t, KindUnknown, Classify(Type("something-else")))
}
