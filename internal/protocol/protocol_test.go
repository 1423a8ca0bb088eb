package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	ggrepErrors "github.com/ggrep/ggrep/internal/errors"
)

func TestNegotiateVersionPicksHighestCommon(t *testing.T) {
	v, ok := NegotiateVersion([]int{1, 2}, []int{2, 3})
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestNegotiateVersionEmptyIntersectionIsIncompatible(t *testing.T) {
	_, ok := NegotiateVersion([]int{1}, []int{2, 3})
	require.False(t, ok)
}

func TestConnRoundTripsEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	conn := NewConn(buf, 0)

	req := &Envelope{Type: TypeHello, Hello: &Hello{StoreID: "s1", ConfigFingerprint: "fp1", ProtocolVersions: SupportedVersions}}
	require.NoError(t, conn.WriteEnvelope(req))

	got, err := conn.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, TypeHello, got.Type)
	require.Equal(t, "s1", got.Hello.StoreID)
}

func TestReadEnvelopeTruncatedLengthPrefixIsEOF(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x01, 0x02})
	conn := NewConn(buf, 0)
	_, err := conn.ReadEnvelope()
	require.ErrorIs(t, err, io.EOF)
}

func TestReadEnvelopeOversizedLengthHeaderIsRejected(t *testing.T) {
	buf := &bytes.Buffer{}
	// Claim a body far larger than the configured cap, with no bytes
	// following: the cap check must trip before any read of the body.
	header := []byte{0xFF, 0xFF, 0xFF, 0x7F}
	buf.Write(header)
	conn := NewConn(buf, 1024)

	_, err := conn.ReadEnvelope()
	require.Error(t, err)
	require.Equal(t, ggrepErrors.KindInvalidRequest, ggrepErrors.KindOf(err))
}

func TestReadEnvelopeValidLengthGarbagePayloadFailsToDeserialize(t *testing.T) {
	buf := &bytes.Buffer{}
	garbage := []byte("not json{{{")
	header := make([]byte, 4)
	header[0] = byte(len(garbage))
	buf.Write(header)
	buf.Write(garbage)
	conn := NewConn(buf, 0)

	_, err := conn.ReadEnvelope()
	require.Error(t, err)
	require.Equal(t, ggrepErrors.KindInvalidRequest, ggrepErrors.KindOf(err))
}

func TestConnSurvivesBadFrameOnNextRead(t *testing.T) {
	buf := &bytes.Buffer{}
	conn := NewConn(buf, 0)

	garbage := []byte("garbage")
	header := make([]byte, 4)
	header[0] = byte(len(garbage))
	buf.Write(header)
	buf.Write(garbage)
	_, err := conn.ReadEnvelope()
	require.Error(t, err)

	require.NoError(t, conn.WriteEnvelope(&Envelope{Type: TypeHealth, Health: &Health{StoreID: "s1"}}))
	got, err := conn.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, TypeHealth, got.Type)
}

func TestFromErrorPreservesKindAndDetails(t *testing.T) {
	src := ggrepErrors.New(ggrepErrors.KindBusy, "writer lease held").WithDetail("owner", "pid-123")
	wire := FromError(src)
	require.Equal(t, string(ggrepErrors.KindBusy), wire.Code)
	require.Equal(t, "pid-123", wire.Details["owner"])
}
