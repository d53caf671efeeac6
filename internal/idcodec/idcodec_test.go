package idcodec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/rholang-core/internal/encoding"
	"github.com/standardbeagle/rholang-core/internal/idcodec"
	"github.com/standardbeagle/rholang-core/internal/types"
)

func TestPIDRoundTrip(t *testing.T) {
	p := types.PID(42)
	s := idcodec.EncodePID(p)
	got, err := idcodec.DecodePID(s)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPIDTopLevelRendersSentinel(t *testing.T) {
	assert.Equal(t, "<top-level>", idcodec.EncodePID(types.TopLevel))
}

func TestDecodePIDRejectsTopLevelSentinelValue(t *testing.T) {
	s := encoding.Encode(uint64(types.TopLevel))
	_, err := idcodec.DecodePID(s)
	assert.Error(t, err)
}

func TestDecodePIDRejectsInvalidDigits(t *testing.T) {
	_, err := idcodec.DecodePID("has space")
	assert.Error(t, err)
}

func TestBinderIDRoundTrip(t *testing.T) {
	b := types.BinderId(7)
	s := idcodec.EncodeBinderID(b)
	got, err := idcodec.DecodeBinderID(s)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestTemplateIDRoundTrip(t *testing.T) {
	id := uint64(123456)
	s := idcodec.EncodeTemplateID(id)
	got, err := idcodec.DecodeTemplateID(s)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestEncodeSymbolDummy(t *testing.T) {
	assert.Equal(t, "<dummy>", idcodec.EncodeSymbol(types.DummySymbol))
}
