package metric

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractChannelSimLine(t *testing.T) {
	// Variable internal spacing must not shift the field offset.
	log := "loading fading samples\nch:  SNR3k(dB):   -22.00  C/No(dB): -3.2\ndone\n"

	s, err := Extract(log, "C/No", 4, SourceReference)
	require.NoError(t, err)
	assert.Equal(t, -3.2, s.Value)
	assert.Equal(t, "C/No", s.Label)
	assert.Equal(t, SourceReference, s.Source)
}

func TestExtractReceiverLine(t *testing.T) {
	log := "acquisition: sync\nMeasured: -20.50 EbNodB: 3.10\n"

	s, err := Extract(log, "Measured:", 1, SourceEstimate)
	require.NoError(t, err)
	assert.Equal(t, -20.50, s.Value)
}

func TestExtractFirstMatchingLineWins(t *testing.T) {
	log := "C/No a b c 1.0 dB\nC/No a b c 2.0 dB\n"

	s, err := Extract(log, "C/No", 4, SourceReference)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Value)
}

func TestExtractNotFound(t *testing.T) {
	_, err := Extract("nothing useful here\n", "C/No", 4, SourceReference)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrParse))
}

func TestExtractFieldOutOfRange(t *testing.T) {
	_, err := Extract("C/No only three\n", "C/No", 4, SourceReference)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestExtractFieldNotANumber(t *testing.T) {
	_, err := Extract("C/No estimate: x y dB\n", "C/No", 4, SourceReference)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestExtractNegativeFieldIndex(t *testing.T) {
	_, err := Extract("C/No 1 2 3 4\n", "C/No", -1, SourceReference)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestExtractHelpers(t *testing.T) {
	s, err := ExtractChannelSim("ch: SNR3k(dB): -22.00 C/No(dB): -3.2\n")
	require.NoError(t, err)
	assert.Equal(t, -3.2, s.Value)

	s, err = ExtractReceiver("Measured: -21.2\n")
	require.NoError(t, err)
	assert.Equal(t, -21.2, s.Value)
	assert.Equal(t, SourceEstimate, s.Source)
}
