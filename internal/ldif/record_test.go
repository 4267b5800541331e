package ldif

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordFramerForTest(chunks ...string) *recordFramer {
	return newRecordFramer(newLineSource(newFakeConfig(chunks...)))
}

func TestFramerSimpleRecord(t *testing.T) {
	f := newRecordFramerForTest("dn: dc=example,dc=com\nobjectClass: top\ncn: a\n\n")
	rec, err := f.nextRecord()
	require.NoError(t, err)
	assert.Equal(t, "dn: dc=example,dc=com", rec.Header)
	assert.Equal(t, []string{"objectClass: top", "cn: a"}, rec.Body)

	_, err = f.nextRecord()
	assert.ErrorIs(t, err, ErrEndOfInput)
}

func TestFramerContinuationLine(t *testing.T) {
	f := newRecordFramerForTest("dn: dc=example,dc=com\ndescription: a long\n value split over lines\n\n")
	rec, err := f.nextRecord()
	require.NoError(t, err)
	assert.Equal(t, []string{"description: a long value split over lines"}, rec.Body)
}

func TestFramerCommentsDiscarded(t *testing.T) {
	f := newRecordFramerForTest("# leading comment\ndn: dc=example,dc=com\n# mid comment\ncn: a\n\n")
	rec, err := f.nextRecord()
	require.NoError(t, err)
	assert.Equal(t, "dn: dc=example,dc=com", rec.Header)
	assert.Equal(t, []string{"cn: a"}, rec.Body)
}

func TestFramerVersionDirectiveConsumed(t *testing.T) {
	f := newRecordFramerForTest("version: 1\ndn: dc=example,dc=com\ncn: a\n\n")
	rec, err := f.nextRecord()
	require.NoError(t, err)
	assert.Equal(t, "dn: dc=example,dc=com", rec.Header)
}

func TestFramerStandaloneVersionRetries(t *testing.T) {
	f := newRecordFramerForTest("version: 1\n\ndn: dc=example,dc=com\ncn: a\n\n")
	_, err := f.nextRecord()
	assert.ErrorIs(t, err, errRetry)

	rec, err := f.nextRecord()
	require.NoError(t, err)
	assert.Equal(t, "dn: dc=example,dc=com", rec.Header)
}

func TestFramerLeadingSpaceWithoutPredecessorErrors(t *testing.T) {
	f := newRecordFramerForTest(" continuation with no predecessor\n\n")
	_, err := f.nextRecord()
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.CanContinue)
}

func TestFramerMultipleRecordsAcrossBlankLines(t *testing.T) {
	f := newRecordFramerForTest("dn: dc=a,dc=com\ncn: a\n\ndn: dc=b,dc=com\ncn: b\n\n")
	first, err := f.nextRecord()
	require.NoError(t, err)
	assert.Equal(t, "dn: dc=a,dc=com", first.Header)

	second, err := f.nextRecord()
	require.NoError(t, err)
	assert.Equal(t, "dn: dc=b,dc=com", second.Header)

	_, err = f.nextRecord()
	assert.ErrorIs(t, err, ErrEndOfInput)
}
