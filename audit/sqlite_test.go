package audit

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	repricer "github.com/yidyetebeje/circtek-buyback-sub001"
)

func TestSQLiteSink_RecordAndCount(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer sink.Close()

	entries := []repricer.AuditEntry{
		{
			ID:         "e1",
			Endpoint:   "listings/l1/price",
			Priority:   repricer.PriorityNormal,
			Admission:  repricer.AdmissionAdmitted,
			HTTPStatus: 200,
			Duration:   120 * time.Millisecond,
			Timestamp:  time.Now(),
		},
		{
			ID:        "e2",
			Endpoint:  "listings/l2/competitors",
			Priority:  repricer.PriorityHigh,
			Admission: repricer.AdmissionQueued,
			Timestamp: time.Now(),
		},
		{
			ID:        "e3",
			Endpoint:  "reserve",
			Priority:  repricer.PriorityNormal,
			Admission: repricer.AdmissionRejected,
			Err:       errors.New("cost exceeds window"),
			Timestamp: time.Now(),
		},
	}
	for _, e := range entries {
		require.NoError(t, sink.Record(e))
	}

	admitted, err := sink.CountByAdmission(repricer.AdmissionAdmitted)
	require.NoError(t, err)
	assert.Equal(t, 1, admitted)

	rejected, err := sink.CountByAdmission(repricer.AdmissionRejected)
	require.NoError(t, err)
	assert.Equal(t, 1, rejected)
}

func TestSQLiteSink_DuplicateIDsAreReplaced(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer sink.Close()

	e := repricer.AuditEntry{
		ID:        "same",
		Endpoint:  "orders",
		Priority:  repricer.PriorityNormal,
		Admission: repricer.AdmissionAdmitted,
		Timestamp: time.Now(),
	}
	require.NoError(t, sink.Record(e))
	require.NoError(t, sink.Record(e))

	n, err := sink.CountByAdmission(repricer.AdmissionAdmitted)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
