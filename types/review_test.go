package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewValidateBasic(t *testing.T) {
	valid := ReviewRecord{User: "u1", Product: "p1", Rating: 4, Comment: "works well"}

	testCases := map[string]struct {
		malleate func(r *ReviewRecord)
		valid    bool
	}{
		"valid":           {func(r *ReviewRecord) {}, true},
		"rating too low":  {func(r *ReviewRecord) { r.Rating = 0 }, false},
		"rating too high": {func(r *ReviewRecord) { r.Rating = 6 }, false},
		"blank comment":   {func(r *ReviewRecord) { r.Comment = "   " }, false},
		"long comment":    {func(r *ReviewRecord) { r.Comment = strings.Repeat("a", MaxCommentLength+1) }, false},
		"no user":         {func(r *ReviewRecord) { r.User = "" }, false},
		"no product":      {func(r *ReviewRecord) { r.Product = "" }, false},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			r := valid
			tc.malleate(&r)
			err := r.ValidateBasic()
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidReview)
			}
		})
	}
}

func TestReviewSnapshotDeterministic(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	r := ReviewRecord{ID: "r1", User: "u1", Product: "p1", Rating: 5, Comment: "great", CreatedAt: created}

	a, err := r.Snapshot().Bytes()
	require.NoError(t, err)
	r.Attestation = Attestation{Stored: true, ContentID: "bafy"}
	b, err := r.Snapshot().Bytes()
	require.NoError(t, err)
	assert.Equal(t, a, b, "attestation fields must not leak into the snapshot")

	assert.Equal(t,
		`{"review_id":"r1","user_id":"u1","product_id":"p1","rating":5,"comment":"great","created_at":"2024-03-01T11:00:00Z"}`,
		string(a))

	s, err := DecodeReviewSnapshot(a)
	require.NoError(t, err)
	assert.Equal(t, r.Snapshot(), s)
}

func TestDecodeReviewSnapshotRejectsGarbage(t *testing.T) {
	_, err := DecodeReviewSnapshot([]byte("not json"))
	require.Error(t, err)
	_, err = DecodeReviewSnapshot([]byte(`{"rating":3}`))
	require.Error(t, err)
}
