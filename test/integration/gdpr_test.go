package integration

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebenefits/platform/internal/domain/gdpr"
	"github.com/carebenefits/platform/internal/platform/blobstore"
	"github.com/carebenefits/platform/internal/platform/db"
)

func TestGDPR_DeleteUser(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()
	s := seedMember(t, pool)

	blobs := blobstore.NewMemory()
	key := "reimbursement/" + s.walletID.String() + "/" + s.requestID.String() + "/receipt.pdf"
	_, err := blobs.Put(ctx, key, "application/pdf", bytes.NewReader([]byte("%PDF")))
	require.NoError(t, err)

	planner, err := gdpr.NewPlanner(gdpr.DefaultTables())
	require.NoError(t, err)
	svc := gdpr.NewService(planner, gdpr.NewRepo(pool), blobs, db.Transactor(pool), zerolog.Nop())

	res, err := svc.DeleteUser(ctx, s.memberID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Tables["member"])
	assert.EqualValues(t, 1, res.Tables["wallet"])
	assert.EqualValues(t, 1, res.Tables["reimbursement_request"])
	assert.EqualValues(t, 1, res.Tables["message"])
	assert.Equal(t, 1, res.FilesRemoved)

	for _, table := range []string{"wallet", "reimbursement_request", "reimbursement_request_source", "debit_card",
		"member_health_plan", "treatment_procedure", "message", "message_read"} {
		assert.Zero(t, count(t, pool, table), table)
	}
	// The other participant and the organization stay.
	assert.Equal(t, 1, count(t, pool, "member"))
	assert.Equal(t, 1, count(t, pool, "channel_participant"))
	assert.Equal(t, 1, count(t, pool, "organization"))

	_, err = svc.DeleteUser(ctx, uuid.New())
	assert.ErrorIs(t, err, gdpr.ErrNotFound)
}
