package integration

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type seeded struct {
	orgID, memberID, otherID, walletID, requestID, procedureID uuid.UUID
}

// seedMember creates an organization with a wallet program, a member with a
// wallet, one reimbursement request with a receipt, a debit card, a health
// plan, a treatment procedure and a message thread with another member.
func seedMember(t *testing.T, pool *pgxpool.Pool) seeded {
	t.Helper()
	s := seeded{
		orgID: uuid.New(), memberID: uuid.New(), otherID: uuid.New(),
		walletID: uuid.New(), requestID: uuid.New(), procedureID: uuid.New(),
	}
	settingsID, categoryID, channelID, messageID := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	exec(t, pool, `INSERT INTO organization (id, name, allows_wallet) VALUES ($1, 'Acme Corp', TRUE)`, s.orgID)
	exec(t, pool, `INSERT INTO member (id, email, first_name, last_name, date_of_birth, organization_id)
		VALUES ($1, $2, 'Ada', 'Lovelace', '1990-04-02', $3)`, s.memberID, s.memberID.String()+"@example.com", s.orgID)
	exec(t, pool, `INSERT INTO member (id, email, first_name, last_name, role)
		VALUES ($1, $2, 'Grace', 'Hopper', 'care_advocate')`, s.otherID, s.otherID.String()+"@example.com")

	exec(t, pool, `INSERT INTO wallet_organization_settings (id, organization_id, started_at)
		VALUES ($1, $2, '2026-01-01')`, settingsID, s.orgID)
	exec(t, pool, `INSERT INTO wallet_category (id, organization_settings_id, label, short_label, limit_cents)
		VALUES ($1, $2, 'Fertility', 'fertility', 5000000)`, categoryID, settingsID)
	exec(t, pool, `INSERT INTO wallet (id, member_id, organization_settings_id, state, reimbursement_method)
		VALUES ($1, $2, $3, 'QUALIFIED', 'DIRECT_DEPOSIT')`, s.walletID, s.memberID, settingsID)
	exec(t, pool, `INSERT INTO reimbursement_request (id, wallet_id, category_id, label, service_provider,
		amount_cents, service_start_date) VALUES ($1, $2, $3, 'IVF', 'Clinic', 120000, '2026-02-10')`,
		s.requestID, s.walletID, categoryID)
	exec(t, pool, `INSERT INTO reimbursement_request_source (id, reimbursement_request_id, blob_key, file_name,
		content_type, sha256) VALUES ($1, $2, $3, 'receipt.pdf', 'application/pdf', 'abc')`,
		uuid.New(), s.requestID, "reimbursement/"+s.walletID.String()+"/"+s.requestID.String()+"/receipt.pdf")
	exec(t, pool, `INSERT INTO debit_card (id, wallet_id, status) VALUES ($1, $2, 'ACTIVE')`, uuid.New(), s.walletID)

	exec(t, pool, `INSERT INTO member_health_plan (id, member_id, wallet_id, payer_name, subscriber_id,
		subscriber_first_name, subscriber_last_name, subscriber_dob, patient_first_name, patient_last_name,
		patient_dob, patient_sex, relationship, plan_start)
		VALUES ($1, $2, $3, 'cigna', 'SUB123', 'Ada', 'Lovelace', '1990-04-02', 'Ada', 'Lovelace',
		'1990-04-02', 'F', 'self', '2026-01-01')`, uuid.New(), s.memberID, s.walletID)
	exec(t, pool, `INSERT INTO treatment_procedure (id, member_id, procedure_code, diagnosis_code, provider_npi,
		provider_name, start_date, end_date, cost_cents)
		VALUES ($1, $2, '58970', 'N97.9', '1234567893', 'Clinic', '2026-02-10', '2026-02-10', 100000)`,
		s.procedureID, s.memberID)

	exec(t, pool, `INSERT INTO channel (id, name) VALUES ($1, 'Ada, Grace')`, channelID)
	exec(t, pool, `INSERT INTO channel_participant (channel_id, user_id, is_initiator) VALUES ($1, $2, TRUE), ($1, $3, FALSE)`,
		channelID, s.memberID, s.otherID)
	exec(t, pool, `INSERT INTO message (id, channel_id, user_id, body) VALUES ($1, $2, $3, 'hello')`,
		messageID, channelID, s.memberID)
	exec(t, pool, `INSERT INTO message_read (message_id, user_id) VALUES ($1, $2)`, messageID, s.otherID)
	return s
}
