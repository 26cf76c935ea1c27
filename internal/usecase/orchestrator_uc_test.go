package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alfanzaky/socialtx/internal/domain"
)

type scriptedBuilder struct {
	calls int
	sets  []*domain.UnsignedTransactionSet
	err   error
}

func (b *scriptedBuilder) Build(context.Context, *domain.TransactionIntent) (*domain.UnsignedTransactionSet, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	idx := b.calls - 1
	if idx >= len(b.sets) {
		idx = len(b.sets) - 1
	}
	return b.sets[idx], nil
}

type stubSigner struct {
	signed []string
	err    error
	failOn string
}

func (s *stubSigner) Sign(_ context.Context, tx domain.UnsignedTransaction) (*domain.SignedTransaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.failOn != "" && tx.Description == s.failOn {
		return nil, domain.NewFailure(domain.ErrorKindSigningFailed, "wallet could not sign", nil)
	}
	s.signed = append(s.signed, tx.Description)
	return &domain.SignedTransaction{
		Payload:     tx.Payload,
		Signatures:  []string{"sig-" + tx.Description},
		Role:        tx.Role,
		Description: tx.Description,
	}, nil
}

// stubRelay answers submits from submitErrs in order, then accepts
type stubRelay struct {
	mu         sync.Mutex
	submitted  []string
	submitErrs []error
	fee        uint64
	statuses   []*domain.TransactionStatus
	polls      int
}

func (r *stubRelay) BuildUnsigned(context.Context, *domain.BuildRequest) (*domain.UnsignedTransactionSet, error) {
	return nil, errors.New("not used")
}

func (r *stubRelay) Submit(_ context.Context, signed *domain.SignedTransaction, _ domain.SendOptions) (*domain.SubmitReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.submitErrs) > 0 {
		err := r.submitErrs[0]
		r.submitErrs = r.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	r.submitted = append(r.submitted, signed.Signature())
	return &domain.SubmitReceipt{Signature: signed.Signature(), Fee: r.fee}, nil
}

func (r *stubRelay) PollStatus(context.Context, string) (*domain.TransactionStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.polls
	r.polls++
	if len(r.statuses) == 0 {
		return &domain.TransactionStatus{Status: domain.SubmissionConfirmed}, nil
	}
	if idx >= len(r.statuses) {
		idx = len(r.statuses) - 1
	}
	return r.statuses[idx], nil
}

func (r *stubRelay) LatestReference(context.Context) (string, error) {
	return "11111111111111111111111111111111", nil
}

type recordingLedger struct {
	records []*domain.SubmissionRecord
}

func (l *recordingLedger) Record(_ context.Context, record *domain.SubmissionRecord) error {
	l.records = append(l.records, record)
	return nil
}

func (l *recordingLedger) GetBySignature(context.Context, string) (*domain.SubmissionRecord, error) {
	return nil, domain.ErrSubmissionNotFound
}

func (l *recordingLedger) ListByWallet(context.Context, string, int) ([]*domain.SubmissionRecord, error) {
	return l.records, nil
}

func chain(descriptions ...string) *domain.UnsignedTransactionSet {
	set := &domain.UnsignedTransactionSet{}
	for i, d := range descriptions {
		role := domain.TxRoleSetup
		if i == len(descriptions)-1 {
			role = domain.TxRolePrimary
		}
		set.Transactions = append(set.Transactions, domain.UnsignedTransaction{
			Payload:     []byte(d),
			Description: d,
			Role:        role,
		})
	}
	return set
}

func tipIntent() *domain.TransactionIntent {
	return &domain.TransactionIntent{
		Type:      domain.IntentCreateTip,
		Wallet:    "wallet-1",
		CreateTip: &domain.CreateTipParams{Recipient: "creator", Amount: 1000},
	}
}

func newTestOrchestrator(builder *scriptedBuilder, signer *stubSigner, relay *stubRelay, ledger *recordingLedger) *Orchestrator {
	var submissions domain.SubmissionRepository
	if ledger != nil {
		submissions = ledger
	}
	return NewOrchestrator(builder, signer, relay, submissions, OrchestratorConfig{
		PollAttempts: 3,
		PollInterval: time.Millisecond,
	})
}

func orchestratorKind(t *testing.T, err error) *domain.OrchestratorError {
	t.Helper()
	var oerr *domain.OrchestratorError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected *OrchestratorError, got %T: %v", err, err)
	}
	return oerr
}

func TestOrchestrator_ExecuteChain(t *testing.T) {
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("init-profile", "tip")}}
	signer := &stubSigner{}
	relay := &stubRelay{fee: 5000}
	ledger := &recordingLedger{}
	o := newTestOrchestrator(builder, signer, relay, ledger)

	result, err := o.Execute(context.Background(), tipIntent())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Signature != "sig-tip" {
		t.Errorf("Expected primary signature, got %s", result.Signature)
	}
	if result.Fee == nil || *result.Fee != 10000 {
		t.Errorf("Expected fees summed across the chain, got %v", result.Fee)
	}
	if len(relay.submitted) != 2 || relay.submitted[0] != "sig-init-profile" {
		t.Errorf("Expected setup submitted before primary, got %v", relay.submitted)
	}
	if len(ledger.records) != 1 || ledger.records[0].Status != domain.SubmissionConfirmed {
		t.Fatalf("Expected one confirmed ledger record, got %+v", ledger.records)
	}
	if ledger.records[0].IntentType != string(domain.IntentCreateTip) || ledger.records[0].Wallet != "wallet-1" {
		t.Errorf("ledger record not labelled: %+v", ledger.records[0])
	}
}

func TestOrchestrator_SingleElement(t *testing.T) {
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("create-user")}}
	signer := &stubSigner{}
	relay := &stubRelay{fee: 5000}
	o := newTestOrchestrator(builder, signer, relay, nil)

	result, err := o.Execute(context.Background(), tipIntent())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(signer.signed) != 1 || len(relay.submitted) != 1 || relay.polls != 1 {
		t.Errorf("Expected one sign, submit and poll, got %d, %d, %d", len(signer.signed), len(relay.submitted), relay.polls)
	}
	if result.Fee == nil || *result.Fee != 5000 {
		t.Errorf("Expected submit fee, got %v", result.Fee)
	}
}

func TestOrchestrator_SetupSigningFailureStopsChain(t *testing.T) {
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("setup", "post")}}
	signer := &stubSigner{failOn: "setup"}
	relay := &stubRelay{}
	o := newTestOrchestrator(builder, signer, relay, nil)

	_, err := o.Execute(context.Background(), tipIntent())
	if oerr := orchestratorKind(t, err); oerr.Kind != domain.OrchestratorSigningFailed {
		t.Errorf("Expected signing failure, got %s", oerr.Kind)
	}
	if len(signer.signed) != 0 || len(relay.submitted) != 0 {
		t.Errorf("Primary must never be signed or submitted, signed=%v submitted=%v", signer.signed, relay.submitted)
	}
}

func TestOrchestrator_ConfirmedFeeWins(t *testing.T) {
	fee := uint64(7000)
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("post")}}
	relay := &stubRelay{
		fee:      5000,
		statuses: []*domain.TransactionStatus{{Status: domain.SubmissionConfirmed, Fee: &fee}},
	}
	o := newTestOrchestrator(builder, &stubSigner{}, relay, nil)

	result, err := o.Execute(context.Background(), tipIntent())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Fee == nil || *result.Fee != 7000 {
		t.Errorf("Expected fee from status, got %v", result.Fee)
	}
}

func TestOrchestrator_UserRejectionCancels(t *testing.T) {
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("setup", "post")}}
	signer := &stubSigner{err: domain.NewFailure(domain.ErrorKindUserRejected, "User rejected the request", nil)}
	relay := &stubRelay{}
	ledger := &recordingLedger{}
	o := newTestOrchestrator(builder, signer, relay, ledger)

	_, err := o.Execute(context.Background(), tipIntent())
	oerr := orchestratorKind(t, err)
	if oerr.Kind != domain.OrchestratorCancelled || !oerr.IsInformational() {
		t.Errorf("Expected informational cancellation, got %s", oerr.Kind)
	}
	if len(relay.submitted) != 0 {
		t.Errorf("Nothing may be submitted after a rejection, got %v", relay.submitted)
	}
	if len(ledger.records) != 0 {
		t.Errorf("Nothing reached the chain, ledger should be empty, got %d", len(ledger.records))
	}
}

func TestOrchestrator_CancelledBeforeSigning(t *testing.T) {
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("post")}}
	relay := &stubRelay{}
	o := newTestOrchestrator(builder, &stubSigner{}, relay, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Execute(ctx, tipIntent())
	if oerr := orchestratorKind(t, err); oerr.Kind != domain.OrchestratorCancelled {
		t.Errorf("Expected cancelled, got %s", oerr.Kind)
	}
	if len(relay.submitted) != 0 {
		t.Errorf("Expected no submissions, got %v", relay.submitted)
	}
}

func TestOrchestrator_StaleReferenceRebuildsOnce(t *testing.T) {
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("post-v1"), chain("post-v2")}}
	signer := &stubSigner{}
	relay := &stubRelay{submitErrs: []error{
		domain.NewFailure(domain.ErrorKindStaleReference, "Blockhash not found", nil),
	}}
	o := newTestOrchestrator(builder, signer, relay, nil)

	result, err := o.Execute(context.Background(), tipIntent())
	if err != nil {
		t.Fatalf("Expected rebuild to succeed, got %v", err)
	}
	if builder.calls != 2 {
		t.Errorf("Expected one rebuild, builder called %d times", builder.calls)
	}
	if result.Signature != "sig-post-v2" {
		t.Errorf("Expected signature of rebuilt transaction, got %s", result.Signature)
	}

	// a second stale rejection is surfaced instead of looping
	builder = &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("a"), chain("b")}}
	stale := domain.NewFailure(domain.ErrorKindStaleReference, "Blockhash not found", nil)
	relay = &stubRelay{submitErrs: []error{stale, stale}}
	o = newTestOrchestrator(builder, &stubSigner{}, relay, nil)

	_, err = o.Execute(context.Background(), tipIntent())
	if oerr := orchestratorKind(t, err); oerr.Kind != domain.OrchestratorStaleReference || !oerr.Retryable() {
		t.Errorf("Expected retryable stale reference, got %s", oerr.Kind)
	}
}

func TestOrchestrator_RebuildKeepsAcceptedSetup(t *testing.T) {
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("setup", "primary")}}
	relay := &stubRelay{
		fee: 5000,
		submitErrs: []error{
			nil,
			domain.NewFailure(domain.ErrorKindStaleReference, "Blockhash not found", nil),
		},
	}
	o := newTestOrchestrator(builder, &stubSigner{}, relay, nil)

	result, err := o.Execute(context.Background(), tipIntent())
	if err != nil {
		t.Fatalf("Expected rebuild to succeed, got %v", err)
	}
	if builder.calls != 2 {
		t.Errorf("Expected one rebuild, builder called %d times", builder.calls)
	}
	if len(relay.submitted) != 2 || relay.submitted[0] != "sig-setup" || relay.submitted[1] != "sig-primary" {
		t.Errorf("Expected the accepted setup to be sent once, got %v", relay.submitted)
	}
	if result.Fee == nil || *result.Fee != 10000 {
		t.Errorf("Expected fee 10000, got %v", result.Fee)
	}
	if len(result.Elements) != 2 {
		t.Errorf("Expected two elements, got %v", result.Elements)
	}
}

func TestOrchestrator_ConfirmationTimeoutCarriesSignature(t *testing.T) {
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("vote")}}
	relay := &stubRelay{statuses: []*domain.TransactionStatus{{Status: domain.SubmissionSubmitted}}}
	ledger := &recordingLedger{}
	o := newTestOrchestrator(builder, &stubSigner{}, relay, ledger)

	_, err := o.Execute(context.Background(), tipIntent())
	oerr := orchestratorKind(t, err)
	if oerr.Kind != domain.OrchestratorConfirmationTimeout {
		t.Fatalf("Expected confirmation timeout, got %s", oerr.Kind)
	}
	if oerr.Signature != "sig-vote" {
		t.Errorf("Expected signature on timeout, got %q", oerr.Signature)
	}
	if oerr.Retryable() {
		t.Error("A confirmation timeout must not be retried as a whole")
	}
	if relay.polls != 3 {
		t.Errorf("Expected 3 polls, got %d", relay.polls)
	}
	if len(ledger.records) != 1 || ledger.records[0].Status != domain.SubmissionSubmitted {
		t.Errorf("Expected submitted ledger record, got %+v", ledger.records)
	}
}

func TestOrchestrator_OnChainFailure(t *testing.T) {
	builder := &scriptedBuilder{sets: []*domain.UnsignedTransactionSet{chain("tip")}}
	relay := &stubRelay{statuses: []*domain.TransactionStatus{{
		Status: domain.SubmissionFailed,
		Error:  "Transfer: insufficient lamports 10, need 1000",
	}}}
	o := newTestOrchestrator(builder, &stubSigner{}, relay, nil)

	_, err := o.Execute(context.Background(), tipIntent())
	oerr := orchestratorKind(t, err)
	if oerr.Kind != domain.OrchestratorInsufficientFunds {
		t.Errorf("Expected insufficient funds, got %s", oerr.Kind)
	}
	if oerr.Signature != "sig-tip" {
		t.Errorf("Expected signature on on-chain failure, got %q", oerr.Signature)
	}
}

func TestOrchestrator_BuildErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"backend down", &domain.BuildError{Reason: domain.BuildBackendUnavailable, Err: errors.New("dial tcp")}, true},
		{"rate limited", &domain.BuildError{Reason: domain.BuildRateLimited}, true},
		{"invalid intent", &domain.BuildError{Reason: domain.BuildInvalidIntent, Err: errors.New("bad")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(&scriptedBuilder{err: tt.err}, &stubSigner{}, &stubRelay{}, nil)
			_, err := o.Execute(context.Background(), tipIntent())
			oerr := orchestratorKind(t, err)
			if oerr.Kind != domain.OrchestratorBuildFailed {
				t.Errorf("kind = %s, want %s", oerr.Kind, domain.OrchestratorBuildFailed)
			}
			if oerr.Retryable() != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", oerr.Retryable(), tt.retryable)
			}
		})
	}
}

func TestOrchestrator_ResumeDoesNotResubmit(t *testing.T) {
	relay := &stubRelay{}
	o := newTestOrchestrator(&scriptedBuilder{}, &stubSigner{}, relay, nil)

	result, err := o.Resume(context.Background(), "sig-existing", ExecuteOptions{IntentType: "create_post"})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if result.Signature != "sig-existing" || result.Status != domain.SubmissionConfirmed {
		t.Errorf("unexpected result %+v", result)
	}
	if len(relay.submitted) != 0 {
		t.Errorf("Resume must not submit, got %v", relay.submitted)
	}
}
