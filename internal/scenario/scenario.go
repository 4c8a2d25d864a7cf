// Package scenario defines the scripted money-movement workflow the tool
// drives against a ledger API. Two actors register and authenticate, both
// prove their identity, the sender is provisioned with a balance, the
// receiver tops up, the sender transfers to the receiver, and the receiver
// withdraws. Every step reads the identifiers and tokens earlier steps
// stored in the session.
package scenario

import (
	"fmt"

	"github.com/example/paygate/tools/flowcheck/internal/client"
	"github.com/example/paygate/tools/flowcheck/internal/config"
	"github.com/example/paygate/tools/flowcheck/internal/envelope"
	"github.com/example/paygate/tools/flowcheck/internal/generator"
	"github.com/example/paygate/tools/flowcheck/internal/session"
	"github.com/example/paygate/tools/flowcheck/internal/workflow"
)

// Session keys produced by the workflow steps.
const (
	KeySenderID      = "sender.id"
	KeySenderToken   = "sender.token"
	KeyReceiverID    = "receiver.id"
	KeyReceiverToken = "receiver.token"
	KeySenderSaldoID = "sender.saldo_id"
	KeyTopupID       = "topup.id"
	KeyTransferID    = "transfer.id"
	KeyWithdrawID    = "withdraw.id"
)

// Params holds everything the workflow needs up front. Identifiers and
// tokens are threaded through the session at run time.
type Params struct {
	// Sender funds an account and transfers money out.
	Sender generator.Actor

	// Receiver tops up, receives the transfer, and withdraws.
	Receiver generator.Actor

	// InitialBalance is the sender's provisioned balance.
	InitialBalance int64

	// TopupAmount and TopupMethod describe the receiver's top-up.
	TopupAmount int64
	TopupMethod string

	// TransferAmount moves from sender to receiver.
	TransferAmount int64

	// WithdrawAmount is taken out by the receiver.
	WithdrawAmount int64

	// Preflight prepends a health check step to the workflow.
	Preflight bool
}

// FromConfig builds the workflow described by a run configuration.
func FromConfig(cfg *config.Config, gen *generator.Generator) workflow.Workflow {
	sender := gen.Actor(generator.ActorSpec{
		FirstName:   cfg.Actors.Sender.FirstName,
		LastName:    cfg.Actors.Sender.LastName,
		EmailStem:   cfg.Actors.Sender.EmailStem,
		EmailDomain: cfg.Actors.EmailDomain,
		Password:    cfg.Actors.Password,
		Randomize:   cfg.Actors.Randomize,
	})

	receiver := gen.Actor(generator.ActorSpec{
		FirstName:   cfg.Actors.Receiver.FirstName,
		LastName:    cfg.Actors.Receiver.LastName,
		EmailStem:   cfg.Actors.Receiver.EmailStem,
		EmailDomain: cfg.Actors.EmailDomain,
		Password:    cfg.Actors.Password,
		Randomize:   cfg.Actors.Randomize,
	})

	wf := Build(Params{
		Sender:         sender,
		Receiver:       receiver,
		InitialBalance: cfg.Amounts.InitialBalance,
		TopupAmount:    cfg.Amounts.Topup,
		TopupMethod:    cfg.TopupMethod,
		TransferAmount: cfg.Amounts.Transfer,
		WithdrawAmount: cfg.Amounts.Withdraw,
		Preflight:      cfg.Preflight,
	}, gen)

	wf.Name = cfg.Name
	if cfg.Description != "" {
		wf.Description = cfg.Description
	}
	return wf
}

// Build assembles the money-movement workflow. Step order is fixed:
// registration before login before the identity check, and every
// money-moving step after the identities it spends are established.
func Build(p Params, gen *generator.Generator) workflow.Workflow {
	steps := make([]workflow.Step, 0, 11)

	if p.Preflight {
		steps = append(steps, healthCheck())
	}

	steps = append(steps,
		register("register_sender", p.Sender, KeySenderID),
		register("register_receiver", p.Receiver, KeyReceiverID),
		login("login_sender", p.Sender, KeySenderToken),
		login("login_receiver", p.Receiver, KeyReceiverToken),
		whoami("whoami_sender", KeySenderToken, KeySenderID),
		whoami("whoami_receiver", KeyReceiverToken, KeyReceiverID),
		createSaldo(p.InitialBalance),
		createTopup(p.TopupAmount, p.TopupMethod, gen),
		createTransfer(p.TransferAmount),
		createWithdraw(p.WithdrawAmount, gen),
	)

	return workflow.Workflow{
		Name:        "money_movement",
		Description: "register two actors, provision balances, transfer, withdraw",
		Steps:       steps,
	}
}

// Request payloads, field names as the ledger API expects them.

type registerRequest struct {
	Firstname       string `json:"firstname"`
	Lastname        string `json:"lastname"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type saldoRequest struct {
	UserID       int64 `json:"user_id"`
	TotalBalance int64 `json:"total_balance"`
}

type topupRequest struct {
	UserID      int64  `json:"user_id"`
	TopupNo     string `json:"topup_no"`
	TopupAmount int64  `json:"topup_amount"`
	TopupMethod string `json:"topup_method"`
}

type transferRequest struct {
	TransferFrom   int64 `json:"transfer_from"`
	TransferTo     int64 `json:"transfer_to"`
	TransferAmount int64 `json:"transfer_amount"`
}

type withdrawRequest struct {
	UserID         int64  `json:"user_id"`
	WithdrawAmount int64  `json:"withdraw_amount"`
	WithdrawTime   string `json:"withdraw_time"`
}

// bearer builds the authorization header carrying an actor's token.
func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// healthCheck pings the service before the workflow touches any money.
// The endpoint returns a plain greeting, so only the status is checked.
func healthCheck() workflow.Step {
	return workflow.Step{
		Name:           "health_check",
		ExpectedStatus: 200,
		Request: func(*session.State) (client.Request, error) {
			return client.Request{Method: "GET", Path: "/api/healthchecker"}, nil
		},
	}
}

func register(name string, actor generator.Actor, idKey string) workflow.Step {
	return workflow.Step{
		Name:           name,
		Store:          idKey,
		ExpectedStatus: 200,
		ExtractPath:    "data.id",
		Request: func(*session.State) (client.Request, error) {
			return client.Request{
				Method: "POST",
				Path:   "/api/auth/register",
				Body: registerRequest{
					Firstname:       actor.FirstName,
					Lastname:        actor.LastName,
					Email:           actor.Email,
					Password:        actor.Password,
					ConfirmPassword: actor.Password,
				},
			}, nil
		},
	}
}

// login stores the whole data payload: for this API the envelope data IS
// the access token.
func login(name string, actor generator.Actor, tokenKey string) workflow.Step {
	return workflow.Step{
		Name:           name,
		Store:          tokenKey,
		ExpectedStatus: 200,
		ExtractPath:    "data",
		Request: func(*session.State) (client.Request, error) {
			return client.Request{
				Method: "POST",
				Path:   "/api/auth/login",
				Body: loginRequest{
					Email:    actor.Email,
					Password: actor.Password,
				},
			}, nil
		},
	}
}

// whoami checks that the service resolves the actor's token back to the
// identifier registration produced.
func whoami(name, tokenKey, idKey string) workflow.Step {
	return workflow.Step{
		Name:           name,
		Requires:       []string{tokenKey, idKey},
		ExpectedStatus: 200,
		ExtractPath:    "data.id",
		Request: func(state *session.State) (client.Request, error) {
			token, err := state.String(tokenKey)
			if err != nil {
				return client.Request{}, err
			}
			return client.Request{
				Method:  "GET",
				Path:    "/api/auth/me",
				Headers: bearer(token),
			}, nil
		},
		Verify: func(state *session.State, value envelope.Value) error {
			want, err := state.Int(idKey)
			if err != nil {
				return err
			}
			if got := value.Int(); got != want {
				return fmt.Errorf("%w: registered id %d, authenticated id %d", workflow.ErrIdentityMismatch, want, got)
			}
			return nil
		},
	}
}

func createSaldo(amount int64) workflow.Step {
	return workflow.Step{
		Name:           "create_saldo",
		Requires:       []string{KeySenderToken, KeySenderID},
		Store:          KeySenderSaldoID,
		ExpectedStatus: 201,
		ExtractPath:    "data.id",
		Request: func(state *session.State) (client.Request, error) {
			if amount <= 0 {
				return client.Request{}, fmt.Errorf("%w: initial balance must be positive, got %d", workflow.ErrBusinessRule, amount)
			}
			token, err := state.String(KeySenderToken)
			if err != nil {
				return client.Request{}, err
			}
			userID, err := state.Int(KeySenderID)
			if err != nil {
				return client.Request{}, err
			}
			return client.Request{
				Method:  "POST",
				Path:    "/api/saldos",
				Headers: bearer(token),
				Body: saldoRequest{
					UserID:       userID,
					TotalBalance: amount,
				},
			}, nil
		},
	}
}

// createTopup generates a fresh reference number per call so reruns never
// collide on the top-up ledger.
func createTopup(amount int64, method string, gen *generator.Generator) workflow.Step {
	return workflow.Step{
		Name:           "create_topup",
		Requires:       []string{KeyReceiverToken, KeyReceiverID},
		Store:          KeyTopupID,
		ExpectedStatus: 201,
		ExtractPath:    "data.topup_id",
		Request: func(state *session.State) (client.Request, error) {
			if amount <= 0 {
				return client.Request{}, fmt.Errorf("%w: topup amount must be positive, got %d", workflow.ErrBusinessRule, amount)
			}
			token, err := state.String(KeyReceiverToken)
			if err != nil {
				return client.Request{}, err
			}
			userID, err := state.Int(KeyReceiverID)
			if err != nil {
				return client.Request{}, err
			}
			return client.Request{
				Method:  "POST",
				Path:    "/api/topups",
				Headers: bearer(token),
				Body: topupRequest{
					UserID:      userID,
					TopupNo:     gen.TopupRef(),
					TopupAmount: amount,
					TopupMethod: method,
				},
			}, nil
		},
	}
}

func createTransfer(amount int64) workflow.Step {
	return workflow.Step{
		Name:           "create_transfer",
		Requires:       []string{KeySenderToken, KeySenderID, KeyReceiverID},
		Store:          KeyTransferID,
		ExpectedStatus: 201,
		ExtractPath:    "data.transfer_id",
		Request: func(state *session.State) (client.Request, error) {
			if amount <= 0 {
				return client.Request{}, fmt.Errorf("%w: transfer amount must be positive, got %d", workflow.ErrBusinessRule, amount)
			}
			token, err := state.String(KeySenderToken)
			if err != nil {
				return client.Request{}, err
			}
			from, err := state.Int(KeySenderID)
			if err != nil {
				return client.Request{}, err
			}
			to, err := state.Int(KeyReceiverID)
			if err != nil {
				return client.Request{}, err
			}
			return client.Request{
				Method:  "POST",
				Path:    "/api/transfers",
				Headers: bearer(token),
				Body: transferRequest{
					TransferFrom:   from,
					TransferTo:     to,
					TransferAmount: amount,
				},
			}, nil
		},
	}
}

// createWithdraw stamps the withdrawal with the wall clock at dispatch time,
// never a cached value.
func createWithdraw(amount int64, gen *generator.Generator) workflow.Step {
	return workflow.Step{
		Name:           "create_withdraw",
		Requires:       []string{KeyReceiverToken, KeyReceiverID},
		Store:          KeyWithdrawID,
		ExpectedStatus: 201,
		ExtractPath:    "data.withdraw_id",
		Request: func(state *session.State) (client.Request, error) {
			if amount <= 0 {
				return client.Request{}, fmt.Errorf("%w: withdraw amount must be positive, got %d", workflow.ErrBusinessRule, amount)
			}
			token, err := state.String(KeyReceiverToken)
			if err != nil {
				return client.Request{}, err
			}
			userID, err := state.Int(KeyReceiverID)
			if err != nil {
				return client.Request{}, err
			}
			return client.Request{
				Method:  "POST",
				Path:    "/api/withdraws",
				Headers: bearer(token),
				Body: withdrawRequest{
					UserID:         userID,
					WithdrawAmount: amount,
					WithdrawTime:   gen.WithdrawTime(),
				},
			}, nil
		},
	}
}
