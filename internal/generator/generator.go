// Package generator produces the per-run identities and references the
// workflow registers against the ledger. Emails and top-up numbers embed
// the current unix timestamp so repeated runs never collide on accounts
// the service keeps from earlier runs.
package generator

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Actor is an identity the workflow registers and authenticates.
type Actor struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// ActorSpec describes how to build an actor.
type ActorSpec struct {
	// FirstName and LastName are used as-is unless Randomize is set.
	FirstName string
	LastName  string

	// EmailStem is the local-part prefix of the generated email.
	// Empty means the lowercase first name.
	EmailStem string

	// EmailDomain is the domain of the generated email.
	EmailDomain string

	// Password is the account password.
	Password string

	// Randomize replaces the configured names with generated ones.
	Randomize bool
}

// Generator builds actors and run-scoped references.
type Generator struct {
	faker *gofakeit.Faker

	// For testing
	nowFunc func() time.Time
}

// New creates a generator.
func New() *Generator {
	return &Generator{
		faker:   gofakeit.New(0), // Random seed
		nowFunc: time.Now,
	}
}

// WithNowFunc sets a custom time function for testing.
func (g *Generator) WithNowFunc(fn func() time.Time) *Generator {
	g.nowFunc = fn
	return g
}

// Actor builds an identity from spec.
func (g *Generator) Actor(spec ActorSpec) Actor {
	first := spec.FirstName
	last := spec.LastName
	if spec.Randomize {
		first = g.faker.FirstName()
		last = g.faker.LastName()
	}

	stem := spec.EmailStem
	if stem == "" || spec.Randomize {
		stem = strings.ToLower(first)
	}

	return Actor{
		FirstName: first,
		LastName:  last,
		Email:     fmt.Sprintf("%s_%d@%s", stem, g.nowFunc().Unix(), spec.EmailDomain),
		Password:  spec.Password,
	}
}

// TopupRef returns a fresh top-up reference number.
func (g *Generator) TopupRef() string {
	return fmt.Sprintf("TOPUP%d", g.nowFunc().Unix())
}

// WithdrawTime returns the current instant the way the ledger expects it,
// UTC with second precision.
func (g *Generator) WithdrawTime() string {
	return g.nowFunc().UTC().Truncate(time.Second).Format(time.RFC3339)
}
