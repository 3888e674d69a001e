package ledger

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/fyrsmithlabs/escrowd/pkg/auth"
)

// Genesis describes the balances a fresh ledger starts with.
//
//	[[account]]
//	identity = "alice"
//	balance  = 1000
type Genesis struct {
	Accounts []GenesisAccount `toml:"account"`
}

// GenesisAccount is one funded account in a genesis file.
type GenesisAccount struct {
	Identity string `toml:"identity"`
	Balance  uint64 `toml:"balance"`
}

// LoadGenesis reads a TOML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	var g Genesis
	md, err := toml.DecodeFile(path, &g)
	if err != nil {
		return nil, fmt.Errorf("decode genesis %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis %s: unknown keys %v", path, undecoded)
	}
	return &g, nil
}

// ParseGenesis decodes genesis TOML from a string.
func ParseGenesis(data string) (*Genesis, error) {
	var g Genesis
	if _, err := toml.Decode(data, &g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	return &g, nil
}

// Apply credits every genesis account into l.
// Identities are validated up front so a bad file funds nothing.
func (g *Genesis) Apply(ctx context.Context, l *Memory) error {
	ids := make([]auth.Identity, len(g.Accounts))
	for i, acct := range g.Accounts {
		id, err := auth.ParseIdentity(acct.Identity)
		if err != nil {
			return fmt.Errorf("genesis account %d: %w", i, err)
		}
		ids[i] = id
	}
	for i, acct := range g.Accounts {
		if err := l.Credit(ctx, ids[i], acct.Balance); err != nil {
			return fmt.Errorf("genesis account %s: %w", ids[i], err)
		}
	}
	return nil
}
