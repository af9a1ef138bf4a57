// Package seed provisions asset types, system wallets and demo users.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/playvault/wallet_ledger/internal/ledger"
)

// Plan is the content of a seed file.
//
//	assets = ["GOLD_COINS", "DIAMONDS"]
//
//	[[users]]
//	id = "user_001"
//	grants = [{ asset = "GOLD_COINS", amount = 500 }]
type Plan struct {
	Assets []string `toml:"assets"`
	Users  []User   `toml:"users"`
}

// User lists the wallets to open for one user.
type User struct {
	ID     string  `toml:"id"`
	Grants []Grant `toml:"grants"`
}

// Grant opens a wallet and, when Amount is positive, funds it from the
// treasury.
type Grant struct {
	Asset  string `toml:"asset"`
	Amount int64  `toml:"amount"`
}

// DefaultPlan is the demo data set used when no seed file is given.
func DefaultPlan() Plan {
	return Plan{
		Assets: []string{"GOLD_COINS", "DIAMONDS", "LOYALTY_POINTS"},
		Users: []User{
			{ID: "user_001", Grants: []Grant{
				{Asset: "GOLD_COINS", Amount: 500},
				{Asset: "DIAMONDS", Amount: 50},
				{Asset: "LOYALTY_POINTS", Amount: 1000},
			}},
			{ID: "user_002", Grants: []Grant{
				{Asset: "GOLD_COINS", Amount: 100},
				{Asset: "LOYALTY_POINTS", Amount: 250},
			}},
		},
	}
}

// Parse decodes a TOML plan. Unknown keys are rejected.
func Parse(data string) (Plan, error) {
	var p Plan
	md, err := toml.Decode(data, &p)
	if err != nil {
		return Plan{}, fmt.Errorf("decode seed plan: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Plan{}, fmt.Errorf("unknown seed keys: %s", strings.Join(keys, ", "))
	}
	return p, p.Validate()
}

// LoadFile reads and parses a TOML plan from path.
func LoadFile(path string) (Plan, error) {
	var p Plan
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Plan{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Plan{}, fmt.Errorf("seed file %s: unknown key %s", path, undecoded[0].String())
	}
	return p, p.Validate()
}

// Validate checks that every grant references a declared asset.
func (p Plan) Validate() error {
	assets := make(map[string]bool, len(p.Assets))
	for _, a := range p.Assets {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("empty asset code")
		}
		assets[a] = true
	}
	for _, u := range p.Users {
		if strings.TrimSpace(u.ID) == "" {
			return fmt.Errorf("user without id")
		}
		for _, g := range u.Grants {
			if !assets[g.Asset] {
				return fmt.Errorf("user %s: asset %s is not declared", u.ID, g.Asset)
			}
			if g.Amount < 0 {
				return fmt.Errorf("user %s: negative grant of %s", u.ID, g.Asset)
			}
		}
	}
	return nil
}

// Summary counts what Apply created.
type Summary struct {
	Assets  int
	Wallets int
	Grants  int
}

// Provisioner is the storage Apply needs.
type Provisioner interface {
	ledger.Store
	ledger.Registry
}

// Apply provisions the plan. It is safe to re-run: existing wallets are left
// untouched and only newly opened wallets receive their opening grant.
func Apply(ctx context.Context, store Provisioner, p Plan, logger *slog.Logger) (Summary, error) {
	if err := p.Validate(); err != nil {
		return Summary{}, err
	}
	var sum Summary

	for _, code := range p.Assets {
		if _, err := store.EnsureAssetType(ctx, code); err != nil {
			return sum, err
		}
		sum.Assets++
		for _, owner := range []string{ledger.TreasuryOwnerID, ledger.RevenueOwnerID} {
			_, created, err := store.EnsureWallet(ctx, owner, ledger.OwnerSystem, code)
			if err != nil {
				return sum, err
			}
			if created {
				sum.Wallets++
			}
		}
	}

	for _, u := range p.Users {
		for _, g := range u.Grants {
			w, created, err := store.EnsureWallet(ctx, u.ID, ledger.OwnerUser, g.Asset)
			if err != nil {
				return sum, err
			}
			if !created {
				continue
			}
			sum.Wallets++
			if g.Amount == 0 {
				continue
			}
			res, err := ledger.Fund(ctx, store, w, g.Amount, fmt.Sprintf("Seed: opening grant of %d %s", g.Amount, g.Asset))
			if err != nil {
				return sum, fmt.Errorf("grant %s to %s: %w", g.Asset, u.ID, err)
			}
			sum.Grants++
			logger.InfoContext(ctx, "seeded wallet",
				slog.String("user_id", u.ID),
				slog.String("asset", g.Asset),
				slog.Int64("balance", res.ToBalance),
			)
		}
	}
	return sum, nil
}
