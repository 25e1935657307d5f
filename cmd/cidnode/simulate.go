package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taurusgroup/confidential-identities/pkg/identity"
	"github.com/taurusgroup/confidential-identities/pkg/identity/kvregistry"
	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/node"
	"github.com/taurusgroup/confidential-identities/pkg/party"
	"github.com/taurusgroup/confidential-identities/pkg/transport"
	"github.com/taurusgroup/confidential-identities/pkg/tx"
	"github.com/taurusgroup/confidential-identities/protocols/keyrequest"
)

func newSimulateCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the protocols between three in-process nodes.",
		Long: `Run the protocols between three in-process nodes, alice, bob and carol.

alice requests keys from bob, then sends carol a transaction involving one of them.
carol only learns that the key belongs to bob after bob proved it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := zerolog.Nop()
			if verbose {
				log = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
			}
			return simulate(cmd.Context(), cmd.OutOrStdout(), log)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log protocol progress to stderr")
	return cmd
}

type simNode struct {
	*node.Node
	events chan node.Event
	store  *tx.MemoryStore
}

func simulate(ctx context.Context, w io.Writer, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	network := transport.NewNetwork()
	ids := []party.ID{"alice", "bob", "carol"}
	stores := make([]*keys.Store, len(ids))
	endpoints := make([]*transport.Endpoint, len(ids))
	for i, id := range ids {
		s, err := keys.NewRandomStore()
		if err != nil {
			return err
		}
		if endpoints[i], err = network.Join(party.Party{ID: id, OwningKey: s.Identity()}); err != nil {
			return err
		}
		stores[i] = s
	}

	g, gctx := errgroup.WithContext(ctx)
	nodes := make([]simNode, len(ids))
	for i := range ids {
		reg, err := kvregistry.OpenMemory()
		if err != nil {
			return err
		}
		defer reg.Close()
		if err = identity.SeedNetworkMap(ctx, reg, network.Parties()...); err != nil {
			return err
		}
		events := make(chan node.Event, 8)
		store := tx.NewMemoryStore()
		n, err := node.New(endpoints[i], stores[i], reg, node.WithLoader(store), node.WithEvents(events), node.WithLogger(log))
		if err != nil {
			return err
		}
		nodes[i] = simNode{Node: n, events: events, store: store}
		g.Go(func() error { return n.Serve(gctx) })
	}
	defer func() {
		cancel()
		_ = g.Wait()
	}()
	alice, bob, carol := nodes[0], nodes[1], nodes[2]

	report := func(step string, v interface{}) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(w, "%-28s %s\n", step, data)
	}
	wait := func(n simNode) (node.Event, error) {
		select {
		case e := <-n.events:
			return e, nil
		case <-ctx.Done():
			return node.Event{}, ctx.Err()
		}
	}

	fresh, err := alice.RequestKey(ctx, bob.Self().ID, keyrequest.Fresh{})
	if err != nil {
		return err
	}
	if _, err = wait(bob); err != nil {
		return err
	}
	report("alice: fresh key of bob", fresh)

	account := uuid.New()
	acc, err := alice.RequestKey(ctx, bob.Self().ID, keyrequest.ByAccount{Account: account})
	if err != nil {
		return err
	}
	if _, err = wait(bob); err != nil {
		return err
	}
	report("alice: account key of bob", map[string]interface{}{"account": account, "key": acc})

	issue, err := tx.New(nil, []tx.State{{Contract: "cash", Participants: []keys.PublicKey{fresh}, Data: []byte("100")}})
	if err != nil {
		return err
	}
	if err = alice.store.RecordTransaction(ctx, issue); err != nil {
		return err
	}
	transfer, err := tx.New([]tx.StateRef{issue.Ref(0)}, []tx.State{
		{Contract: "cash", Participants: []keys.PublicKey{acc, carol.Self().OwningKey}, Data: []byte("100")},
	})
	if err != nil {
		return err
	}
	sent, err := alice.SyncTransaction(ctx, carol.Self().ID, transfer)
	if err != nil {
		return err
	}
	report("alice -> carol: sync", sent)
	e, err := wait(carol)
	if err != nil {
		return err
	}
	if e.Err != nil {
		return fmt.Errorf("carol: %w", e.Err)
	}

	mappings, err := carol.Registry().Mappings(ctx)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if m.Owner.OwningKey == m.Key {
			continue
		}
		report("carol: mapping", map[string]interface{}{"key": m.Key, "owner": m.Owner.ID})
	}
	return nil
}
