/*
Package encounter provides proximity peer-to-peer secure sessions.

Two devices that discover each other nearby agree on roles, run an
ephemeral X25519 key exchange and then talk over a ChaCha20-Poly1305
channel. The node tracks whether the session became a meaningful
interaction, watches link quality with keepalives and routes control
messages, reporting everything on a single UI event stream.

# Features

  - One active session at a time, with deterministic initiator selection
  - Ephemeral X25519 key agreement with HKDF-SHA256 directional keys
  - ChaCha20-Poly1305 sealing with random 96-bit nonces
  - Blocklist and per-peer cooldown enforced before any invitation
  - Frames arriving before the handshake completes are buffered, not lost
  - Cancel-and-replace reconnect after a drop
  - Meaningful-interaction detection that fires once per session
  - Keepalive-derived good/fair/poor link quality
  - Bounded UI event stream with a configurable overflow policy
  - Injectable transport, persistence, clock, logger, metrics and tracer

# Quick Start

Create and start a node on top of a transport:

	cfg := encounter.NewConfig(localToken,
		encounter.WithPersistence(book),
		encounter.WithLogger(logger),
	)

	node, err := encounter.New(lanTransport, cfg)
	if err != nil {
		// Handle error
	}

	if err := node.Start(ctx); err != nil {
		// Handle error
	}
	defer node.Stop()

	node.StartDiscovery()

React to events:

	for ev := range node.Events() {
		switch ev.Kind {
		case encounter.EventHandshakeComplete:
			node.BeginSession()
		case encounter.EventUserMessage:
			fmt.Printf("%s: %s\n", ev.Peer, ev.Text)
		case encounter.EventMeaningfulInteraction:
			fmt.Println("that counted")
		}
	}

Send messages:

	node.SendMessage("hello")
	node.SendSystem(router.FormatActChange(2))

# Connection Flow

 1. Discovery reports a nearby peer with its advertised token
 2. Blocked tokens, peers in cooldown and peers already in flight are skipped
 3. The peer with the lexicographically smaller identity invites and
    becomes the initiator
 4. On connect, the initiator sends its 32-byte ephemeral public key
 5. The responder replies with its own key; both derive directional keys
 6. The session is established and the keepalive monitor starts
 7. On drop, session metrics are finalized, the cooldown is recorded
    and a reconnect is scheduled while discovery is wanted

# Message Format

User messages are sent as-is. Control messages carry the "[SYSTEM]"
prefix and a sub-type, see package router. The "[KEEPALIVE]" sentinel
never reaches the application.

# Thread Safety

All public Node methods are thread-safe. Internally one event loop owns
the connection manager, so transport events, timers and API calls never
race. System message handlers run on that loop and must not call Node
methods synchronously.

# Profiles

Production and Development return complete Tunables sets. LoadTunables
reads a TOML file that starts from a named profile and overrides
individual fields.
*/
package encounter
